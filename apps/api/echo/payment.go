package echoapi

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core/payment"
)

const webhookSignatureHeader = "X-Razorpay-Signature"

// columns the payment listings may sort on
var paymentSortFields = []string{"created_at", "amount", "status", "paid_at"}

type paymentApi struct {
	svc      *payment.Service
	validate *validator.Validate
}

type VerifyResponse struct {
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *payment.Service, validate *validator.Validate) {
	api := paymentApi{svc: svc, validate: validate}

	pg := g.Group("/payments")

	// un-authed; authenticated by its signature
	pg.POST("/webhook", api.webhook)

	// authed endpoints
	ag := pg.Group("", jwt)
	ag.POST("/create-order", api.createOrder)
	ag.POST("/verify", api.verify)
	ag.GET("", api.query)

	adm := ag.Group("/admin", adminMiddleware())
	adm.GET("", api.queryAll)
	adm.GET("/revenue", api.revenue)
}

// Handlers

func (api *paymentApi) createOrder(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data payment.CreateOrderRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateOrderRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	resp, err := api.svc.CreateOrder(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *paymentApi) verify(ctx echo.Context) error {
	if _, err := getContextClaims(ctx); err != nil {
		return err
	}

	var data payment.VerifyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	settled, err := api.svc.VerifyAndSettle(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	if settled == nil {
		return errOrderNotSettleable
	}
	return ctx.JSON(http.StatusOK, VerifyResponse{
		Message:       "Payment verified",
		TransactionID: settled.ID,
	})
}

// webhook verifies the delivery against the exact bytes received; the
// body must not be parsed before verification.
func (api *paymentApi) webhook(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading webhook body")
	}

	if err = api.svc.HandleWebhook(ctx.Request().Context(), body, ctx.Request().Header.Get(webhookSignatureHeader)); err != nil {
		return err
	}
	return ctx.String(http.StatusOK, "OK")
}

func (api *paymentApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	filter := bindPaymentFilter(ctx)
	filter.UserID = claims.Subject

	var ordering Ordering
	ordering.Bind(ctx, paymentSortFields)

	pmts, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if pmts == nil {
		pmts = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *paymentApi) queryAll(ctx echo.Context) error {
	filter := bindPaymentFilter(ctx)

	var ordering Ordering
	ordering.Bind(ctx, paymentSortFields)

	pmts, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if pmts == nil {
		pmts = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *paymentApi) revenue(ctx echo.Context) error {
	report, err := api.svc.Revenue(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing revenue")
	}
	return ctx.JSON(http.StatusOK, report)
}
