package gatewaysvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/payment"
)

var (
	host          = "https://api.razorpay.com"
	ordersPath    = "/v1/orders"
	paymentsPath  = "/v1/payments"
	clientTimeout = 10 * time.Second
)

type (
	razorpayService struct {
		keyID     string
		keySecret string
		client    *http.Client
	}

	rzpOrder struct {
		ID       string            `json:"id"`
		Amount   int64             `json:"amount"`
		Currency string            `json:"currency"`
		Receipt  string            `json:"receipt"`
		Notes    map[string]string `json:"notes"`
		Status   string            `json:"status"`
	}

	rzpPayment struct {
		ID       string `json:"id"`
		OrderID  string `json:"order_id"`
		Method   string `json:"method"`
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Receipt  string `json:"receipt"`
	}

	rzpError struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
)

var _ payment.Gateway = (*razorpayService)(nil)

func NewRazorpayService(conf *core.Config) payment.Gateway {
	return &razorpayService{
		keyID:     conf.Razorpay.KeyID,
		keySecret: conf.Razorpay.KeySecret,
		client:    &http.Client{Timeout: clientTimeout},
	}
}

func (svc *razorpayService) KeyID() string {
	return svc.keyID
}

func (svc *razorpayService) CreateOrder(
	ctx context.Context,
	amount int64,
	currency, receipt string,
	notes map[string]string,
) (payment.GatewayOrder, error) {
	body := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	}
	var ord rzpOrder
	if err := svc.do(ctx, http.MethodPost, ordersPath, body, &ord); err != nil {
		return payment.GatewayOrder{}, &payment.GatewayError{Op: "creating order", Err: err}
	}
	return svc.toOrder(ord), nil
}

func (svc *razorpayService) FetchOrder(ctx context.Context, id string) (payment.GatewayOrder, error) {
	var ord rzpOrder
	path := ordersPath + "/" + url.PathEscape(id)
	if err := svc.do(ctx, http.MethodGet, path, nil, &ord); err != nil {
		return payment.GatewayOrder{}, &payment.GatewayError{Op: "fetching order", Err: err}
	}
	return svc.toOrder(ord), nil
}

func (svc *razorpayService) FetchPayment(ctx context.Context, id string) (payment.GatewayPayment, error) {
	var pay rzpPayment
	path := paymentsPath + "/" + url.PathEscape(id)
	if err := svc.do(ctx, http.MethodGet, path, nil, &pay); err != nil {
		return payment.GatewayPayment{}, &payment.GatewayError{Op: "fetching payment", Err: err}
	}
	return payment.GatewayPayment{
		ID:         pay.ID,
		OrderID:    pay.OrderID,
		Method:     pay.Method,
		Status:     pay.Status,
		Amount:     pay.Amount,
		Currency:   pay.Currency,
		ReceiptRef: pay.Receipt,
	}, nil
}

func (svc *razorpayService) toOrder(ord rzpOrder) payment.GatewayOrder {
	return payment.GatewayOrder{
		ID:       ord.ID,
		Amount:   ord.Amount,
		Currency: ord.Currency,
		Receipt:  ord.Receipt,
		Notes:    ord.Notes,
		Status:   ord.Status,
	}
}

func (svc *razorpayService) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, host+path, rdr)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.SetBasicAuth(svc.keyID, svc.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var rzpErr rzpError
		if err = json.NewDecoder(resp.Body).Decode(&rzpErr); err == nil && rzpErr.Error.Description != "" {
			return fmt.Errorf("%s (%d): %s", rzpErr.Error.Code, resp.StatusCode, rzpErr.Error.Description)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response body")
	}
	return nil
}
