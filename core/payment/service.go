package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/course"
	"github.com/trezcool/malipo/core/enrollment"
	"github.com/trezcool/malipo/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("payment not found")
	ErrNotConfigured    = errors.New("payment gateway not configured")
	ErrFreeCourse       = errors.New("course is free; use the enrollment endpoint")
	ErrAlreadyEnrolled  = errors.New("already enrolled in this course")
	ErrInvalidSignature = errors.New("invalid signature")
)

// notes keys attached to gateway orders at intake and recovered during
// reconciliation.
const (
	noteUserID   = "userId"
	noteCourseID = "courseId"
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, pmt Payment) (Payment, error)
		GetPaymentByOrderID(ctx context.Context, gatewayOrderID string) (Payment, error)
		// UpsertSettledPayment atomically finds or creates the payment row
		// keyed by the unique gateway_order_id and stamps the settlement
		// fields. On conflict only status, gateway_txn_id, payment_method,
		// paid_at and receipt_url change; amount, user_id and course_id are
		// never overwritten past intake. Concurrent calls for the same order
		// must all succeed and converge to one settled row.
		UpsertSettledPayment(ctx context.Context, pmt Payment) (Payment, error)
		QueryPayments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Payment, error)
		TotalRevenue(ctx context.Context) (float64, error)
		RevenueByMonth(ctx context.Context) ([]MonthRevenue, error)
	}

	Service struct {
		gw       Gateway // nil when credentials are absent
		repo     Repository
		enrRepo  enrollment.Repository
		crsRepo  course.Repository
		usrRepo  user.Repository
		mailSvc  core.EmailService
		verifKey []byte // gateway API secret; signs the client callback
		whKey    []byte // webhook secret; distinct from verifKey
	}
)

func NewService(
	gw Gateway,
	repo Repository,
	enrRepo enrollment.Repository,
	crsRepo course.Repository,
	usrRepo user.Repository,
	mailSvc core.EmailService,
	conf *core.Config,
) *Service {
	return &Service{
		gw:       gw,
		repo:     repo,
		enrRepo:  enrRepo,
		crsRepo:  crsRepo,
		usrRepo:  usrRepo,
		mailSvc:  mailSvc,
		verifKey: []byte(conf.Razorpay.KeySecret),
		whKey:    []byte(conf.Razorpay.WebhookSecret),
	}
}

func (svc *Service) Enabled() bool {
	return svc.gw != nil
}

// CreateOrder validates a purchase request, creates the remote gateway
// order tagged with the domain ids and records the pending payment row.
// No enrollment is granted here.
func (svc *Service) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (CreateOrderResponse, error) {
	if !svc.Enabled() {
		return CreateOrderResponse{}, ErrNotConfigured
	}

	crs, err := svc.crsRepo.GetCourseByID(ctx, req.CourseID)
	if err != nil {
		return CreateOrderResponse{}, err
	}
	if crs.IsFree() {
		return CreateOrderResponse{}, ErrFreeCourse
	}

	if _, err = svc.enrRepo.GetEnrollment(ctx, userID, crs.ID); err == nil {
		return CreateOrderResponse{}, ErrAlreadyEnrolled
	} else if err != enrollment.ErrNotFound {
		return CreateOrderResponse{}, pkgerrors.Wrap(err, "getting enrollment")
	}

	amount := int64(math.Round(crs.Price * 100))
	receipt := fmt.Sprintf("lms_%s_%s_%d", crs.ID, userID, time.Now().Unix())
	notes := map[string]string{noteUserID: userID, noteCourseID: crs.ID}

	ord, err := svc.gw.CreateOrder(ctx, amount, core.Conf.DefaultCurrency, receipt, notes)
	if err != nil {
		return CreateOrderResponse{}, err
	}

	now := time.Now().UTC()
	pmt := Payment{
		ID:             uuid.New().String(),
		UserID:         userID,
		CourseID:       crs.ID,
		Amount:         crs.Price,
		Currency:       ord.Currency,
		GatewayOrderID: ord.ID,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err = svc.repo.CreatePayment(ctx, pmt); err != nil {
		return CreateOrderResponse{}, pkgerrors.Wrap(err, "creating pending payment")
	}

	return CreateOrderResponse{
		OrderID:  ord.ID,
		Amount:   amount,
		Currency: ord.Currency,
		KeyID:    svc.gw.KeyID(),
	}, nil
}

// VerifyAndSettle handles the synchronous checkout callback: the client
// signature is checked first and no state is touched on mismatch.
func (svc *Service) VerifyAndSettle(ctx context.Context, req VerifyRequest) (*Payment, error) {
	if !svc.Enabled() {
		return nil, ErrNotConfigured
	}
	if !VerifyOrderSignature(req.OrderID, req.PaymentID, req.Signature, svc.verifKey) {
		return nil, ErrInvalidSignature
	}
	return svc.Reconcile(ctx, req.OrderID, req.PaymentID, "")
}

// HandleWebhook verifies the raw-body signature and reconciles captured
// payments. body must be the exact bytes received; re-serializing a
// parsed envelope changes the byte layout and breaks the signature.
// A verified delivery of an ignored event type or an unrecognized order
// returns nil so the sender gets a 200 and stops redelivering; gateway
// fetch failures propagate so the sender retries.
func (svc *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !VerifySignature(body, signature, svc.whKey) {
		return ErrInvalidSignature
	}

	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return pkgerrors.Wrap(err, "decoding webhook event")
	}
	if evt.Event != eventPaymentCaptured {
		return nil
	}

	entity := evt.Payload.Payment.Entity
	if entity.OrderID == "" || entity.ID == "" {
		return nil
	}

	// the webhook secret may be set while the API credentials are not;
	// settling needs the gateway, so bail out and let the sender retry.
	if !svc.Enabled() {
		return ErrNotConfigured
	}
	_, err := svc.Reconcile(ctx, entity.OrderID, entity.ID, entity.Method)
	return err
}

// Reconcile idempotently settles the payment for gatewayOrderID and
// grants course access. Both triggers (client verify and webhook) funnel
// here and may race on the same order; every write is an upsert so
// concurrent calls converge to one settled row and one enrollment.
// The gateway's fetched records, not caller input, are authoritative for
// amount and currency. A nil Payment with nil error means the order's
// notes carry no domain ids (foreign or replayed event): a no-op, not a
// fault.
func (svc *Service) Reconcile(ctx context.Context, gatewayOrderID, gatewayPaymentID, method string) (*Payment, error) {
	ord, err := svc.gw.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	pay, err := svc.gw.FetchPayment(ctx, gatewayPaymentID)
	if err != nil {
		return nil, err
	}

	userID, courseID := ord.Notes[noteUserID], ord.Notes[noteCourseID]
	if userID == "" || courseID == "" {
		return nil, nil
	}

	if method == "" {
		method = pay.Method
	}
	if method == "" {
		method = "card"
	}

	now := time.Now().UTC()
	pmt := Payment{
		ID:             uuid.New().String(),
		UserID:         userID,
		CourseID:       courseID,
		Amount:         float64(ord.Amount) / 100,
		Currency:       ord.Currency,
		GatewayOrderID: gatewayOrderID,
		GatewayTxnID:   gatewayPaymentID,
		PaymentMethod:  method,
		Status:         StatusSuccess,
		PaidAt:         now,
		ReceiptURL:     pay.ReceiptRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	settled, err := svc.repo.UpsertSettledPayment(ctx, pmt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "settling payment")
	}

	if _, err = svc.enrRepo.EnsureEnrollment(ctx, userID, courseID); err != nil {
		return nil, pkgerrors.Wrap(err, "granting enrollment")
	}

	svc.sendReceiptMail(ctx, settled)
	return &settled, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Payment, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryPayments(ctx, filter, ordering)
}

func (svc *Service) Revenue(ctx context.Context) (RevenueReport, error) {
	total, err := svc.repo.TotalRevenue(ctx)
	if err != nil {
		return RevenueReport{}, err
	}
	byMonth, err := svc.repo.RevenueByMonth(ctx)
	if err != nil {
		return RevenueReport{}, err
	}
	if byMonth == nil {
		byMonth = []MonthRevenue{}
	}
	return RevenueReport{Total: total, ByMonth: byMonth}, nil
}

// sendReceiptMail emails a payment confirmation. Mail failures never
// affect reconciliation; racing triggers may each send one.
func (svc *Service) sendReceiptMail(ctx context.Context, pmt Payment) {
	if svc.mailSvc == nil {
		return
	}
	usr, err := svc.usrRepo.GetUserByID(ctx, pmt.UserID)
	if err != nil || usr.Email == "" {
		return
	}
	title := pmt.CourseID
	if crs, err := svc.crsRepo.GetCourseByID(ctx, pmt.CourseID); err == nil {
		title = crs.Title
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Payment received",
		TextContent: fmt.Sprintf(
			"Hi %s,\n\nWe received your payment of %.2f %s for %q.\nTransaction ID: %s\n\nHappy learning!",
			usr.Name, pmt.Amount, pmt.Currency, title, pmt.ID,
		),
	})
}
