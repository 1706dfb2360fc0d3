package payment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/malipo/core"
)

// Statuses. A Payment moves pending→success (or pending→failed) exactly
// once; success and failed are terminal.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Payment is the persisted charge record, keyed by the unique gateway
// order id assigned at intake. Settlement fields (GatewayTxnID,
// PaymentMethod, PaidAt, ReceiptURL) stay zero until reconciliation.
type Payment struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CourseID       string    `json:"course_id"`
	Amount         float64   `json:"amount"` // major currency units
	Currency       string    `json:"currency"`
	GatewayOrderID string    `json:"gateway_order_id"`
	GatewayTxnID   string    `json:"gateway_txn_id,omitempty"`
	PaymentMethod  string    `json:"payment_method,omitempty"`
	Status         string    `json:"status"`
	PaidAt         time.Time `json:"paid_at,omitempty"` // UTC; zero until settled
	ReceiptURL     string    `json:"receipt_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

func (p Payment) IsSettled() bool {
	return p.Status == StatusSuccess
}

// CreateOrderRequest contains information needed to start a paid checkout.
type CreateOrderRequest struct {
	CourseID string `json:"courseId" validate:"required,uuid4"`
}

func (r *CreateOrderRequest) Validate(validate *validator.Validate) error {
	r.CourseID = core.CleanString(r.CourseID, true /* lower */)
	return validate.Struct(r)
}

// CreateOrderResponse is returned to the client to open the gateway
// checkout. Amount is in minor currency units as the gateway expects.
type CreateOrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

// VerifyRequest is the synchronous checkout completion callback posted by
// the client, signed with the gateway API secret.
type VerifyRequest struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

func (r *VerifyRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// WebhookEvent is the gateway event envelope. Only "payment.captured"
// is acted upon; other event types are acknowledged and ignored.
type (
	WebhookEvent struct {
		Event   string         `json:"event"`
		Payload WebhookPayload `json:"payload"`
	}

	WebhookPayload struct {
		Payment WebhookPaymentWrapper `json:"payment"`
	}

	WebhookPaymentWrapper struct {
		Entity WebhookPaymentEntity `json:"entity"`
	}

	WebhookPaymentEntity struct {
		ID      string `json:"id"`
		OrderID string `json:"order_id"`
		Method  string `json:"method"`
	}
)

const eventPaymentCaptured = "payment.captured"

// QueryFilter filters payment listings.
type QueryFilter struct {
	UserID      string    `query:"-"`
	Status      string    `query:"status"`
	CreatedFrom time.Time `query:"from"`
	CreatedTo   time.Time `query:"to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.UserID == "" && qf.Status == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

// MonthRevenue is one month bucket of settled revenue.
type MonthRevenue struct {
	Month string  `json:"month"` // "2006-01"
	Total float64 `json:"total"`
}

// RevenueReport aggregates settled payments only.
type RevenueReport struct {
	Total   float64        `json:"total"`
	ByMonth []MonthRevenue `json:"byMonth"`
}
