package payment

import "context"

type (
	// GatewayOrder is a payment-provider-side object representing an
	// intended charge, created before the payer completes payment. Notes
	// carry the domain ids and are returned unchanged on fetch; they are
	// the only link between the gateway's opaque order id and our rows.
	GatewayOrder struct {
		ID       string
		Amount   int64 // minor currency units
		Currency string
		Receipt  string
		Notes    map[string]string
		Status   string
	}

	GatewayPayment struct {
		ID         string
		OrderID    string
		Method     string
		Status     string
		Amount     int64 // minor currency units
		Currency   string
		ReceiptRef string
	}

	// Gateway is the payment provider capability the core depends on.
	// Implementations live under services/gateway; tests substitute a double.
	Gateway interface {
		KeyID() string
		CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (GatewayOrder, error)
		FetchOrder(ctx context.Context, id string) (GatewayOrder, error)
		FetchPayment(ctx context.Context, id string) (GatewayPayment, error)
	}
)

// GatewayError wraps an upstream gateway failure (network, auth,
// not-found). It is retryable: callers surface it without mutating state
// so the request can simply be re-sent.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return "payment gateway: " + e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }
