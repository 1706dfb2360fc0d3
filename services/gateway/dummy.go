package gatewaysvc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/trezcool/malipo/core/payment"
)

var errGatewayRecordNotFound = errors.New("record not found")

// DummyService is an in-memory payment.Gateway for tests. Orders created
// through it are remembered; payments are seeded with AddPayment. Setting
// Err makes every call fail with a retryable GatewayError.
type DummyService struct {
	mu       sync.Mutex
	orders   map[string]payment.GatewayOrder
	payments map[string]payment.GatewayPayment
	ordSeq   int

	Err error
}

var _ payment.Gateway = (*DummyService)(nil)

func NewDummyService() *DummyService {
	return &DummyService{
		orders:   make(map[string]payment.GatewayOrder),
		payments: make(map[string]payment.GatewayPayment),
	}
}

func (svc *DummyService) KeyID() string { return "rzp_test_dummy" }

func (svc *DummyService) CreateOrder(
	_ context.Context,
	amount int64,
	currency, receipt string,
	notes map[string]string,
) (payment.GatewayOrder, error) {
	if svc.Err != nil {
		return payment.GatewayOrder{}, &payment.GatewayError{Op: "creating order", Err: svc.Err}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.ordSeq++
	ord := payment.GatewayOrder{
		ID:       fmt.Sprintf("order_dummy%03d", svc.ordSeq),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
		Status:   "created",
	}
	svc.orders[ord.ID] = ord
	return ord, nil
}

func (svc *DummyService) FetchOrder(_ context.Context, id string) (payment.GatewayOrder, error) {
	if svc.Err != nil {
		return payment.GatewayOrder{}, &payment.GatewayError{Op: "fetching order", Err: svc.Err}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if ord, ok := svc.orders[id]; ok {
		return ord, nil
	}
	return payment.GatewayOrder{}, &payment.GatewayError{Op: "fetching order", Err: errGatewayRecordNotFound}
}

func (svc *DummyService) FetchPayment(_ context.Context, id string) (payment.GatewayPayment, error) {
	if svc.Err != nil {
		return payment.GatewayPayment{}, &payment.GatewayError{Op: "fetching payment", Err: svc.Err}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if pay, ok := svc.payments[id]; ok {
		return pay, nil
	}
	return payment.GatewayPayment{}, &payment.GatewayError{Op: "fetching payment", Err: errGatewayRecordNotFound}
}

// AddOrder seeds an order, e.g. one "created" on another node.
func (svc *DummyService) AddOrder(ord payment.GatewayOrder) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.orders[ord.ID] = ord
}

// AddPayment seeds a captured payment for an existing order.
func (svc *DummyService) AddPayment(pay payment.GatewayPayment) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.payments[pay.ID] = pay
}
