package dummydb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/malipo/core/payment"
)

func Test_paymentRepository_CreatePayment_duplicateOrder(t *testing.T) {
	db, err := Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	settled := payment.Payment{
		ID:             "pmt_1",
		UserID:         "usr_1",
		CourseID:       "crs_1",
		Amount:         499.00,
		Currency:       "INR",
		GatewayOrderID: "order_1",
		GatewayTxnID:   "pay_1",
		Status:         payment.StatusSuccess,
		PaidAt:         time.Now().UTC(),
	}
	if _, err = repo.UpsertSettledPayment(ctx, settled); err != nil {
		t.Fatalf("UpsertSettledPayment() failed: %v", err)
	}

	// a late intake insert for the same order must fail, not overwrite
	pending := payment.Payment{
		ID:             "pmt_2",
		UserID:         "usr_1",
		CourseID:       "crs_1",
		Amount:         499.00,
		GatewayOrderID: "order_1",
		Status:         payment.StatusPending,
	}
	_, err = repo.CreatePayment(ctx, pending)
	assert.Error(t, err)

	pmt, err := repo.GetPaymentByOrderID(ctx, "order_1")
	if err != nil {
		t.Fatalf("GetPaymentByOrderID() failed: %v", err)
	}
	assert.Equal(t, "pmt_1", pmt.ID)
	assert.Equal(t, payment.StatusSuccess, pmt.Status)
}
