package dummydb

import (
	"context"
	"fmt"
	"sort"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/payment"
)

type paymentRepository struct {
	db *paymentTable
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db.payment}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, pmt payment.Payment) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// gateway_order_id is unique; a plain insert on a taken key fails
	if _, ok := repo.db.table[pmt.GatewayOrderID]; ok {
		return payment.Payment{}, fmt.Errorf("duplicate gateway_order_id %q", pmt.GatewayOrderID)
	}
	repo.db.table[pmt.GatewayOrderID] = &pmt
	return pmt, nil
}

func (repo *paymentRepository) GetPaymentByOrderID(_ context.Context, gatewayOrderID string) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if pmt, ok := repo.db.table[gatewayOrderID]; ok {
		return *pmt, nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) UpsertSettledPayment(_ context.Context, pmt payment.Payment) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing, ok := repo.db.table[pmt.GatewayOrderID]
	if !ok {
		repo.db.table[pmt.GatewayOrderID] = &pmt
		return pmt, nil
	}

	// settlement stamps only; intake fields stay as they were
	existing.Status = pmt.Status
	existing.GatewayTxnID = pmt.GatewayTxnID
	existing.PaymentMethod = pmt.PaymentMethod
	existing.PaidAt = pmt.PaidAt
	if pmt.ReceiptURL != "" {
		existing.ReceiptURL = pmt.ReceiptURL
	}
	existing.UpdatedAt = pmt.UpdatedAt
	return *existing, nil
}

func (repo *paymentRepository) QueryPayments(
	_ context.Context,
	filter *payment.QueryFilter,
	ordering []core.DBOrdering,
) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	pmts := make([]payment.Payment, 0, len(repo.db.table))
	for _, pmt := range repo.db.table {
		if filter != nil {
			if filter.UserID != "" && pmt.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && pmt.Status != filter.Status {
				continue
			}
			if !filter.CreatedFrom.IsZero() && pmt.CreatedAt.Before(filter.CreatedFrom) {
				continue
			}
			if !filter.CreatedTo.IsZero() && pmt.CreatedAt.After(filter.CreatedTo) {
				continue
			}
		}
		pmts = append(pmts, *pmt)
	}

	ascending := len(ordering) > 0 && ordering[0].Ascending
	sort.Slice(pmts, func(i, j int) bool {
		if ascending {
			return pmts[i].CreatedAt.Before(pmts[j].CreatedAt)
		}
		return pmts[i].CreatedAt.After(pmts[j].CreatedAt)
	})
	return pmts, nil
}

func (repo *paymentRepository) TotalRevenue(_ context.Context) (float64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var total float64
	for _, pmt := range repo.db.table {
		if pmt.Status == payment.StatusSuccess {
			total += pmt.Amount
		}
	}
	return total, nil
}

func (repo *paymentRepository) RevenueByMonth(_ context.Context) ([]payment.MonthRevenue, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	totals := make(map[string]float64)
	for _, pmt := range repo.db.table {
		if pmt.Status == payment.StatusSuccess && !pmt.PaidAt.IsZero() {
			totals[pmt.PaidAt.UTC().Format("2006-01")] += pmt.Amount
		}
	}

	months := make([]string, 0, len(totals))
	for month := range totals {
		months = append(months, month)
	}
	sort.Strings(months)

	buckets := make([]payment.MonthRevenue, 0, len(months))
	for _, month := range months {
		buckets = append(buckets, payment.MonthRevenue{Month: month, Total: totals[month]})
	}
	return buckets, nil
}
