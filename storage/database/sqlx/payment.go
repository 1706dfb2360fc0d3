package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/payment"
)

type paymentRow struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	CourseID       string      `db:"course_id"`
	Amount         float64     `db:"amount"`
	Currency       string      `db:"currency"`
	GatewayOrderID string      `db:"gateway_order_id"`
	GatewayTxnID   null.String `db:"gateway_txn_id"`
	PaymentMethod  null.String `db:"payment_method"`
	Status         string      `db:"status"`
	PaidAt         null.Time   `db:"paid_at"`
	ReceiptURL     null.String `db:"receipt_url"`
	CreatedAt      null.Time   `db:"created_at"`
	UpdatedAt      null.Time   `db:"updated_at"`
}

func (r paymentRow) domain() payment.Payment {
	return payment.Payment{
		ID:             r.ID,
		UserID:         r.UserID,
		CourseID:       r.CourseID,
		Amount:         r.Amount,
		Currency:       strings.TrimSpace(r.Currency), // CHAR(3) padding
		GatewayOrderID: r.GatewayOrderID,
		GatewayTxnID:   r.GatewayTxnID.String,
		PaymentMethod:  r.PaymentMethod.String,
		Status:         r.Status,
		PaidAt:         r.PaidAt.Time,
		ReceiptURL:     r.ReceiptURL.String,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
}

func newPaymentRow(pmt payment.Payment) paymentRow {
	return paymentRow{
		ID:             pmt.ID,
		UserID:         pmt.UserID,
		CourseID:       pmt.CourseID,
		Amount:         pmt.Amount,
		Currency:       pmt.Currency,
		GatewayOrderID: pmt.GatewayOrderID,
		GatewayTxnID:   null.NewString(pmt.GatewayTxnID, pmt.GatewayTxnID != ""),
		PaymentMethod:  null.NewString(pmt.PaymentMethod, pmt.PaymentMethod != ""),
		Status:         pmt.Status,
		PaidAt:         null.NewTime(pmt.PaidAt.UTC(), !pmt.PaidAt.IsZero()),
		ReceiptURL:     null.NewString(pmt.ReceiptURL, pmt.ReceiptURL != ""),
		CreatedAt:      null.NewTime(pmt.CreatedAt.UTC(), !pmt.CreatedAt.IsZero()),
		UpdatedAt:      null.NewTime(pmt.UpdatedAt.UTC(), !pmt.UpdatedAt.IsZero()),
	}
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo paymentRepository) CreatePayment(ctx context.Context, pmt payment.Payment) (payment.Payment, error) {
	const q = `
		INSERT INTO payment (id, user_id, course_id, amount, currency, gateway_order_id, gateway_txn_id,
		                     payment_method, status, paid_at, receipt_url, created_at, updated_at)
		VALUES (:id, :user_id, :course_id, :amount, :currency, :gateway_order_id, :gateway_txn_id,
		        :payment_method, :status, :paid_at, :receipt_url, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newPaymentRow(pmt)); err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return pmt, nil
}

func (repo paymentRepository) GetPaymentByOrderID(ctx context.Context, gatewayOrderID string) (payment.Payment, error) {
	var row paymentRow
	const q = `SELECT * FROM payment WHERE gateway_order_id = $1`
	if err := repo.db.GetContext(ctx, &row, q, gatewayOrderID); err != nil {
		if err == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "getting payment by order id")
	}
	return row.domain(), nil
}

// UpsertSettledPayment settles in a single statement so racing triggers
// for the same gateway order serialize on the unique constraint. The
// conflict branch only stamps settlement fields; amount, user_id and
// course_id keep their intake values.
func (repo paymentRepository) UpsertSettledPayment(ctx context.Context, pmt payment.Payment) (payment.Payment, error) {
	const q = `
		INSERT INTO payment (id, user_id, course_id, amount, currency, gateway_order_id, gateway_txn_id,
		                     payment_method, status, paid_at, receipt_url, created_at, updated_at)
		VALUES (:id, :user_id, :course_id, :amount, :currency, :gateway_order_id, :gateway_txn_id,
		        :payment_method, :status, :paid_at, :receipt_url, :created_at, :updated_at)
		ON CONFLICT (gateway_order_id) DO UPDATE
		SET status         = EXCLUDED.status,
		    gateway_txn_id = EXCLUDED.gateway_txn_id,
		    payment_method = EXCLUDED.payment_method,
		    paid_at        = EXCLUDED.paid_at,
		    receipt_url    = COALESCE(EXCLUDED.receipt_url, payment.receipt_url),
		    updated_at     = EXCLUDED.updated_at
		RETURNING *`
	rows, err := sqlx.NamedQueryContext(ctx, repo.db, q, newPaymentRow(pmt))
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "upserting settled payment")
	}
	defer func() { _ = rows.Close() }()

	var row paymentRow
	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return payment.Payment{}, errors.Wrap(err, "upserting settled payment")
		}
		return payment.Payment{}, errors.New("upserting settled payment: no row returned")
	}
	if err = rows.StructScan(&row); err != nil {
		return payment.Payment{}, errors.Wrap(err, "scanning settled payment")
	}
	return row.domain(), nil
}

func (repo paymentRepository) QueryPayments(
	ctx context.Context,
	filter *payment.QueryFilter,
	ordering []core.DBOrdering,
) ([]payment.Payment, error) {
	q := `SELECT * FROM payment`
	var conds []string
	var args []interface{}

	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.UserID != "" {
			conds = append(conds, "user_id = "+arg(filter.UserID))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(filter.Status))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += " ORDER BY " + strings.Join(orderList, ", ")
	}

	var rows []paymentRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	pmts := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		pmts = append(pmts, row.domain())
	}
	return pmts, nil
}

func (repo paymentRepository) TotalRevenue(ctx context.Context) (float64, error) {
	var total float64
	const q = `SELECT COALESCE(SUM(amount), 0) FROM payment WHERE status = 'success'`
	if err := repo.db.GetContext(ctx, &total, q); err != nil {
		return 0, errors.Wrap(err, "summing revenue")
	}
	return total, nil
}

func (repo paymentRepository) RevenueByMonth(ctx context.Context) ([]payment.MonthRevenue, error) {
	const q = `
		SELECT to_char(paid_at, 'YYYY-MM') AS month, SUM(amount) AS total
		FROM payment
		WHERE status = 'success' AND paid_at IS NOT NULL
		GROUP BY 1
		ORDER BY 1`
	var buckets []payment.MonthRevenue
	rows, err := repo.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying revenue by month")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var b payment.MonthRevenue
		if err = rows.Scan(&b.Month, &b.Total); err != nil {
			return nil, errors.Wrap(err, "scanning revenue bucket")
		}
		buckets = append(buckets, b)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "querying revenue by month")
	}
	return buckets, nil
}
