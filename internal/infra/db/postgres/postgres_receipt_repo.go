package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/repository"
	"xtrace-checkout/internal/infra/metrics"
)

var _ repository.ReceiptRepository = (*receiptRepo)(nil)

type receiptRepo struct{ pool *pgxpool.Pool }

func NewReceiptRepo(pool *pgxpool.Pool) *receiptRepo {
	return &receiptRepo{pool: pool}
}

const receiptColumns = `id, session_id, user_id, order_id, payment_id, purpose, target_id, amount::text, currency,
  coupon_code, state, message, error_class, error_message, effect_error, effect_amount::text, created_at`

// Save inserts r. Receipts are written once per order; a second write for the
// same order returns domain.ErrAlreadyExists.
func (r *receiptRepo) Save(ctx context.Context, tx repository.Tx, rec *model.Receipt) error {
	const q = `
INSERT INTO checkout_receipts (
  id, session_id, user_id, order_id, payment_id, purpose, target_id, amount, currency,
  coupon_code, state, message, error_class, error_message, effect_error, effect_amount, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8::numeric,$9,$10,$11,$12,$13,$14,$15,$16::numeric,$17
);`
	var effectErr, effectAmt *string
	if rec.EffectError != nil {
		s := rec.EffectError.Error()
		effectErr = &s
	}
	if rec.EffectAmount != nil {
		s := rec.EffectAmount.StringFixed(2)
		effectAmt = &s
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.SessionID, rec.UserID, rec.OrderID, nullable(rec.PaymentID), rec.Purpose.String(),
		int64(rec.TargetID), rec.Amount.StringFixed(2), rec.Currency, nullable(rec.CouponCode),
		rec.State.String(), rec.Message, nullable(rec.ErrorClass), nullable(rec.ErrorMessage),
		effectErr, effectAmt, rec.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			metrics.IncReceiptWrite("duplicate")
			return domain.ErrAlreadyExists
		}
		metrics.IncReceiptWrite("error")
		return domain.ErrOperationFailed
	}
	metrics.IncReceiptWrite("ok")
	return nil
}

func (r *receiptRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Receipt, error) {
	q := `SELECT ` + receiptColumns + ` FROM checkout_receipts WHERE order_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	rec, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return rec, nil
}

func (r *receiptRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Receipt, error) {
	q := `SELECT ` + receiptColumns + ` FROM checkout_receipts WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, userID, limit)
}

func (r *receiptRepo) ListNeedingFollowUp(ctx context.Context, tx repository.Tx, since time.Time, limit int) ([]*model.Receipt, error) {
	q := `SELECT ` + receiptColumns + ` FROM checkout_receipts
WHERE created_at >= $1 AND (error_class = 'verification' OR effect_error IS NOT NULL
    OR (error_class = 'user_blocked' AND payment_id IS NOT NULL))
ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, since, limit)
}

func (r *receiptRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Receipt, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanReceipt(row pgx.Row) (*model.Receipt, error) {
	var (
		rec                                 model.Receipt
		paymentID, coupon, errClass, errMsg *string
		effectErr, effectAmt                *string
		purpose, state, amount              string
		targetID                            int64
	)
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.OrderID, &paymentID, &purpose, &targetID,
		&amount, &rec.Currency, &coupon, &state, &rec.Message, &errClass, &errMsg, &effectErr, &effectAmt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Purpose = model.Purpose(purpose)
	rec.State = model.FlowState(state)
	rec.TargetID = uint64(targetID)
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	rec.PaymentID = deref(paymentID)
	rec.CouponCode = deref(coupon)
	rec.ErrorClass = deref(errClass)
	rec.ErrorMessage = deref(errMsg)
	if effectErr != nil {
		rec.EffectError = errors.New(*effectErr)
	}
	if effectAmt != nil {
		d, err := decimal.NewFromString(*effectAmt)
		if err != nil {
			return nil, err
		}
		rec.EffectAmount = &d
	}
	return &rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
