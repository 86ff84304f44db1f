package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/repository"
)

// FollowUpMonitor periodically reports journaled payments that need a human:
// verifications whose outcome is unknown and settled payments whose effect
// was not applied. It only reports; reconciliation happens elsewhere.
type FollowUpMonitor struct {
	receipts repository.ReceiptRepository
	tm       repository.TransactionManager // optional
	interval time.Duration
	log      *zerolog.Logger
	now      func() time.Time

	since time.Time
}

func NewFollowUpMonitor(receipts repository.ReceiptRepository, interval time.Duration, logger *zerolog.Logger) *FollowUpMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	m := &FollowUpMonitor{receipts: receipts, interval: interval, log: logger, now: time.Now}
	m.since = m.now().Add(-interval)
	return m
}

// WithReadTx makes each scan read from one read-only transaction.
func (m *FollowUpMonitor) WithReadTx(tm repository.TransactionManager) *FollowUpMonitor {
	m.tm = tm
	return m
}

func (m *FollowUpMonitor) Start(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick(ctx)
		}
	}
}

func (m *FollowUpMonitor) tick(ctx context.Context) int {
	const batch = 200
	upTo := m.now()
	list, err := m.list(ctx, batch)
	if err != nil {
		m.log.Error().Err(err).Msg("follow-up-monitor: list receipts failed")
		return 0
	}
	for _, r := range list {
		ev := m.log.Warn().
			Str("receipt_id", r.ID).
			Str("order_id", r.OrderID).
			Str("payment_id", r.PaymentID).
			Str("user_id", r.UserID).
			Str("purpose", r.Purpose.String()).
			Str("amount", r.Amount.StringFixed(2)).
			Str("class", r.ErrorClass)
		if r.EffectError != nil {
			ev = ev.Str("effect_error", r.EffectError.Error())
		}
		ev.Msg("follow-up-monitor: payment needs follow-up")
		if r.CreatedAt.After(m.since) {
			m.since = r.CreatedAt
		}
	}
	if len(list) < batch {
		m.since = upTo
	}
	return len(list)
}

func (m *FollowUpMonitor) list(ctx context.Context, batch int) ([]*model.Receipt, error) {
	if m.tm == nil {
		return m.receipts.ListNeedingFollowUp(ctx, nil, m.since, batch)
	}
	var list []*model.Receipt
	err := m.tm.WithTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		list, err = m.receipts.ListNeedingFollowUp(ctx, tx, m.since, batch)
		return err
	})
	return list, err
}
