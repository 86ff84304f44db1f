//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/repository"
)

func newReceipt(id, orderID string, state model.FlowState, created time.Time) *model.Receipt {
	return &model.Receipt{
		ID:        id,
		SessionID: "sess-1",
		UserID:    "42",
		OrderID:   orderID,
		Purpose:   model.PurposeCardTopup,
		TargetID:  9,
		Amount:    decimal.RequireFromString("180.00"),
		Currency:  "INR",
		State:     state,
		Message:   "done",
		CreatedAt: created.UTC().Truncate(time.Microsecond),
	}
}

func TestReceiptRepo(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewReceiptRepo(testPool)
	now := time.Now()

	settled := newReceipt("r1", "order_1", model.StateSettled, now.Add(-time.Minute))
	settled.PaymentID = "pay_1"
	settled.CouponCode = "SAVE10"
	amt := decimal.RequireFromString("180")
	settled.EffectAmount = &amt

	effectFailed := newReceipt("r2", "order_2", model.StateSettled, now)
	effectFailed.EffectError = &domain.PostEffectError{Purpose: "nol card top-up", Err: errors.New("card locked")}
	effectFailed.ErrorClass = "post_effect"

	unverified := newReceipt("r3", "order_3", model.StateRejected, now)
	unverified.ErrorClass = "verification"
	unverified.ErrorMessage = "Payment status is unknown"

	// collected by the gateway, then refused at verification
	blockedAfterPay := newReceipt("r4", "order_4", model.StateRejected, now)
	blockedAfterPay.PaymentID = "pay_4"
	blockedAfterPay.ErrorClass = "user_blocked"

	// refused at order creation time, never reached the gateway
	blockedBeforePay := newReceipt("r5", "order_5", model.StateRejected, now)
	blockedBeforePay.ErrorClass = "user_blocked"

	for _, r := range []*model.Receipt{settled, effectFailed, unverified, blockedAfterPay, blockedBeforePay} {
		if err := repo.Save(ctx, nil, r); err != nil {
			t.Fatalf("Save %s: %v", r.ID, err)
		}
	}

	t.Run("duplicate order", func(t *testing.T) {
		dup := newReceipt("r9", "order_1", model.StateRejected, now)
		if err := repo.Save(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("find by order", func(t *testing.T) {
		got, err := repo.FindByOrderID(ctx, nil, "order_1")
		if err != nil {
			t.Fatal(err)
		}
		if got.PaymentID != "pay_1" || got.CouponCode != "SAVE10" || !got.Amount.Equal(settled.Amount) || got.State != model.StateSettled {
			t.Errorf("receipt = %+v", got)
		}
		if got.EffectAmount == nil || got.EffectAmount.StringFixed(2) != "180.00" {
			t.Errorf("effect amount = %v", got.EffectAmount)
		}
		if _, err := repo.FindByOrderID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("missing err = %v", err)
		}
	})

	t.Run("follow up", func(t *testing.T) {
		got, err := repo.ListNeedingFollowUp(ctx, nil, now.Add(-time.Hour), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		ids := map[string]bool{}
		for _, r := range got {
			ids[r.ID] = true
		}
		if !ids["r2"] || !ids["r3"] || !ids["r4"] {
			t.Errorf("listed = %v, want r2, r3 and r4", ids)
		}
		if ids["r1"] || ids["r5"] {
			t.Errorf("listed = %v: clean settlement or unpaid rejection included", ids)
		}
	})

	t.Run("list by user inside tx", func(t *testing.T) {
		err := NewTxManager(testPool).WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			got, err := repo.ListByUser(ctx, tx, "42", 2)
			if err != nil {
				return err
			}
			if len(got) != 2 {
				t.Errorf("len = %d, want 2", len(got))
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}
