//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/usecase"
)

func TestEffectDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	tests := []struct {
		name    string
		purpose model.Purpose
		target  model.Target
		message string
		topups  int
	}{
		{"wallet", model.PurposeWalletTopup, model.WalletTopup{WalletID: 1}, "Wallet top-up successful!", 0},
		{"subscription", model.PurposeSubscription, model.SubscriptionPayment{SubscriptionID: 2}, "Subscription payment successful!", 0},
		{"booking", model.PurposeBooking, model.BookingPayment{BookingID: 3}, "Booking payment successful!", 0},
		{"card", model.PurposeCardTopup, model.CardTopup{CardID: 4}, "Top-up successful! Amount: AED 75.00", 1},
		{"unknown", model.Purpose("gift"), model.BookingPayment{BookingID: 5}, "Payment successful!", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := NewMockBackend()
			d := usecase.NewEffectDispatcher(backend, usecase.NewBalanceUseCase(backend, logger), logger)
			out := d.Dispatch(ctx, usecase.EffectInput{
				UserID:   "42",
				Purpose:  tc.purpose,
				Target:   tc.target,
				Amount:   dec("75"),
				Currency: "AED",
				CardType: "silver",
			})
			if out.Err != nil {
				t.Fatalf("unexpected error: %v", out.Err)
			}
			if out.Message != tc.message {
				t.Errorf("message = %q, want %q", out.Message, tc.message)
			}
			if got := backend.Calls("CardTopup"); got != tc.topups {
				t.Errorf("CardTopup calls = %d, want %d", got, tc.topups)
			}
			if !out.Wallet.Available || !out.Card.Available {
				t.Error("balances should be refreshed after every settlement")
			}
		})
	}
}

func TestEffectDispatcher_CardTopupWithoutCard(t *testing.T) {
	logger := newTestLogger()
	backend := NewMockBackend()
	d := usecase.NewEffectDispatcher(backend, usecase.NewBalanceUseCase(backend, logger), logger)
	out := d.Dispatch(context.Background(), usecase.EffectInput{UserID: "42", Purpose: model.PurposeCardTopup, Amount: dec("50")})
	var pe *domain.PostEffectError
	if !errors.As(out.Err, &pe) || !errors.Is(out.Err, domain.ErrInvalidArgument) {
		t.Errorf("err = %v", out.Err)
	}
	if pe != nil && pe.Purpose != "Nol card top-up" {
		t.Errorf("purpose label = %q", pe.Purpose)
	}
	if backend.Calls("CardTopup") != 0 {
		t.Error("top-up attempted without a card")
	}
}

func TestCouponUseCase(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("should use the catalog for listings", func(t *testing.T) {
		backend := NewMockBackend()
		catalog := NewMockBackend()
		catalog.CouponsFunc = func(ctx context.Context, p model.Purpose) ([]model.Coupon, error) {
			return []model.Coupon{{Code: "CACHED"}}, nil
		}
		uc := usecase.NewCouponUseCase(catalog, backend, logger)
		got := uc.List(ctx, model.PurposeBooking)
		if len(got) != 1 || got[0].Code != "CACHED" || backend.Calls("Coupons") != 0 {
			t.Errorf("coupons = %+v", got)
		}
	})

	t.Run("should reject an empty code locally", func(t *testing.T) {
		backend := NewMockBackend()
		uc := usecase.NewCouponUseCase(nil, backend, logger)
		_, err := uc.Apply(ctx, " ", dec("10"))
		var ce *domain.CouponError
		if !errors.As(err, &ce) || backend.Calls("ApplyCoupon") != 0 {
			t.Errorf("err = %v, calls = %d", err, backend.Calls("ApplyCoupon"))
		}
	})

	t.Run("should round the final amount to cents", func(t *testing.T) {
		backend := NewMockBackend()
		backend.ApplyCouponFunc = func(ctx context.Context, code string, amount decimal.Decimal) (decimal.Decimal, error) {
			return dec("3.335"), nil
		}
		uc := usecase.NewCouponUseCase(nil, backend, logger)
		d, err := uc.Apply(ctx, "ODD", dec("10"))
		if err != nil {
			t.Fatal(err)
		}
		if d.FinalAmount.String() != "6.67" {
			t.Errorf("final = %s, want 6.67", d.FinalAmount)
		}
	})
}

func TestAmountUseCase_Resolve(t *testing.T) {
	logger := newTestLogger()
	backend := NewMockBackend()
	var gotPurpose model.Purpose
	var gotID uint64
	backend.PaymentAmountFunc = func(ctx context.Context, p model.Purpose, id uint64) (decimal.Decimal, error) {
		gotPurpose, gotID = p, id
		return dec("99.50"), nil
	}
	uc := usecase.NewAmountUseCase(backend, logger)

	q, err := uc.Resolve(context.Background(), model.SubscriptionPayment{SubscriptionID: 12})
	if err != nil {
		t.Fatal(err)
	}
	if gotPurpose != model.PurposeSubscription || gotID != 12 || q.OriginalAmount.StringFixed(2) != "99.50" {
		t.Errorf("lookup %s/%d -> %+v", gotPurpose, gotID, q)
	}

	if _, err := uc.Resolve(context.Background(), nil); err == nil {
		t.Error("want error for nil target")
	}
}

func TestEligibilityUseCase_Check(t *testing.T) {
	logger := newTestLogger()
	backend := NewMockBackend()
	backend.UserStatusFunc = nil
	uc := usecase.NewEligibilityUseCase(backend, logger)
	blocked, err := uc.Check(context.Background(), "42")
	if blocked || err != nil {
		t.Errorf("got %v, %v", blocked, err)
	}
}
