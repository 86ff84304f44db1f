package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ EffectDispatcher = (*effectDispatcher)(nil)

// EffectInput describes a verified payment. Purpose comes from the
// verification response, not from the checkout.
type EffectInput struct {
	UserID   string
	Purpose  model.Purpose
	Target   model.Target
	Amount   decimal.Decimal
	Currency string
	CardType string
}

type EffectOutcome struct {
	Message string
	Wallet  model.Balance
	Card    model.Balance
	// TopupAmount is the amount the backend credited to the card, if any.
	TopupAmount *decimal.Decimal
	// Err is a *domain.PostEffectError; the payment stays settled.
	Err error
}

// EffectDispatcher applies the purpose-specific effect of a settled payment and
// refreshes the user's balances.
type EffectDispatcher interface {
	Dispatch(ctx context.Context, in EffectInput) EffectOutcome
}

type effectDispatcher struct {
	backend  adapter.LedgerBackend
	balances BalanceUseCase
	log      *zerolog.Logger
}

func NewEffectDispatcher(backend adapter.LedgerBackend, balances BalanceUseCase, logger *zerolog.Logger) *effectDispatcher {
	return &effectDispatcher{backend: backend, balances: balances, log: logger}
}

func (d *effectDispatcher) Dispatch(ctx context.Context, in EffectInput) EffectOutcome {
	defer logging.TraceDuration(d.log, "EffectDispatcher.Dispatch")()
	l := logging.With(ctx, d.log)

	var out EffectOutcome
	switch in.Purpose {
	case model.PurposeCardTopup:
		out = d.applyCardTopup(ctx, in)
	case model.PurposeWalletTopup:
		out.Message = "Wallet top-up successful!"
	case model.PurposeSubscription:
		out.Message = "Subscription payment successful!"
	case model.PurposeBooking:
		out.Message = "Booking payment successful!"
	default:
		l.Warn().Str("purpose", in.Purpose.String()).Msg("unknown payment purpose in verification response; no effect applied")
		out.Message = "Payment successful!"
	}

	out.Wallet, out.Card = d.balances.Both(ctx, in.UserID)
	return out
}

func (d *effectDispatcher) applyCardTopup(ctx context.Context, in EffectInput) EffectOutcome {
	l := logging.With(ctx, d.log)
	if in.Target == nil {
		err := &domain.PostEffectError{Purpose: model.PurposeCardTopup.Label(), Err: domain.ErrInvalidArgument}
		l.Error().Err(err).Msg("card top-up without a card")
		return EffectOutcome{Message: err.Error(), Err: err}
	}
	res, err := d.backend.CardTopup(ctx, in.UserID, in.Target.ID(), in.Amount, in.CardType)
	if err != nil {
		perr := &domain.PostEffectError{Purpose: model.PurposeCardTopup.Label(), Err: err}
		l.Error().Err(err).Uint64("card_id", in.Target.ID()).Str("amount", in.Amount.StringFixed(2)).
			Msg("error adding top-up after settled payment; needs reconciliation")
		return EffectOutcome{Message: fmt.Sprintf("Error adding top-up: %s", domain.ErrorMessage(err)), Err: perr}
	}
	amt := res.Amount
	return EffectOutcome{
		Message:     fmt.Sprintf("Top-up successful! Amount: %s %s", in.Currency, amt.StringFixed(2)),
		TopupAmount: &amt,
	}
}
