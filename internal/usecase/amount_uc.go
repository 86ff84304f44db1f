package usecase

import (
	"context"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AmountUseCase = (*amountUC)(nil)

type AmountUseCase interface {
	// Resolve fetches the amount owed for target. Failures are *domain.AmountLookupError.
	Resolve(ctx context.Context, target model.Target) (*model.AmountQuote, error)
}

type amountUC struct {
	backend adapter.LedgerBackend
	log     *zerolog.Logger
}

func NewAmountUseCase(backend adapter.LedgerBackend, logger *zerolog.Logger) *amountUC {
	return &amountUC{backend: backend, log: logger}
}

func (u *amountUC) Resolve(ctx context.Context, target model.Target) (*model.AmountQuote, error) {
	defer logging.TraceDuration(u.log, "AmountUC.Resolve")()

	if target == nil {
		return nil, domain.NewValidationError(domain.ReasonInvalidTarget, "no payment target selected")
	}
	amt, err := u.backend.PaymentAmount(ctx, target.Purpose(), target.ID())
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).
			Str("purpose", target.Purpose().String()).
			Uint64("target_id", target.ID()).
			Msg("error fetching amount")
		return nil, &domain.AmountLookupError{Message: domain.ErrorMessage(err), Err: err}
	}
	return &model.AmountQuote{Target: target, OriginalAmount: amt}, nil
}
