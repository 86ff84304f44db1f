package usecase

import (
	"context"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ EligibilityUseCase = (*eligibilityUC)(nil)

// EligibilityUseCase decides whether a user may transact.
type EligibilityUseCase interface {
	// Check returns blocked=true when the user is blocked or inactive.
	// On transport failure it fails open: blocked=false with a *domain.NetworkError
	// the caller should surface as a warning.
	Check(ctx context.Context, userID string) (blocked bool, err error)
}

type eligibilityUC struct {
	backend adapter.LedgerBackend
	log     *zerolog.Logger
}

func NewEligibilityUseCase(backend adapter.LedgerBackend, logger *zerolog.Logger) *eligibilityUC {
	return &eligibilityUC{backend: backend, log: logger}
}

func (u *eligibilityUC) Check(ctx context.Context, userID string) (bool, error) {
	defer logging.TraceDuration(u.log, "EligibilityUC.Check")()

	st, err := u.backend.UserStatus(ctx, userID)
	if err != nil {
		// Blocking a legitimate user is worse than missing one check.
		logging.With(ctx, u.log).Warn().Err(err).Msg("user status check failed; treating user as not blocked")
		return false, &domain.NetworkError{Op: "check user status", Err: err}
	}
	blocked := st.Blocked || st.Inactive
	if blocked {
		logging.With(ctx, u.log).Info().Bool("blocked", st.Blocked).Bool("inactive", st.Inactive).Msg("user is not allowed to transact")
	}
	return blocked, nil
}
