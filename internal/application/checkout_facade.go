package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/infra/logging"
	"xtrace-checkout/internal/usecase"

	"github.com/rs/zerolog"
)

// CheckoutFacade composes the session registry with the background runner
// and the optional cross-process guards. It is what the HTTP API and the CLI call.
type CheckoutFacade struct {
	Sessions *SessionRegistry

	runner          FlowRunner
	locker          FlowLocker     // optional
	limiter         AttemptLimiter // optional
	lockTTL         time.Duration
	defaultCurrency string
	log             *zerolog.Logger
}

type FacadeOptions struct {
	Locker          FlowLocker
	Limiter         AttemptLimiter
	LockTTL         time.Duration
	DefaultCurrency string
}

func NewCheckoutFacade(sessions *SessionRegistry, runner FlowRunner, opts FacadeOptions, logger *zerolog.Logger) *CheckoutFacade {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 20 * time.Minute
	}
	return &CheckoutFacade{
		Sessions:        sessions,
		runner:          runner,
		locker:          opts.Locker,
		limiter:         opts.Limiter,
		lockTTL:         opts.LockTTL,
		defaultCurrency: opts.DefaultCurrency,
		log:             logger,
	}
}

func (f *CheckoutFacade) Open() model.CheckoutView {
	return f.Sessions.Create().Snapshot()
}

func (f *CheckoutFacade) View(id string) (model.CheckoutView, error) {
	c, err := f.Sessions.Get(id)
	if err != nil {
		return model.CheckoutView{}, err
	}
	return c.Snapshot(), nil
}

func (f *CheckoutFacade) Close(id string) error {
	return f.Sessions.Delete(id)
}

func (f *CheckoutFacade) SetUser(ctx context.Context, id, userID string) (model.UserSnapshot, error) {
	c, err := f.Sessions.Get(id)
	if err != nil {
		return model.UserSnapshot{}, err
	}
	return c.SetUser(ctx, userID)
}

func (f *CheckoutFacade) SelectPurpose(ctx context.Context, id, purpose string) ([]model.Coupon, error) {
	c, err := f.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	p, err := model.ParsePurpose(purpose)
	if err != nil {
		return nil, domain.NewValidationError(domain.ReasonInvalidPurpose, "unknown payment purpose %q", purpose)
	}
	return c.SelectPurpose(ctx, p)
}

func (f *CheckoutFacade) SelectTarget(ctx context.Context, id string, targetID uint64) (*model.AmountQuote, error) {
	c, err := f.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return c.SelectTarget(ctx, targetID)
}

func (f *CheckoutFacade) ApplyCoupon(ctx context.Context, id, code string) (*model.AppliedDiscount, error) {
	c, err := f.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if f.limiter != nil && strings.TrimSpace(code) != "" {
		ok, _, err := f.limiter.Allow(ctx, "rate_limit:coupon:"+id)
		if err != nil {
			logging.With(ctx, f.log).Warn().Err(err).Msg("coupon rate limiter unavailable; allowing attempt")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}
	return c.ApplyCoupon(ctx, code)
}

// begin validates the submission, claims the checkout and takes the user's
// payment lock. release must be called once the flow is over or aborted.
func (f *CheckoutFacade) begin(ctx context.Context, id string, in model.SubmitInput) (flow *usecase.Flow, release func(context.Context), err error) {
	c, err := f.Sessions.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(in.Currency) == "" {
		in.Currency = f.defaultCurrency
	}
	flow, err = c.Begin(in)
	if err != nil {
		return nil, nil, err
	}
	release = func(context.Context) {}
	if f.locker == nil {
		return flow, release, nil
	}

	lockKey := "checkout_flow:" + flow.Request().UserID
	token, err := f.locker.TryLock(ctx, lockKey, f.lockTTL)
	if err != nil {
		if !errors.Is(err, domain.ErrFlowInProgress) {
			err = fmt.Errorf("acquire payment lock: %w", err)
		}
		flow.Abort(err)
		return nil, nil, err
	}
	release = func(ctx context.Context) {
		if err := f.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			logging.With(ctx, f.log).Warn().Err(err).Msg("failed to release payment lock")
		}
	}
	return flow, release, nil
}

// Submit validates synchronously and runs the rest of the flow in the
// background. The returned request is what will be sent to the backend.
func (f *CheckoutFacade) Submit(ctx context.Context, id string, in model.SubmitInput) (model.PaymentRequest, error) {
	flow, release, err := f.begin(ctx, id, in)
	if err != nil {
		return model.PaymentRequest{}, err
	}
	req := flow.Request()

	traceID := logging.TraceID(ctx)
	task := func(ctx context.Context) error {
		if traceID != "" {
			ctx = logging.WithTraceID(ctx, traceID)
		}
		defer release(ctx)
		_, err := flow.Run(ctx)
		if domain.IsLocal(err) {
			return nil
		}
		return err
	}
	if err := f.runner.Submit(task); err != nil {
		logging.With(ctx, f.log).Warn().Err(err).Str("session_id", id).Msg("could not queue payment flow")
		flow.Abort(domain.ErrQueueFull)
		release(ctx)
		return model.PaymentRequest{}, domain.ErrQueueFull
	}
	return req, nil
}

// SubmitAndWait runs the whole flow on the caller's goroutine, under the same
// payment lock as Submit.
func (f *CheckoutFacade) SubmitAndWait(ctx context.Context, id string, in model.SubmitInput) (*model.Receipt, error) {
	flow, release, err := f.begin(ctx, id, in)
	if err != nil {
		return nil, err
	}
	defer release(ctx)
	return flow.Run(ctx)
}
