package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/domain/ports/repository"
	"xtrace-checkout/internal/infra/logging"
	"xtrace-checkout/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

var errFlowConsumed = errors.New("payment flow already ran or was aborted")

// CheckoutUseCase builds checkout sessions. A Checkout is the state of one
// payment form: who pays, for what, how much, and the submission in progress.
type CheckoutUseCase interface {
	New(sessionID string) *Checkout
}

// CheckoutDeps are the collaborators shared by all checkouts.
type CheckoutDeps struct {
	Eligibility EligibilityUseCase
	Balances    BalanceUseCase
	Coupons     CouponUseCase
	Amounts     AmountUseCase
	Effects     EffectDispatcher
	Backend     adapter.LedgerBackend
	Gateway     adapter.PaymentGateway
	Receipts    repository.ReceiptRepository // optional
	Now         func() time.Time             // optional, defaults to time.Now
}

type checkoutUC struct {
	deps CheckoutDeps
	log  *zerolog.Logger
}

func NewCheckoutUseCase(deps CheckoutDeps, logger *zerolog.Logger) *checkoutUC {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &checkoutUC{deps: deps, log: logger}
}

func (u *checkoutUC) New(sessionID string) *Checkout {
	l := u.log.With().Str("session_id", sessionID).Logger()
	return &Checkout{
		id:        sessionID,
		deps:      &u.deps,
		log:       &l,
		state:     model.StateIdle,
		updatedAt: u.deps.Now(),
	}
}

// generations are bumped by every change that makes an in-flight response stale.
type generations struct {
	user     uint64 // identity changes
	purpose  uint64 // purpose changes (coupon listings)
	quote    uint64 // purpose and target changes (amount lookups)
	discount uint64 // purpose, target and coupon changes (coupon application)
}

// Checkout is one payment form instance. Its methods may be called from any
// goroutine; the mutex is never held across a network call. A response that
// arrives after the input it answers has changed is discarded with
// domain.ErrStaleResponse.
type Checkout struct {
	id   string
	deps *CheckoutDeps
	log  *zerolog.Logger

	mu          sync.Mutex
	gen         generations
	state       model.FlowState
	userID      string
	blocked     bool
	checking    bool // eligibility of userID not yet known
	wallet      model.Balance
	card        model.Balance
	purpose     model.Purpose
	target      model.Target
	quote       *model.AmountQuote
	discount    *model.AppliedDiscount
	coupons     []model.Coupon
	orderID     string
	lastMessage string
	lastReceipt *model.Receipt
	updatedAt   time.Time
}

func (c *Checkout) ID() string { return c.id }

func (c *Checkout) ctx(ctx context.Context) context.Context {
	return logging.WithSessionID(ctx, c.id)
}

// setState must be called with c.mu held.
func (c *Checkout) setState(to model.FlowState) {
	if c.state != to {
		metrics.IncTransition(c.state.String(), to.String())
		c.log.Debug().Str("from", c.state.String()).Str("to", to.String()).Msg("checkout transition")
	}
	c.state = to
	c.updatedAt = c.deps.Now()
}

// touch must be called with c.mu held.
func (c *Checkout) touch() { c.updatedAt = c.deps.Now() }

// guardMutation must be called with c.mu held.
func (c *Checkout) guardMutation() error {
	if c.state.InFlight() {
		return domain.ErrFlowInProgress
	}
	if c.blocked {
		return &domain.UserBlockedError{}
	}
	return nil
}

// SetUser switches the paying user. Eligibility and both balances are fetched
// concurrently. A previous user's blocked status never carries over.
func (c *Checkout) SetUser(ctx context.Context, userID string) (model.UserSnapshot, error) {
	defer logging.TraceDuration(c.log, "Checkout.SetUser")()
	userID = strings.TrimSpace(userID)

	c.mu.Lock()
	if c.state.InFlight() {
		c.mu.Unlock()
		return model.UserSnapshot{}, domain.ErrFlowInProgress
	}
	c.gen.user++
	g := c.gen.user
	c.userID = userID
	c.blocked = false
	c.checking = userID != ""
	c.wallet, c.card = model.UnavailableBalance(), model.UnavailableBalance()
	c.touch()
	c.mu.Unlock()

	snap := model.UserSnapshot{UserID: userID}
	if userID == "" {
		return snap, nil
	}

	ctx = logging.WithUserID(c.ctx(ctx), userID)
	var (
		blocked  bool
		checkErr error
		eg       errgroup.Group
	)
	eg.Go(func() error {
		blocked, checkErr = c.deps.Eligibility.Check(ctx, userID)
		return nil
	})
	eg.Go(func() error {
		snap.Wallet, snap.Card = c.deps.Balances.Both(ctx, userID)
		return nil
	})
	_ = eg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.user != g {
		return model.UserSnapshot{}, domain.ErrStaleResponse
	}
	c.blocked = blocked
	c.checking = false
	c.wallet, c.card = snap.Wallet, snap.Card
	snap.Blocked = blocked
	switch {
	case blocked:
		c.lastMessage = (&domain.UserBlockedError{}).Error()
	case checkErr != nil:
		snap.Warning = "Error checking user status. Please try again."
		c.lastMessage = snap.Warning
	}
	c.touch()
	return snap, nil
}

// SelectPurpose switches the payment purpose. The target, quote and any applied
// discount are dropped and the purpose's coupons are listed.
func (c *Checkout) SelectPurpose(ctx context.Context, purpose model.Purpose) ([]model.Coupon, error) {
	defer logging.TraceDuration(c.log, "Checkout.SelectPurpose")()
	if !purpose.Valid() {
		return nil, domain.NewValidationError(domain.ReasonInvalidPurpose, "unknown payment purpose %q", string(purpose))
	}

	c.mu.Lock()
	if c.state.InFlight() {
		c.mu.Unlock()
		return nil, domain.ErrFlowInProgress
	}
	c.gen.purpose++
	c.gen.quote++
	c.gen.discount++
	g := c.gen.purpose
	c.purpose = purpose
	c.target = nil
	c.quote = nil
	c.discount = nil
	c.coupons = nil
	c.setState(model.StateIdle)
	c.mu.Unlock()

	coupons := c.deps.Coupons.List(c.ctx(ctx), purpose)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.purpose != g {
		return nil, domain.ErrStaleResponse
	}
	c.coupons = coupons
	c.touch()
	return coupons, nil
}

// SelectTarget sets the id paid for under the current purpose and fetches its
// amount. On failure the amount stays unset and the checkout stays Idle.
func (c *Checkout) SelectTarget(ctx context.Context, targetID uint64) (*model.AmountQuote, error) {
	defer logging.TraceDuration(c.log, "Checkout.SelectTarget")()

	c.mu.Lock()
	if c.state.InFlight() {
		c.mu.Unlock()
		return nil, domain.ErrFlowInProgress
	}
	if c.purpose == "" {
		c.mu.Unlock()
		return nil, domain.NewValidationError(domain.ReasonMissingFields, "select a payment purpose first")
	}
	target, err := model.NewTarget(c.purpose, targetID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.gen.quote++
	c.gen.discount++
	g := c.gen.quote
	c.target = target
	c.quote = nil
	c.discount = nil
	c.setState(model.StateIdle)
	c.mu.Unlock()

	quote, err := c.deps.Amounts.Resolve(c.ctx(ctx), target)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.quote != g {
		c.log.Debug().Uint64("target_id", targetID).Msg("discarding stale amount response")
		return nil, domain.ErrStaleResponse
	}
	if err != nil {
		c.lastMessage = err.Error()
		c.touch()
		return nil, err
	}
	c.quote = quote
	c.setState(model.StateQuoted)
	return quote, nil
}

// ApplyCoupon applies code to the current quote. An empty code removes any
// applied discount. A rejected code leaves the amount at the quote.
func (c *Checkout) ApplyCoupon(ctx context.Context, code string) (*model.AppliedDiscount, error) {
	defer logging.TraceDuration(c.log, "Checkout.ApplyCoupon")()
	code = strings.TrimSpace(code)

	c.mu.Lock()
	if err := c.guardMutation(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.quote == nil {
		c.mu.Unlock()
		return nil, domain.NewValidationError(domain.ReasonMissingFields, "no amount to apply a coupon to")
	}
	c.gen.discount++
	g := c.gen.discount
	base := c.quote.OriginalAmount
	c.discount = nil
	c.setState(model.StateQuoted)
	if code == "" {
		c.lastMessage = "Original Amount: " + base.StringFixed(2)
		c.mu.Unlock()
		return nil, nil
	}
	c.mu.Unlock()

	applied, err := c.deps.Coupons.Apply(c.ctx(ctx), code, base)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.discount != g {
		return nil, domain.ErrStaleResponse
	}
	if err != nil {
		c.lastMessage = err.Error()
		c.touch()
		return nil, err
	}
	c.discount = applied
	c.lastMessage = fmt.Sprintf("Coupon applied! Discount: %s. Final Amount: %s",
		applied.DiscountAmount.StringFixed(2), applied.FinalAmount.StringFixed(2))
	c.setState(model.StateDiscounted)
	return applied, nil
}

// amount must be called with c.mu held. nil means unset.
func (c *Checkout) amount() *decimal.Decimal {
	switch {
	case c.discount != nil:
		a := c.discount.FinalAmount
		return &a
	case c.quote != nil:
		a := c.quote.OriginalAmount
		return &a
	}
	return nil
}

// Begin runs the submission gate and, when it passes, claims the checkout for
// one flow. Nothing is sent to the network. The returned Flow must be Run.
func (c *Checkout) Begin(in model.SubmitInput) (*Flow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardMutation(); err != nil {
		return nil, err
	}
	if c.checking {
		return nil, domain.ErrEligibilityPending
	}
	req, err := c.validate(in)
	if err != nil {
		c.lastMessage = err.Error()
		c.log.Debug().Err(err).Msg("submission rejected by validation")
		return nil, err
	}

	// A finished flow is re-entered from the quote it was submitted with.
	resume := c.state
	if resume == model.StateSettled || resume == model.StateRejected {
		resume = model.StateQuoted
		if c.discount != nil {
			resume = model.StateDiscounted
		}
	}
	f := &Flow{c: c, req: req, resume: resume}
	c.orderID = ""
	c.setState(model.StateSubmitting)
	return f, nil
}

// validate must be called with c.mu held. First failure wins.
func (c *Checkout) validate(in model.SubmitInput) (*model.PaymentRequest, error) {
	amount := c.amount()
	currency := strings.TrimSpace(in.Currency)
	if c.userID == "" || amount == nil || currency == "" || c.purpose == "" || c.target == nil {
		return nil, domain.NewValidationError(domain.ReasonMissingFields, "Please fill in all required fields.")
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError(domain.ReasonNonPositiveAmount, "Amount must be greater than 0.")
	}

	req := &model.PaymentRequest{
		UserID:   c.userID,
		Amount:   *amount,
		Currency: currency,
		Target:   c.target,
	}
	if c.discount != nil {
		req.CouponCode = c.discount.CouponCode
	}
	if c.purpose == model.PurposeCardTopup {
		cardType := strings.TrimSpace(in.CardType)
		if cardType == "" {
			return nil, domain.NewValidationError(domain.ReasonMissingTier, "Please select a card type.")
		}
		if min := model.TierMinimum(cardType); amount.LessThan(min) {
			return nil, domain.NewValidationError(domain.ReasonBelowMinimum,
				"Minimum top-up for %s card is %s.", cardType, min.StringFixed(2))
		}
		req.CardType = cardType
	}
	return req, nil
}

// Submit is Begin followed by Run.
func (c *Checkout) Submit(ctx context.Context, in model.SubmitInput) (*model.Receipt, error) {
	f, err := c.Begin(in)
	if err != nil {
		return nil, err
	}
	return f.Run(ctx)
}

// Busy reports whether a flow currently owns the checkout.
func (c *Checkout) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.InFlight()
}

func (c *Checkout) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

func (c *Checkout) Snapshot() model.CheckoutView {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := model.CheckoutView{
		SessionID:   c.id,
		State:       c.state,
		UserID:      c.userID,
		Blocked:     c.blocked,
		Purpose:     c.purpose,
		Amount:      c.amount(),
		OrderID:     c.orderID,
		Wallet:      c.wallet,
		Card:        c.card,
		LastMessage: c.lastMessage,
		LastReceipt: c.lastReceipt,
		UpdatedAt:   c.updatedAt,
	}
	if c.target != nil {
		v.TargetID = c.target.ID()
	}
	if c.quote != nil {
		q := *c.quote
		v.Quote = &q
	}
	if c.discount != nil {
		d := *c.discount
		v.Discount = &d
	}
	v.Coupons = append([]model.Coupon(nil), c.coupons...)
	return v
}

// Flow is one submission, from order creation to settlement or rejection.
type Flow struct {
	c      *Checkout
	req    *model.PaymentRequest
	resume model.FlowState // state to return to when no order was created
	once   sync.Once
}

func (f *Flow) Request() model.PaymentRequest { return *f.req }

func (f *Flow) transition(to model.FlowState) {
	f.c.mu.Lock()
	f.c.setState(to)
	f.c.mu.Unlock()
}

// Run drives the flow to its end. It is not retried: a failed flow needs a new
// submission, which creates a new order.
//
// The receipt is nil only when the order could not be created. A settled
// receipt may carry an EffectError; the payment is settled regardless.
func (f *Flow) Run(ctx context.Context) (*model.Receipt, error) {
	rec, err := (*model.Receipt)(nil), errFlowConsumed
	f.once.Do(func() { rec, err = f.run(ctx) })
	return rec, err
}

// Abort releases a flow that will not be run and returns the checkout to the
// state it was submitted from. It does nothing once Run has started.
func (f *Flow) Abort(reason error) {
	f.once.Do(func() {
		c := f.c
		c.mu.Lock()
		defer c.mu.Unlock()
		if reason != nil {
			c.lastMessage = reason.Error()
		}
		c.setState(f.resume)
	})
}

func (f *Flow) run(ctx context.Context) (*model.Receipt, error) {
	c, req := f.c, f.req
	defer logging.TraceDuration(c.log, "Flow.Run")()
	ctx = logging.WithUserID(c.ctx(ctx), req.UserID)
	l := logging.With(ctx, c.log)

	order, err := c.deps.Backend.CreateOrder(ctx, req)
	if err != nil {
		return nil, f.orderFailed(ctx, err)
	}
	ctx = logging.WithOrderID(ctx, order.OrderID)
	l = logging.With(ctx, c.log)
	charge := order.ChargeAmount(req.Amount)
	l.Info().
		Str("purpose", req.Purpose().String()).
		Str("original_amount", order.OriginalAmount.StringFixed(2)).
		Str("discounted_amount", order.DiscountedAmount.StringFixed(2)).
		Msg("order created")
	c.mu.Lock()
	c.orderID = order.OrderID
	c.lastMessage = fmt.Sprintf("Order Creation Successful! Order ID: %s", order.OrderID)
	c.setState(model.StateOrderCreated)
	c.mu.Unlock()

	rec := f.newReceipt(order.OrderID, charge)

	f.transition(model.StateGatewayPending)
	success, err := c.deps.Gateway.Collect(ctx, model.GatewayOrder{
		OrderID:     order.OrderID,
		AmountMinor: model.MinorUnits(charge),
		Currency:    req.Currency,
		Description: "Payment for Order",
	})
	if err != nil {
		var ge *domain.GatewayError
		if !errors.As(err, &ge) {
			// The gateway went quiet; whether money moved is unknown.
			err = &domain.VerificationError{Message: "Payment status is unknown", Err: err}
		}
		return f.reject(ctx, rec, err)
	}
	rec.PaymentID = success.PaymentID

	f.transition(model.StateVerifying)
	res, err := c.deps.Backend.VerifyPayment(ctx, model.GatewaySuccess{
		OrderID:   order.OrderID,
		PaymentID: success.PaymentID,
		Signature: success.Signature,
	})
	switch {
	case err != nil && domain.IsUserBlocked(err):
		return f.reject(ctx, rec, &domain.UserBlockedError{})
	case err != nil:
		return f.reject(ctx, rec, &domain.VerificationError{Message: "Error verifying payment", Err: err})
	case !res.Verified && domain.IsUserBlockedMessage(res.Error):
		return f.reject(ctx, rec, &domain.UserBlockedError{})
	case !res.Verified:
		msg := res.Error
		if msg == "" {
			msg = "Payment verification failed"
		}
		return f.reject(ctx, rec, &domain.VerificationError{Message: msg})
	}

	return f.settle(ctx, rec, res), nil
}

func (f *Flow) newReceipt(orderID string, charge decimal.Decimal) *model.Receipt {
	return &model.Receipt{
		ID:         newReceiptID(),
		SessionID:  f.c.id,
		UserID:     f.req.UserID,
		OrderID:    orderID,
		Purpose:    f.req.Purpose(),
		TargetID:   f.req.Target.ID(),
		Amount:     charge,
		Currency:   f.req.Currency,
		CouponCode: f.req.CouponCode,
		CreatedAt:  f.c.deps.Now(),
	}
}

func (f *Flow) orderFailed(ctx context.Context, cause error) error {
	c := f.c
	var err error
	if domain.IsUserBlocked(cause) {
		err = &domain.UserBlockedError{}
	} else {
		err = &domain.OrderCreationError{Message: domain.ErrorMessage(cause), Err: cause}
	}
	logging.With(ctx, c.log).Warn().Err(cause).Str("class", domain.ErrorClass(err)).Msg("order creation failed")
	metrics.IncFlow("order_failed", f.req.Purpose().String())

	c.mu.Lock()
	defer c.mu.Unlock()
	if domain.IsUserBlocked(err) {
		c.blocked = true
	}
	c.lastMessage = err.Error()
	c.setState(f.resume)
	return err
}

func (f *Flow) reject(ctx context.Context, rec *model.Receipt, err error) (*model.Receipt, error) {
	c := f.c
	l := logging.With(ctx, c.log)
	ev := l.Warn().Err(err).Str("class", domain.ErrorClass(err))
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		ev = ev.Str("code", ge.Code).Str("reason", ge.Reason).Interface("metadata", ge.Metadata)
	}
	ev.Msg("payment rejected")
	metrics.IncFlow("rejected", f.req.Purpose().String())

	rec.State = model.StateRejected
	rec.ErrorClass = domain.ErrorClass(err)
	rec.ErrorMessage = err.Error()
	rec.Message = err.Error()

	c.mu.Lock()
	if domain.IsUserBlocked(err) {
		c.blocked = true
	}
	c.lastMessage = rec.Message
	c.lastReceipt = rec
	c.setState(model.StateRejected)
	c.mu.Unlock()

	f.journal(ctx, rec)
	return rec, err
}

func (f *Flow) settle(ctx context.Context, rec *model.Receipt, res *model.VerificationResult) *model.Receipt {
	c := f.c
	l := logging.With(ctx, c.log)
	purpose := res.Purpose
	if !purpose.Valid() {
		l.Warn().Str("verified_purpose", purpose.String()).Str("purpose", f.req.Purpose().String()).
			Msg("verification response has no known purpose; using the submitted one")
		purpose = f.req.Purpose()
	}
	l.Info().Str("purpose", purpose.String()).Msg("payment verified")

	f.transition(model.StateSettled)
	metrics.AddCharged(rec.Currency, rec.Amount.InexactFloat64())

	out := c.deps.Effects.Dispatch(ctx, EffectInput{
		UserID:   f.req.UserID,
		Purpose:  purpose,
		Target:   f.req.Target,
		Amount:   f.req.Amount,
		Currency: f.req.Currency,
		CardType: f.req.CardType,
	})

	rec.State = model.StateSettled
	rec.EffectAmount = out.TopupAmount
	rec.Message = strings.TrimSpace(res.Message + " " + out.Message)
	if out.Err != nil {
		rec.EffectError = out.Err
		rec.ErrorClass = domain.ErrorClass(out.Err)
		rec.ErrorMessage = out.Err.Error()
		metrics.IncFlow("effect_failed", purpose.String())
	} else {
		metrics.IncFlow("settled", purpose.String())
	}

	c.mu.Lock()
	c.wallet, c.card = out.Wallet, out.Card
	c.lastMessage = rec.Message
	c.lastReceipt = rec
	c.touch()
	c.mu.Unlock()

	f.journal(ctx, rec)
	return rec
}

// journal records the receipt; a failed write is logged and never changes the outcome.
func (f *Flow) journal(ctx context.Context, rec *model.Receipt) {
	if f.c.deps.Receipts == nil {
		return
	}
	if err := f.c.deps.Receipts.Save(ctx, nil, rec); err != nil {
		logging.With(ctx, f.c.log).Error().Err(err).Str("receipt_id", rec.ID).Msg("failed to journal receipt")
	}
}

func newReceiptID() string { return ulid.Make().String() }
