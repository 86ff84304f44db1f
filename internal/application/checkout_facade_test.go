//go:build !integration

package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/application"
	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/logging"
	"xtrace-checkout/internal/usecase"
)

// ---- fakes ----

type fakeBackend struct {
	mu       sync.Mutex
	orders   []*model.PaymentRequest
	verifies int
}

var _ adapter.LedgerBackend = (*fakeBackend)(nil)

func (b *fakeBackend) WalletBalance(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(10), nil
}
func (b *fakeBackend) CardBalance(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(5), nil
}
func (b *fakeBackend) UserStatus(context.Context, string) (adapter.UserStatus, error) {
	return adapter.UserStatus{}, nil
}
func (b *fakeBackend) PaymentAmount(context.Context, model.Purpose, uint64) (decimal.Decimal, error) {
	return decimal.NewFromInt(120), nil
}
func (b *fakeBackend) Coupons(context.Context, model.Purpose) ([]model.Coupon, error) {
	return nil, nil
}
func (b *fakeBackend) ApplyCoupon(_ context.Context, _ string, amount decimal.Decimal) (decimal.Decimal, error) {
	return decimal.NewFromInt(20), nil
}
func (b *fakeBackend) CreateOrder(_ context.Context, req *model.PaymentRequest) (*model.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, req)
	return &model.Order{OrderID: "order_1", OriginalAmount: req.Amount}, nil
}
func (b *fakeBackend) VerifyPayment(context.Context, model.GatewaySuccess) (*model.VerificationResult, error) {
	b.mu.Lock()
	b.verifies++
	b.mu.Unlock()
	return &model.VerificationResult{Verified: true, Purpose: model.PurposeSubscription, Message: "ok"}, nil
}
func (b *fakeBackend) CardTopup(_ context.Context, _ string, _ uint64, amount decimal.Decimal, _ string) (*model.TopupResult, error) {
	return &model.TopupResult{Amount: amount}, nil
}

func (b *fakeBackend) orderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

type fakeGateway struct{}

func (fakeGateway) Name() string { return "fake" }
func (fakeGateway) Collect(_ context.Context, o model.GatewayOrder) (model.GatewaySuccess, error) {
	return model.GatewaySuccess{OrderID: o.OrderID, PaymentID: "pay_1", Signature: "sig"}, nil
}

// RunnerFunc adapts a function to FlowRunner.
type RunnerFunc func(task func(ctx context.Context) error) error

func (f RunnerFunc) Submit(task func(ctx context.Context) error) error { return f(task) }

func inline() application.FlowRunner {
	return RunnerFunc(func(task func(ctx context.Context) error) error { return task(context.Background()) })
}

type fakeLocker struct {
	mu       sync.Mutex
	TryFunc  func(key string) (string, error)
	keys     []string
	unlocked []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	if l.TryFunc != nil {
		return l.TryFunc(key)
	}
	return "tok", nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked = append(l.unlocked, key+"/"+token)
	return nil
}

type LimiterFunc func(key string) (bool, int, error)

func (f LimiterFunc) Allow(_ context.Context, key string) (bool, int, error) { return f(key) }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRegistry(b *fakeBackend, now func() time.Time) *application.SessionRegistry {
	logger := logging.Nop()
	balances := usecase.NewBalanceUseCase(b, logger)
	uc := usecase.NewCheckoutUseCase(usecase.CheckoutDeps{
		Eligibility: usecase.NewEligibilityUseCase(b, logger),
		Balances:    balances,
		Coupons:     usecase.NewCouponUseCase(nil, b, logger),
		Amounts:     usecase.NewAmountUseCase(b, logger),
		Effects:     usecase.NewEffectDispatcher(b, balances, logger),
		Backend:     b,
		Gateway:     fakeGateway{},
		Now:         now,
	}, logger)
	return application.NewSessionRegistry(uc)
}

// quotedSession opens a session with user 7 and a subscription quote of 120.
func quotedSession(t *testing.T, f *application.CheckoutFacade) string {
	t.Helper()
	ctx := context.Background()
	id := f.Open().SessionID
	if _, err := f.SetUser(ctx, id, "7"); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if _, err := f.SelectPurpose(ctx, id, "subscription"); err != nil {
		t.Fatalf("SelectPurpose: %v", err)
	}
	if _, err := f.SelectTarget(ctx, id, 3); err != nil {
		t.Fatalf("SelectTarget: %v", err)
	}
	return id
}

// ---- tests ----

func TestCheckoutFacade_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("should apply the default currency and settle", func(t *testing.T) {
		b := &fakeBackend{}
		locker := &fakeLocker{}
		f := application.NewCheckoutFacade(newRegistry(b, nil), inline(),
			application.FacadeOptions{DefaultCurrency: "AED", Locker: locker}, logging.Nop())
		id := quotedSession(t, f)

		req, err := f.Submit(ctx, id, model.SubmitInput{})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if req.Currency != "AED" || !req.Amount.Equal(decimal.NewFromInt(120)) {
			t.Errorf("request = %+v", req)
		}
		v, _ := f.View(id)
		if v.State != model.StateSettled || b.verifies != 1 {
			t.Errorf("state = %s, verifies = %d", v.State, b.verifies)
		}
		if len(locker.keys) != 1 || locker.keys[0] != "checkout_flow:7" {
			t.Errorf("lock keys = %v", locker.keys)
		}
		if len(locker.unlocked) != 1 || locker.unlocked[0] != "checkout_flow:7/tok" {
			t.Errorf("unlocked = %v", locker.unlocked)
		}
	})

	t.Run("should refuse when another process holds the user's lock", func(t *testing.T) {
		b := &fakeBackend{}
		locker := &fakeLocker{TryFunc: func(string) (string, error) { return "", domain.ErrFlowInProgress }}
		f := application.NewCheckoutFacade(newRegistry(b, nil), inline(),
			application.FacadeOptions{DefaultCurrency: "INR", Locker: locker}, logging.Nop())
		id := quotedSession(t, f)

		_, err := f.Submit(ctx, id, model.SubmitInput{})
		if !errors.Is(err, domain.ErrFlowInProgress) {
			t.Fatalf("err = %v", err)
		}
		v, _ := f.View(id)
		if v.State != model.StateQuoted || b.orderCount() != 0 {
			t.Errorf("state = %s, orders = %d", v.State, b.orderCount())
		}
	})

	t.Run("should release the checkout when the queue is full", func(t *testing.T) {
		b := &fakeBackend{}
		locker := &fakeLocker{}
		full := RunnerFunc(func(func(ctx context.Context) error) error { return errors.New("worker queue full") })
		f := application.NewCheckoutFacade(newRegistry(b, nil), full,
			application.FacadeOptions{DefaultCurrency: "INR", Locker: locker}, logging.Nop())
		id := quotedSession(t, f)

		_, err := f.Submit(ctx, id, model.SubmitInput{})
		if !errors.Is(err, domain.ErrQueueFull) {
			t.Fatalf("err = %v", err)
		}
		v, _ := f.View(id)
		if v.State != model.StateQuoted || v.LastMessage != domain.ErrQueueFull.Error() {
			t.Errorf("view = %s %q", v.State, v.LastMessage)
		}
		if len(locker.unlocked) != 1 {
			t.Errorf("lock not released: %v", locker.unlocked)
		}
		if err := f.Close(id); err != nil {
			t.Errorf("Close after abort: %v", err)
		}
	})

	t.Run("should not lock when validation fails", func(t *testing.T) {
		locker := &fakeLocker{}
		f := application.NewCheckoutFacade(newRegistry(&fakeBackend{}, nil), inline(),
			application.FacadeOptions{DefaultCurrency: "INR", Locker: locker}, logging.Nop())
		id := f.Open().SessionID

		_, err := f.Submit(ctx, id, model.SubmitInput{})
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Reason != domain.ReasonMissingFields {
			t.Fatalf("err = %v", err)
		}
		if len(locker.keys) != 0 {
			t.Errorf("locked on invalid input: %v", locker.keys)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		f := application.NewCheckoutFacade(newRegistry(&fakeBackend{}, nil), inline(), application.FacadeOptions{}, logging.Nop())
		if _, err := f.Submit(ctx, "nope", model.SubmitInput{}); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestCheckoutFacade_SubmitAndWait(t *testing.T) {
	ctx := context.Background()

	t.Run("should settle inline under the user's lock", func(t *testing.T) {
		b := &fakeBackend{}
		locker := &fakeLocker{}
		f := application.NewCheckoutFacade(newRegistry(b, nil), inline(),
			application.FacadeOptions{DefaultCurrency: "INR", Locker: locker}, logging.Nop())
		id := quotedSession(t, f)

		rec, err := f.SubmitAndWait(ctx, id, model.SubmitInput{})
		if err != nil {
			t.Fatalf("SubmitAndWait: %v", err)
		}
		if !rec.Settled() || rec.Currency != "INR" || rec.OrderID != "order_1" {
			t.Errorf("receipt = %+v", rec)
		}
		if len(locker.keys) != 1 || locker.keys[0] != "checkout_flow:7" {
			t.Errorf("lock keys = %v", locker.keys)
		}
		if len(locker.unlocked) != 1 || locker.unlocked[0] != "checkout_flow:7/tok" {
			t.Errorf("unlocked = %v", locker.unlocked)
		}
	})

	t.Run("should create no order while another flow holds the lock", func(t *testing.T) {
		b := &fakeBackend{}
		locker := &fakeLocker{TryFunc: func(string) (string, error) { return "", domain.ErrFlowInProgress }}
		f := application.NewCheckoutFacade(newRegistry(b, nil), inline(),
			application.FacadeOptions{DefaultCurrency: "INR", Locker: locker}, logging.Nop())
		id := quotedSession(t, f)

		rec, err := f.SubmitAndWait(ctx, id, model.SubmitInput{})
		if rec != nil || !errors.Is(err, domain.ErrFlowInProgress) {
			t.Fatalf("got %+v, %v", rec, err)
		}
		if b.orderCount() != 0 {
			t.Errorf("orders = %d, want 0", b.orderCount())
		}
		v, _ := f.View(id)
		if v.State != model.StateQuoted {
			t.Errorf("state = %s, want quoted", v.State)
		}
		if len(locker.unlocked) != 0 {
			t.Errorf("released a lock it never held: %v", locker.unlocked)
		}
	})
}

func TestCheckoutFacade_ApplyCoupon(t *testing.T) {
	ctx := context.Background()

	t.Run("should stop once the limiter refuses", func(t *testing.T) {
		var keys []string
		limiter := LimiterFunc(func(key string) (bool, int, error) {
			keys = append(keys, key)
			return len(keys) <= 1, 0, nil
		})
		f := application.NewCheckoutFacade(newRegistry(&fakeBackend{}, nil), inline(),
			application.FacadeOptions{Limiter: limiter}, logging.Nop())
		id := quotedSession(t, f)

		d, err := f.ApplyCoupon(ctx, id, "SAVE")
		if err != nil || !d.FinalAmount.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("first attempt: %+v, %v", d, err)
		}
		if _, err := f.ApplyCoupon(ctx, id, "SAVE"); !errors.Is(err, domain.ErrRateLimited) {
			t.Errorf("second attempt err = %v", err)
		}
		if keys[0] != "rate_limit:coupon:"+id {
			t.Errorf("key = %q", keys[0])
		}
	})

	t.Run("should allow the attempt when the limiter is down", func(t *testing.T) {
		limiter := LimiterFunc(func(string) (bool, int, error) { return false, 0, errors.New("redis down") })
		f := application.NewCheckoutFacade(newRegistry(&fakeBackend{}, nil), inline(),
			application.FacadeOptions{Limiter: limiter}, logging.Nop())
		id := quotedSession(t, f)
		if _, err := f.ApplyCoupon(ctx, id, "SAVE"); err != nil {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("should not count clearing the coupon", func(t *testing.T) {
		calls := 0
		limiter := LimiterFunc(func(string) (bool, int, error) { calls++; return false, 0, nil })
		f := application.NewCheckoutFacade(newRegistry(&fakeBackend{}, nil), inline(),
			application.FacadeOptions{Limiter: limiter}, logging.Nop())
		id := quotedSession(t, f)
		d, err := f.ApplyCoupon(ctx, id, "  ")
		if d != nil || err != nil || calls != 0 {
			t.Errorf("got %+v, %v, limiter calls = %d", d, err, calls)
		}
	})
}

func TestCheckoutFacade_SelectPurpose_Unknown(t *testing.T) {
	f := application.NewCheckoutFacade(newRegistry(&fakeBackend{}, nil), inline(), application.FacadeOptions{}, logging.Nop())
	id := f.Open().SessionID
	_, err := f.SelectPurpose(context.Background(), id, "gift")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Reason != domain.ReasonInvalidPurpose {
		t.Errorf("err = %v", err)
	}
}

func TestSessionRegistry(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := &fakeBackend{}
	reg := newRegistry(b, clk.Now)

	stale := reg.Create()
	clk.Advance(2 * time.Hour)
	fresh := reg.Create()
	if reg.Len() != 2 {
		t.Fatalf("len = %d", reg.Len())
	}

	t.Run("Get", func(t *testing.T) {
		got, err := reg.Get(fresh.ID())
		if err != nil || got != fresh {
			t.Errorf("Get = %v, %v", got, err)
		}
		if _, err := reg.Get("missing"); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("Sweep removes only idle sessions", func(t *testing.T) {
		if n := reg.Sweep(clk.Now().Add(-time.Hour)); n != 1 {
			t.Errorf("swept %d, want 1", n)
		}
		if _, err := reg.Get(stale.ID()); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Error("stale session survived")
		}
	})

	t.Run("Delete refuses a busy session", func(t *testing.T) {
		ctx := context.Background()
		if _, err := fresh.SetUser(ctx, "7"); err != nil {
			t.Fatal(err)
		}
		if _, err := fresh.SelectPurpose(ctx, model.PurposeBooking); err != nil {
			t.Fatal(err)
		}
		if _, err := fresh.SelectTarget(ctx, 1); err != nil {
			t.Fatal(err)
		}
		flow, err := fresh.Begin(model.SubmitInput{Currency: "INR"})
		if err != nil {
			t.Fatal(err)
		}
		if err := reg.Delete(fresh.ID()); !errors.Is(err, domain.ErrFlowInProgress) {
			t.Errorf("err = %v", err)
		}
		clk.Advance(24 * time.Hour)
		if n := reg.Sweep(clk.Now()); n != 0 {
			t.Errorf("swept a busy session")
		}
		flow.Abort(nil)
		if err := reg.Delete(fresh.ID()); err != nil {
			t.Errorf("Delete: %v", err)
		}
		if err := reg.Delete(fresh.ID()); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("second Delete err = %v", err)
		}
	})
}
