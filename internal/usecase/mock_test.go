//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/domain/ports/repository"
	"xtrace-checkout/internal/usecase"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var errTransport = errors.New("dial tcp: connection refused")

// =============================
// Adapters
// =============================

// ---- Mock LedgerBackend ----

// MockBackend answers with fixed defaults unless a XxxFunc hook is set.
// Calls are counted per method name.
type MockBackend struct {
	mu    sync.Mutex
	calls map[string]int

	Orders   []model.PaymentRequest
	Verifies []model.GatewaySuccess
	Topups   []decimal.Decimal

	WalletBalanceFunc func(ctx context.Context, userID string) (decimal.Decimal, error)
	CardBalanceFunc   func(ctx context.Context, userID string) (decimal.Decimal, error)
	UserStatusFunc    func(ctx context.Context, userID string) (adapter.UserStatus, error)
	PaymentAmountFunc func(ctx context.Context, purpose model.Purpose, targetID uint64) (decimal.Decimal, error)
	CouponsFunc       func(ctx context.Context, purpose model.Purpose) ([]model.Coupon, error)
	ApplyCouponFunc   func(ctx context.Context, code string, amount decimal.Decimal) (decimal.Decimal, error)
	CreateOrderFunc   func(ctx context.Context, req *model.PaymentRequest) (*model.Order, error)
	VerifyPaymentFunc func(ctx context.Context, success model.GatewaySuccess) (*model.VerificationResult, error)
	CardTopupFunc     func(ctx context.Context, userID string, cardID uint64, amount decimal.Decimal, cardType string) (*model.TopupResult, error)
}

var _ adapter.LedgerBackend = (*MockBackend)(nil)

func NewMockBackend() *MockBackend {
	return &MockBackend{calls: make(map[string]int)}
}

func (m *MockBackend) record(name string) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

// Calls returns how many times method name was invoked.
func (m *MockBackend) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockBackend) WalletBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	m.record("WalletBalance")
	if m.WalletBalanceFunc != nil {
		return m.WalletBalanceFunc(ctx, userID)
	}
	return dec("250.00"), nil
}

func (m *MockBackend) CardBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	m.record("CardBalance")
	if m.CardBalanceFunc != nil {
		return m.CardBalanceFunc(ctx, userID)
	}
	return dec("40.00"), nil
}

func (m *MockBackend) UserStatus(ctx context.Context, userID string) (adapter.UserStatus, error) {
	m.record("UserStatus")
	if m.UserStatusFunc != nil {
		return m.UserStatusFunc(ctx, userID)
	}
	return adapter.UserStatus{}, nil
}

func (m *MockBackend) PaymentAmount(ctx context.Context, purpose model.Purpose, targetID uint64) (decimal.Decimal, error) {
	m.record("PaymentAmount")
	if m.PaymentAmountFunc != nil {
		return m.PaymentAmountFunc(ctx, purpose, targetID)
	}
	return dec("200.00"), nil
}

func (m *MockBackend) Coupons(ctx context.Context, purpose model.Purpose) ([]model.Coupon, error) {
	m.record("Coupons")
	if m.CouponsFunc != nil {
		return m.CouponsFunc(ctx, purpose)
	}
	return []model.Coupon{{Code: "SAVE10", DiscountAmount: dec("10"), DiscountType: model.DiscountPercent}}, nil
}

func (m *MockBackend) ApplyCoupon(ctx context.Context, code string, amount decimal.Decimal) (decimal.Decimal, error) {
	m.record("ApplyCoupon")
	if m.ApplyCouponFunc != nil {
		return m.ApplyCouponFunc(ctx, code, amount)
	}
	if code == "SAVE10" {
		return amount.Mul(dec("0.10")).Round(2), nil
	}
	return decimal.Zero, &domain.BackendError{StatusCode: 400, Message: "Invalid coupon code"}
}

func (m *MockBackend) CreateOrder(ctx context.Context, req *model.PaymentRequest) (*model.Order, error) {
	m.record("CreateOrder")
	m.mu.Lock()
	m.Orders = append(m.Orders, *req)
	n := len(m.Orders)
	m.mu.Unlock()
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, req)
	}
	return &model.Order{OrderID: fmt.Sprintf("order_%d", n), OriginalAmount: req.Amount}, nil
}

func (m *MockBackend) VerifyPayment(ctx context.Context, success model.GatewaySuccess) (*model.VerificationResult, error) {
	m.record("VerifyPayment")
	m.mu.Lock()
	m.Verifies = append(m.Verifies, success)
	var purpose model.Purpose
	if n := len(m.Orders); n > 0 {
		purpose = m.Orders[n-1].Purpose()
	}
	m.mu.Unlock()
	if m.VerifyPaymentFunc != nil {
		return m.VerifyPaymentFunc(ctx, success)
	}
	return &model.VerificationResult{Verified: true, Purpose: purpose, Message: "Payment verified successfully"}, nil
}

func (m *MockBackend) CardTopup(ctx context.Context, userID string, cardID uint64, amount decimal.Decimal, cardType string) (*model.TopupResult, error) {
	m.record("CardTopup")
	m.mu.Lock()
	m.Topups = append(m.Topups, amount)
	m.mu.Unlock()
	if m.CardTopupFunc != nil {
		return m.CardTopupFunc(ctx, userID, cardID, amount, cardType)
	}
	return &model.TopupResult{Amount: amount}, nil
}

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu     sync.Mutex
	Orders []model.GatewayOrder

	CollectFunc func(ctx context.Context, order model.GatewayOrder) (model.GatewaySuccess, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) Collect(ctx context.Context, order model.GatewayOrder) (model.GatewaySuccess, error) {
	m.mu.Lock()
	m.Orders = append(m.Orders, order)
	m.mu.Unlock()
	if m.CollectFunc != nil {
		return m.CollectFunc(ctx, order)
	}
	return model.GatewaySuccess{OrderID: order.OrderID, PaymentID: "pay_" + order.OrderID, Signature: "sig"}, nil
}

func (m *MockGateway) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// =============================
// Repositories
// =============================

type MockReceiptRepo struct {
	mu    sync.Mutex
	Saved []*model.Receipt

	SaveFunc func(ctx context.Context, tx repository.Tx, r *model.Receipt) error
}

var _ repository.ReceiptRepository = (*MockReceiptRepo)(nil)

func (m *MockReceiptRepo) Save(ctx context.Context, tx repository.Tx, r *model.Receipt) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx, r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Saved = append(m.Saved, r)
	m.mu.Unlock()
	return nil
}

func (m *MockReceiptRepo) FindByOrderID(_ context.Context, _ repository.Tx, orderID string) (*model.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Saved {
		if r.OrderID == orderID {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockReceiptRepo) ListByUser(_ context.Context, _ repository.Tx, userID string, limit int) ([]*model.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Receipt
	for _, r := range m.Saved {
		if r.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockReceiptRepo) ListNeedingFollowUp(_ context.Context, _ repository.Tx, since time.Time, limit int) ([]*model.Receipt, error) {
	return nil, nil
}

func (m *MockReceiptRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Saved)
}

// =============================
// Harness
// =============================

type harness struct {
	backend  *MockBackend
	gateway  *MockGateway
	receipts *MockReceiptRepo
	uc       usecase.CheckoutUseCase
}

// newHarness wires the real use cases over the mocks.
func newHarness() *harness {
	h := &harness{
		backend:  NewMockBackend(),
		gateway:  &MockGateway{},
		receipts: &MockReceiptRepo{},
	}
	logger := newTestLogger()
	balances := usecase.NewBalanceUseCase(h.backend, logger)
	h.uc = usecase.NewCheckoutUseCase(usecase.CheckoutDeps{
		Eligibility: usecase.NewEligibilityUseCase(h.backend, logger),
		Balances:    balances,
		Coupons:     usecase.NewCouponUseCase(nil, h.backend, logger),
		Amounts:     usecase.NewAmountUseCase(h.backend, logger),
		Effects:     usecase.NewEffectDispatcher(h.backend, balances, logger),
		Backend:     h.backend,
		Gateway:     h.gateway,
		Receipts:    h.receipts,
	}, logger)
	return h
}

// quoted returns a checkout with user 42 and the given purpose and target
// selected, quoted at whatever the backend's PaymentAmount returns.
func (h *harness) quoted(t *testing.T, purpose model.Purpose, targetID uint64) *usecase.Checkout {
	t.Helper()
	ctx := context.Background()
	c := h.uc.New("s1")
	if _, err := c.SetUser(ctx, "42"); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if _, err := c.SelectPurpose(ctx, purpose); err != nil {
		t.Fatalf("SelectPurpose: %v", err)
	}
	if _, err := c.SelectTarget(ctx, targetID); err != nil {
		t.Fatalf("SelectTarget: %v", err)
	}
	return c
}

// amountOf returns the checkout's displayed amount as a string, or "unset".
func amountOf(c *usecase.Checkout) string {
	v := c.Snapshot()
	if v.Amount == nil {
		return "unset"
	}
	return v.Amount.StringFixed(2)
}
