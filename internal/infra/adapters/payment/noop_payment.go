package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway approves every order immediately. Signatures are
// HMAC-SHA256(order_id|payment_id) under secret, the scheme the backend checks.
type NoopPaymentGateway struct {
	secret []byte

	mu        sync.Mutex
	seq       int64
	collected map[string]int64 // order id -> amount in minor units
	// Fail, when set, turns every collection into this failure.
	Fail *domain.GatewayError
}

func NewNoopPaymentGateway(secret string) *NoopPaymentGateway {
	return &NoopPaymentGateway{
		secret:    []byte(secret),
		collected: make(map[string]int64),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next() string {
	g.seq++
	return fmt.Sprintf("pay_noop%d", g.seq)
}

func (g *NoopPaymentGateway) Collect(ctx context.Context, order model.GatewayOrder) (model.GatewaySuccess, error) {
	if err := ctx.Err(); err != nil {
		return model.GatewaySuccess{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Fail != nil {
		f := *g.Fail
		return model.GatewaySuccess{}, &f
	}
	if _, dup := g.collected[order.OrderID]; dup {
		return model.GatewaySuccess{}, &domain.GatewayError{Code: "BAD_REQUEST_ERROR", Description: "order already paid"}
	}
	g.collected[order.OrderID] = order.AmountMinor
	pid := g.next()
	return model.GatewaySuccess{
		OrderID:   order.OrderID,
		PaymentID: pid,
		Signature: Sign(g.secret, order.OrderID, pid),
	}, nil
}

// Collected returns the amount collected for orderID, in minor units.
func (g *NoopPaymentGateway) Collected(orderID string) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amt, ok := g.collected[orderID]
	return amt, ok
}

// Sign computes the gateway signature for a payment.
func Sign(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
