package payment

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"xtrace-checkout/internal/config"
	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/logging"
	"xtrace-checkout/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.PaymentGateway = (*HostedGateway)(nil)

// PresentFunc shows the payer where to complete a payment.
type PresentFunc func(ctx context.Context, order model.GatewayOrder, checkoutURL string)

type outcome struct {
	success model.GatewaySuccess
	err     error
}

type pendingPayment struct {
	url  string
	done chan outcome // buffered, receives exactly one outcome
}

// HostedGateway hands orders to a hosted checkout page and waits for the
// gateway's callback. Each order resolves exactly once: by the first callback
// that names it, by the callback timeout, or by ctx.
type HostedGateway struct {
	keyID       string
	merchant    string
	checkoutURL string
	timeout     time.Duration
	present     PresentFunc
	log         *zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingPayment
}

func NewHostedGateway(cfg config.GatewayConfig, present PresentFunc, logger *zerolog.Logger) (*HostedGateway, error) {
	if cfg.KeyID == "" {
		return nil, errors.New("gateway key id empty")
	}
	if _, err := url.ParseRequestURI(cfg.CheckoutURL); err != nil {
		return nil, fmt.Errorf("invalid checkout url: %w", err)
	}
	g := &HostedGateway{
		keyID:       cfg.KeyID,
		merchant:    cfg.MerchantName,
		checkoutURL: cfg.CheckoutURL,
		timeout:     cfg.CallbackTimeout,
		present:     present,
		log:         logger,
		pending:     make(map[string]*pendingPayment),
	}
	if g.present == nil {
		g.present = g.logPresent
	}
	return g, nil
}

func (g *HostedGateway) Name() string { return "hosted" }

func (g *HostedGateway) Collect(ctx context.Context, order model.GatewayOrder) (model.GatewaySuccess, error) {
	if order.OrderID == "" || order.AmountMinor <= 0 {
		return model.GatewaySuccess{}, fmt.Errorf("collect: %w", domain.ErrInvalidArgument)
	}
	p := &pendingPayment{url: g.pageURL(order), done: make(chan outcome, 1)}

	g.mu.Lock()
	if _, dup := g.pending[order.OrderID]; dup {
		g.mu.Unlock()
		return model.GatewaySuccess{}, fmt.Errorf("order %s already pending at gateway", order.OrderID)
	}
	g.pending[order.OrderID] = p
	metrics.SetGatewayPending(len(g.pending))
	g.mu.Unlock()
	defer g.forget(order.OrderID)

	g.present(ctx, order, p.url)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()
	select {
	case out := <-p.done:
		return out.success, out.err
	case <-timer.C:
		metrics.IncGatewayCallback(g.Name(), "timeout")
		return model.GatewaySuccess{}, &domain.GatewayError{
			Code:        "TIMEOUT",
			Description: "The payment was not completed in time.",
			Reason:      "callback_timeout",
		}
	case <-ctx.Done():
		return model.GatewaySuccess{}, ctx.Err()
	}
}

// CheckoutURL returns the page where a pending order can be paid.
func (g *HostedGateway) CheckoutURL(orderID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[orderID]
	if !ok {
		return "", false
	}
	return p.url, true
}

// Resolve delivers the outcome for orderID. Only the first resolution of a
// pending order is accepted; later ones get domain.ErrGatewayNotActive.
func (g *HostedGateway) Resolve(orderID string, success *model.GatewaySuccess, failure *domain.GatewayError) error {
	g.mu.Lock()
	p, ok := g.pending[orderID]
	if ok {
		delete(g.pending, orderID)
		metrics.SetGatewayPending(len(g.pending))
	}
	g.mu.Unlock()
	if !ok {
		return domain.ErrGatewayNotActive
	}
	if failure != nil {
		p.done <- outcome{err: failure}
	} else {
		p.done <- outcome{success: *success}
	}
	return nil
}

func (g *HostedGateway) forget(orderID string) {
	g.mu.Lock()
	delete(g.pending, orderID)
	metrics.SetGatewayPending(len(g.pending))
	g.mu.Unlock()
}

func (g *HostedGateway) pageURL(order model.GatewayOrder) string {
	q := url.Values{}
	q.Set("order_id", order.OrderID)
	q.Set("amount", strconv.FormatInt(order.AmountMinor, 10))
	q.Set("currency", order.Currency)
	q.Set("key", g.keyID)
	q.Set("name", g.merchant)
	q.Set("description", order.Description)
	sep := "?"
	if strings.Contains(g.checkoutURL, "?") {
		sep = "&"
	}
	return g.checkoutURL + sep + q.Encode()
}

func (g *HostedGateway) logPresent(ctx context.Context, order model.GatewayOrder, checkoutURL string) {
	logging.With(ctx, g.log).Info().
		Str("order_id", order.OrderID).
		Int64("amount_minor", order.AmountMinor).
		Str("checkout_url", checkoutURL).
		Msg("awaiting payment at hosted checkout")
}

// ===== Callback =====

// CallbackHandler receives the hosted page's success or failure callback,
// either as query parameters or as a form post.
func (g *HostedGateway) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), g.log)
		if err := r.ParseForm(); err != nil {
			g.renderHTML(w, http.StatusBadRequest, false, "malformed callback")
			return
		}
		success, failure, orderID := parseCallback(r.Form)
		if orderID == "" {
			metrics.IncGatewayCallback(g.Name(), "invalid")
			g.renderHTML(w, http.StatusBadRequest, false, "missing order id")
			return
		}

		result := "success"
		if failure != nil {
			result = "failure"
		}
		if err := g.Resolve(orderID, success, failure); err != nil {
			metrics.IncGatewayCallback(g.Name(), "unknown_order")
			l.Warn().Str("order_id", orderID).Str("result", result).Msg("callback for an order that is not pending")
			g.renderHTML(w, http.StatusNotFound, false, "This payment is no longer awaiting confirmation.")
			return
		}
		metrics.IncGatewayCallback(g.Name(), result)

		if failure != nil {
			l.Info().Str("order_id", orderID).Str("code", failure.Code).Msg("gateway reported failure")
			g.renderHTML(w, http.StatusOK, false, failure.Error())
			return
		}
		l.Info().Str("order_id", orderID).Str("payment_id", success.PaymentID).Msg("gateway reported success")
		g.renderHTML(w, http.StatusOK, true, "Payment received. It is being verified; you can return to the checkout.")
	}
}

// parseCallback reads razorpay_* success fields or error[...] failure fields.
func parseCallback(form url.Values) (*model.GatewaySuccess, *domain.GatewayError, string) {
	orderID := firstNonEmpty(form.Get("razorpay_order_id"), form.Get("order_id"))

	if pid := form.Get("razorpay_payment_id"); pid != "" && form.Get("error[code]") == "" {
		return &model.GatewaySuccess{
			OrderID:   orderID,
			PaymentID: pid,
			Signature: form.Get("razorpay_signature"),
		}, nil, orderID
	}

	ge := &domain.GatewayError{
		Code:        firstNonEmpty(form.Get("error[code]"), "UNKNOWN"),
		Description: form.Get("error[description]"),
		Reason:      form.Get("error[reason]"),
		Metadata:    map[string]string{},
	}
	const prefix = "error[metadata]["
	for k, v := range form {
		if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, "]") && len(v) > 0 {
			ge.Metadata[strings.TrimSuffix(strings.TrimPrefix(k, prefix), "]")] = v[0]
		}
	}
	if orderID == "" {
		orderID = ge.Metadata["order_id"]
	}
	return nil, ge, orderID
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var page = template.Must(template.New("cb").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Payment {{if .OK}}Received{{else}}Result{{end}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{if .OK}}Payment Received{{else}}Payment Not Completed{{end}}</h2>
  <p>{{.Msg}}</p>
  <p>{{.Merchant}}</p>
</div>
</body>
</html>`))

func (g *HostedGateway) renderHTML(w http.ResponseWriter, code int, ok bool, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = page.Execute(w, struct {
		OK       bool
		Msg      string
		Merchant string
	}{
		OK:       ok,
		Msg:      msg,
		Merchant: g.merchant,
	})
}
