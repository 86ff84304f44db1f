package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/config"
	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/infra/logging"
	"xtrace-checkout/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.LedgerBackend = (*Client)(nil)

// maxBody caps how much of a reply is read.
const maxBody = 1 << 20

// Client implements adapter.LedgerBackend over the backend's HTTP/JSON API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	secret  []byte
	ttl     time.Duration
	log     *zerolog.Logger
	now     func() time.Time
}

func NewClient(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		token:   cfg.AccessToken,
		secret:  []byte(cfg.JWTSecret),
		ttl:     cfg.JWTTTL,
		log:     logger,
		now:     time.Now,
	}
}

// WithHTTPClient replaces the transport, e.g. for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// ===== Reads =====

func (c *Client) WalletBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	p := "/user/" + url.PathEscape(userID) + "/wallet/show"
	if err := c.call(ctx, "wallet_balance", http.MethodGet, p, userID, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

func (c *Client) CardBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	p := "/user/" + url.PathEscape(userID) + "/nol-card/balance/show"
	if err := c.call(ctx, "card_balance", http.MethodGet, p, userID, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

func (c *Client) UserStatus(ctx context.Context, userID string) (adapter.UserStatus, error) {
	var out struct {
		Blocked  bool `json:"blocked"`
		Inactive bool `json:"inactive"`
	}
	p := "/" + url.PathEscape(userID) + "/status"
	if err := c.call(ctx, "user_status", http.MethodGet, p, userID, nil, &out); err != nil {
		return adapter.UserStatus{}, err
	}
	return adapter.UserStatus{Blocked: out.Blocked, Inactive: out.Inactive}, nil
}

func (c *Client) PaymentAmount(ctx context.Context, purpose model.Purpose, targetID uint64) (decimal.Decimal, error) {
	var out struct {
		Amount decimal.Decimal `json:"amount"`
	}
	p := fmt.Sprintf("/user/payment/%s/%d/amount", url.PathEscape(purpose.String()), targetID)
	if err := c.call(ctx, "payment_amount", http.MethodGet, p, "", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Amount, nil
}

func (c *Client) Coupons(ctx context.Context, purpose model.Purpose) ([]model.Coupon, error) {
	var out struct {
		Coupons []struct {
			Code           string          `json:"code"`
			DiscountAmount decimal.Decimal `json:"discount_amount"`
			DiscountType   string          `json:"discount_type"`
		} `json:"coupons"`
	}
	p := "/coupons/" + url.PathEscape(purpose.String())
	if err := c.call(ctx, "coupons", http.MethodGet, p, "", nil, &out); err != nil {
		return nil, err
	}
	coupons := make([]model.Coupon, 0, len(out.Coupons))
	for _, cp := range out.Coupons {
		coupons = append(coupons, model.Coupon{
			Code:           cp.Code,
			DiscountAmount: cp.DiscountAmount,
			DiscountType:   model.DiscountType(cp.DiscountType),
		})
	}
	return coupons, nil
}

// ===== Mutations =====

func (c *Client) ApplyCoupon(ctx context.Context, code string, amount decimal.Decimal) (decimal.Decimal, error) {
	in := map[string]any{
		"coupon_code": code,
		"amount":      money(amount),
	}
	var out struct {
		DiscountAmount decimal.Decimal `json:"discount_amount"`
	}
	if err := c.call(ctx, "coupon_apply", http.MethodPost, "/coupons/apply", "", in, &out); err != nil {
		return decimal.Zero, err
	}
	return out.DiscountAmount, nil
}

type createOrderBody struct {
	Amount         json.Number `json:"amount"`
	Currency       string      `json:"currency"`
	PaymentType    string      `json:"payment_type"`
	CouponCode     string      `json:"coupon_code,omitempty"`
	CardType       string      `json:"card_type,omitempty"`
	WalletID       *uint64     `json:"wallet_id,omitempty"`
	NolCardID      *uint64     `json:"nol_card_id,omitempty"`
	SubscriptionID *uint64     `json:"subscription_id,omitempty"`
	BookingID      *uint64     `json:"booking_id,omitempty"`
}

func (c *Client) CreateOrder(ctx context.Context, req *model.PaymentRequest) (*model.Order, error) {
	if req == nil || req.Target == nil {
		return nil, fmt.Errorf("create order: %w", domain.ErrInvalidArgument)
	}
	f := model.FieldsFor(req.Target)
	in := createOrderBody{
		Amount:         money(req.Amount),
		Currency:       req.Currency,
		PaymentType:    req.Purpose().String(),
		CouponCode:     req.CouponCode,
		CardType:       req.CardType,
		WalletID:       f.WalletID,
		NolCardID:      f.NolCardID,
		SubscriptionID: f.SubscriptionID,
		BookingID:      f.BookingID,
	}
	var out struct {
		OrderID          string          `json:"order_id"`
		OriginalAmount   decimal.Decimal `json:"original_amount"`
		DiscountedAmount decimal.Decimal `json:"discounted_amount"`
	}
	p := "/user/" + url.PathEscape(req.UserID) + "/payment/create"
	if err := c.call(ctx, "payment_create", http.MethodPost, p, req.UserID, in, &out); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		return nil, &domain.BackendError{StatusCode: http.StatusOK, Message: "backend returned no order id"}
	}
	return &model.Order{
		OrderID:          out.OrderID,
		OriginalAmount:   out.OriginalAmount,
		DiscountedAmount: out.DiscountedAmount,
	}, nil
}

type verifyReply struct {
	Verified    *bool  `json:"verified"`
	Message     string `json:"message"`
	Error       string `json:"error"`
	PaymentType string `json:"payment_type"`
}

// VerifyPayment returns a result whenever the backend answers with a verify
// body, including the non-2xx replies that carry verified=false.
func (c *Client) VerifyPayment(ctx context.Context, s model.GatewaySuccess) (*model.VerificationResult, error) {
	in := map[string]string{
		"order_id":           s.OrderID,
		"payment_id":         s.PaymentID,
		"razorpay_signature": s.Signature,
	}
	var out verifyReply
	err := c.call(ctx, "payment_verify", http.MethodPost, "/user/payment/verify", "", in, &out)
	var be *domain.BackendError
	switch {
	case err == nil:
	case errors.As(err, &be) && out.Verified != nil:
		// verified=false reply carried on an error status
	default:
		return nil, err
	}
	res := &model.VerificationResult{
		Purpose: model.Purpose(out.PaymentType),
		Message: out.Message,
		Error:   out.Error,
	}
	if out.Verified != nil {
		res.Verified = *out.Verified
	}
	if !res.Verified && res.Error == "" && be != nil {
		res.Error = be.Message
	}
	return res, nil
}

func (c *Client) CardTopup(ctx context.Context, userID string, cardID uint64, amount decimal.Decimal, cardType string) (*model.TopupResult, error) {
	in := map[string]any{
		"nol_card_id": cardID,
		"amount":      money(amount),
		"card_type":   cardType,
	}
	var out struct {
		Amount decimal.Decimal `json:"amount"`
	}
	p := "/user/" + url.PathEscape(userID) + "/nol-card/topup"
	if err := c.call(ctx, "card_topup", http.MethodPost, p, userID, in, &out); err != nil {
		return nil, err
	}
	return &model.TopupResult{Amount: out.Amount}, nil
}

// ===== Transport =====

// call performs one request. A non-2xx reply becomes a *domain.BackendError
// carrying the body's "error" field; out is still decoded when the body is JSON.
func (c *Client) call(ctx context.Context, endpoint, method, path, userID string, in, out any) (err error) {
	start := time.Now()
	result := "ok"
	defer func() {
		if err != nil {
			result = "error"
		}
		metrics.ObserveBackend(endpoint, result, time.Since(start))
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", endpoint, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logging.TraceID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if err := c.authorize(req, userID); err != nil {
		return fmt.Errorf("%s: auth: %w", endpoint, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &domain.NetworkError{Op: endpoint, Err: err}
	}

	var decodeErr error
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		be := &domain.BackendError{StatusCode: resp.StatusCode, Message: errorField(raw)}
		logging.With(ctx, c.log).Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error", be.Message).
			Msg("backend error reply")
		return be
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, decodeErr)
	}
	return nil
}

func (c *Client) authorize(req *http.Request, userID string) error {
	if len(c.secret) == 0 {
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		return nil
	}
	tok, err := c.mint(userID)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// UserClaims mirror what the backend's auth middleware reads.
type UserClaims struct {
	UserID uint64 `json:"user_id,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Client) mint(userID string) (string, error) {
	now := c.now()
	claims := UserClaims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			Subject:   userID,
		},
	}
	if id, err := strconv.ParseUint(userID, 10, 64); err == nil {
		claims.UserID = id
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func errorField(raw []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) != nil {
		return ""
	}
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// money renders an amount as a two-decimal JSON number.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
