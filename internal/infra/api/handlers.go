package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/infra/logging"
)

// ===== DTOs =====

type errorBody struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

type couponDTO struct {
	Code           string `json:"code"`
	DiscountAmount string `json:"discount_amount"`
	DiscountType   string `json:"discount_type"`
}

type discountDTO struct {
	CouponCode     string `json:"coupon_code"`
	DiscountAmount string `json:"discount_amount"`
	FinalAmount    string `json:"final_amount"`
}

type receiptDTO struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	PaymentID    string    `json:"payment_id,omitempty"`
	Purpose      string    `json:"purpose"`
	TargetID     uint64    `json:"target_id"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	CouponCode   string    `json:"coupon_code,omitempty"`
	State        string    `json:"state"`
	Message      string    `json:"message"`
	ErrorClass   string    `json:"error_class,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	EffectError  string    `json:"effect_error,omitempty"`
	EffectAmount *string   `json:"effect_amount,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type checkoutDTO struct {
	SessionID      string       `json:"session_id"`
	State          string       `json:"state"`
	UserID         string       `json:"user_id,omitempty"`
	Blocked        bool         `json:"blocked"`
	Purpose        string       `json:"purpose,omitempty"`
	TargetID       uint64       `json:"target_id,omitempty"`
	Amount         *string      `json:"amount"`
	OriginalAmount *string      `json:"original_amount,omitempty"`
	Discount       *discountDTO `json:"discount,omitempty"`
	Coupons        []couponDTO  `json:"coupons"`
	WalletBalance  string       `json:"wallet_balance"`
	CardBalance    string       `json:"card_balance"`
	OrderID        string       `json:"order_id,omitempty"`
	CheckoutURL    string       `json:"checkout_url,omitempty"`
	Message        string       `json:"message,omitempty"`
	LastReceipt    *receiptDTO  `json:"last_receipt,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func toCoupons(cs []model.Coupon) []couponDTO {
	out := make([]couponDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, couponDTO{Code: c.Code, DiscountAmount: money(c.DiscountAmount), DiscountType: string(c.DiscountType)})
	}
	return out
}

func toDiscount(d *model.AppliedDiscount) *discountDTO {
	if d == nil {
		return nil
	}
	return &discountDTO{CouponCode: d.CouponCode, DiscountAmount: money(d.DiscountAmount), FinalAmount: money(d.FinalAmount)}
}

func toReceipt(r *model.Receipt) *receiptDTO {
	if r == nil {
		return nil
	}
	out := &receiptDTO{
		ID:           r.ID,
		OrderID:      r.OrderID,
		PaymentID:    r.PaymentID,
		Purpose:      r.Purpose.String(),
		TargetID:     r.TargetID,
		Amount:       money(r.Amount),
		Currency:     r.Currency,
		CouponCode:   r.CouponCode,
		State:        r.State.String(),
		Message:      r.Message,
		ErrorClass:   r.ErrorClass,
		ErrorMessage: r.ErrorMessage,
		EffectAmount: moneyPtr(r.EffectAmount),
		CreatedAt:    r.CreatedAt,
	}
	if r.EffectError != nil {
		out.EffectError = r.EffectError.Error()
	}
	return out
}

func (s *Server) toCheckout(v model.CheckoutView) checkoutDTO {
	out := checkoutDTO{
		SessionID:     v.SessionID,
		State:         v.State.String(),
		UserID:        v.UserID,
		Blocked:       v.Blocked,
		Purpose:       v.Purpose.String(),
		TargetID:      v.TargetID,
		Amount:        moneyPtr(v.Amount),
		Discount:      toDiscount(v.Discount),
		Coupons:       toCoupons(v.Coupons),
		WalletBalance: v.Wallet.String(),
		CardBalance:   v.Card.String(),
		OrderID:       v.OrderID,
		Message:       v.LastMessage,
		LastReceipt:   toReceipt(v.LastReceipt),
		UpdatedAt:     v.UpdatedAt,
	}
	if v.Quote != nil {
		out.OriginalAmount = moneyPtr(&v.Quote.OriginalAmount)
	}
	if s.hosted != nil && v.State == model.StateGatewayPending && v.OrderID != "" {
		if u, ok := s.hosted.CheckoutURL(v.OrderID); ok {
			out.CheckoutURL = u
		}
	}
	return out
}

// idString accepts a JSON string or number, since user ids are numeric upstream.
type idString string

func (v *idString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = idString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = idString(n.String())
	return nil
}

// ===== Handlers =====

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	v := s.checkout.Open()
	logging.With(r.Context(), s.log).Debug().Str("session_id", v.SessionID).Msg("checkout opened")
	writeJSON(w, http.StatusCreated, s.toCheckout(v))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, err := s.checkout.View(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toCheckout(v))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.checkout.Close(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID idString `json:"user_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	id := chi.URLParam(r, "id")
	ctx := logging.WithSessionID(r.Context(), id)
	snap, err := s.checkout.SetUser(ctx, id, string(in.UserID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        snap.UserID,
		"blocked":        snap.Blocked,
		"wallet_balance": snap.Wallet.String(),
		"card_balance":   snap.Card.String(),
		"warning":        snap.Warning,
	})
}

func (s *Server) handleSelectPurpose(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Purpose string `json:"purpose"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	id := chi.URLParam(r, "id")
	coupons, err := s.checkout.SelectPurpose(logging.WithSessionID(r.Context(), id), id, in.Purpose)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purpose": in.Purpose, "coupons": toCoupons(coupons)})
}

func (s *Server) handleSelectTarget(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TargetID idString `json:"target_id"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	targetID, err := strconv.ParseUint(strings.TrimSpace(string(in.TargetID)), 10, 64)
	if err != nil || targetID == 0 {
		s.writeError(w, r, domain.NewValidationError(domain.ReasonInvalidTarget, "target id must be a positive integer"))
		return
	}
	id := chi.URLParam(r, "id")
	quote, err := s.checkout.SelectTarget(logging.WithSessionID(r.Context(), id), id, targetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target_id": targetID, "amount": money(quote.OriginalAmount)})
}

func (s *Server) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CouponCode string `json:"coupon_code"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	id := chi.URLParam(r, "id")
	d, err := s.checkout.ApplyCoupon(logging.WithSessionID(r.Context(), id), id, in.CouponCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, _ := s.checkout.View(id)
	writeJSON(w, http.StatusOK, map[string]any{"discount": toDiscount(d), "amount": moneyPtr(v.Amount), "message": v.LastMessage})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Currency string `json:"currency"`
		CardType string `json:"card_type"`
	}
	if !s.decode(w, r, &in) {
		return
	}
	id := chi.URLParam(r, "id")
	ctx := logging.WithSessionID(r.Context(), id)
	input := model.SubmitInput{Currency: in.Currency, CardType: in.CardType}

	// wait=true runs the flow inside the request. A hosted gateway waits for a
	// browser callback that would outlive the request, so it is refused there.
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if s.hosted != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "wait is not supported by the hosted gateway", Class: "validation"})
			return
		}
		rec, err := s.checkout.SubmitAndWait(ctx, id, input)
		if rec == nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toReceipt(rec))
		return
	}

	req, err := s.checkout.Submit(ctx, id, input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{
		"session_id": id,
		"state":      model.StateSubmitting.String(),
		"amount":     money(req.Amount),
		"currency":   req.Currency,
		"purpose":    req.Purpose().String(),
		"target_id":  req.Target.ID(),
	}
	if req.CouponCode != "" {
		body["coupon_code"] = req.CouponCode
	}
	if req.CardType != "" {
		body["card_type"] = req.CardType
	}
	writeJSON(w, http.StatusAccepted, body)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	list, err := s.receipts.ListByUser(r.Context(), nil, chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]*receiptDTO, 0, len(list))
	for _, rec := range list {
		out = append(out, toReceipt(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleFindReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.receipts.FindByOrderID(r.Context(), nil, chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceipt(rec))
}

// ===== helpers =====

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body", Class: "validation"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		ve  *domain.ValidationError
		ce  *domain.CouponError
		ube *domain.UserBlockedError
		ale *domain.AmountLookupError
		ne  *domain.NetworkError
		be  *domain.BackendError
	)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ce):
		return http.StatusBadRequest
	case errors.As(err, &ube):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrFlowInProgress), errors.Is(err, domain.ErrStaleResponse),
		errors.Is(err, domain.ErrEligibilityPending):
		return http.StatusConflict
	case errors.As(err, &ale):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.As(err, &ne), errors.As(err, &be):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	class := domain.ErrorClass(err)
	msg := err.Error()
	var ve *domain.ValidationError
	if errors.As(err, &ve) && ve.Message != "" {
		msg = ve.Message
	}
	l := logging.With(r.Context(), s.log)
	if domain.IsLocal(err) || code < 500 {
		l.Debug().Err(err).Int("status", code).Msg("request rejected")
	} else {
		l.Error().Err(err).Int("status", code).Msg("request failed")
		if code == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, code, errorBody{Error: msg, Class: class})
}
