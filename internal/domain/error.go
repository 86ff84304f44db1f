package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrFlowInProgress     = errors.New("a payment is already in progress")
	ErrStaleResponse      = errors.New("response discarded: checkout changed while it was in flight")
	ErrSessionNotFound    = errors.New("checkout session not found")
	ErrUnknownPurpose     = errors.New("unknown payment purpose")
	ErrGatewayNotActive   = errors.New("no pending gateway payment for order")
	ErrRateLimited        = errors.New("too many attempts, please wait and try again")
	ErrQueueFull          = errors.New("payment queue is full, please try again shortly")
	ErrEligibilityPending = errors.New("user status is still being checked, please try again")

	// Storage errors
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)

// UserBlockedMessage is the backend's wording for a blocked or inactive account.
const UserBlockedMessage = "User is blocked or inactive"

// Validation reasons, evaluated in this order by the submit gate.
const (
	ReasonMissingFields     = "missing fields"
	ReasonNonPositiveAmount = "non-positive amount"
	ReasonMissingTier       = "missing tier"
	ReasonBelowMinimum      = "below minimum"
	ReasonInvalidTarget     = "invalid target"
	ReasonInvalidPurpose    = "invalid purpose"
)

// ValidationError is local and never reaches the network.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "validation: " + e.Reason
	}
	return "validation: " + e.Reason + ": " + e.Message
}

func NewValidationError(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// NetworkError marks a failed dependent read.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

type AmountLookupError struct {
	Message string
	Err     error
}

func (e *AmountLookupError) Error() string { return "error fetching amount: " + e.Message }
func (e *AmountLookupError) Unwrap() error { return e.Err }

// CouponError carries the backend message, shown to the user verbatim.
type CouponError struct {
	Message string
}

func (e *CouponError) Error() string { return "error applying coupon: " + e.Message }

// OrderCreationError means the order was never created, so nothing was charged.
type OrderCreationError struct {
	Message string
	Err     error
}

func (e *OrderCreationError) Error() string {
	return "error creating payment: " + e.Message + ". No charge was made; nothing needs to be refunded."
}
func (e *OrderCreationError) Unwrap() error { return e.Err }

// GatewayError is the structured failure reported by the payment gateway.
type GatewayError struct {
	Code        string
	Description string
	Reason      string
	Metadata    map[string]string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment failed: %s (code: %s, reason: %s)", e.Description, e.Code, e.Reason)
}

// VerificationError is ambiguous: the gateway may have charged the user.
type VerificationError struct {
	Message string
	Err     error
}

func (e *VerificationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "payment verification failed"
	}
	return msg + ". Please contact support before trying again; retrying creates a second order."
}
func (e *VerificationError) Unwrap() error { return e.Err }

type UserBlockedError struct{}

func (e *UserBlockedError) Error() string {
	return "Your account is currently blocked or inactive. Please contact support for assistance."
}

// PostEffectError reports a failed post-payment effect. The payment itself is settled.
type PostEffectError struct {
	Purpose string
	Err     error
}

func (e *PostEffectError) Error() string {
	return fmt.Sprintf("payment settled but %s could not be applied: %v", e.Purpose, e.Err)
}
func (e *PostEffectError) Unwrap() error { return e.Err }

// BackendError is a non-2xx reply from the ledger backend.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend http %d", e.StatusCode)
	}
	return e.Message
}

// Is lets errors.Is(err, ErrNotFound) match a backend 404.
func (e *BackendError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// IsUserBlocked reports whether err (or a backend message) says the user is blocked.
func IsUserBlocked(err error) bool {
	if err == nil {
		return false
	}
	var ub *UserBlockedError
	if errors.As(err, &ub) {
		return true
	}
	var be *BackendError
	if errors.As(err, &be) {
		return IsUserBlockedMessage(be.Message)
	}
	return false
}

func IsUserBlockedMessage(msg string) bool {
	return strings.EqualFold(strings.TrimSpace(msg), UserBlockedMessage)
}

// ErrorMessage extracts the user-facing message from a backend error.
func ErrorMessage(err error) string {
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// ErrorClass names the taxonomy bucket of err, used for logs, metrics and receipts.
func ErrorClass(err error) string {
	var (
		ve  *ValidationError
		ne  *NetworkError
		ale *AmountLookupError
		ce  *CouponError
		oce *OrderCreationError
		ge  *GatewayError
		vfe *VerificationError
		ube *UserBlockedError
		pe  *PostEffectError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ube):
		return "user_blocked"
	case errors.As(err, &ce):
		return "coupon"
	case errors.As(err, &ale):
		return "amount_lookup"
	case errors.As(err, &oce):
		return "order_creation"
	case errors.As(err, &ge):
		return "gateway"
	case errors.As(err, &vfe):
		return "verification"
	case errors.As(err, &pe):
		return "post_effect"
	case errors.As(err, &ne):
		return "network"
	case errors.Is(err, ErrFlowInProgress):
		return "flow_in_progress"
	case errors.Is(err, ErrStaleResponse):
		return "stale"
	case errors.Is(err, ErrEligibilityPending):
		return "eligibility_pending"
	default:
		return "internal"
	}
}

// IsLocal reports errors that are resolved by the user and not logged as systemic.
func IsLocal(err error) bool {
	switch ErrorClass(err) {
	case "validation", "coupon", "stale", "flow_in_progress", "eligibility_pending":
		return true
	}
	return false
}
