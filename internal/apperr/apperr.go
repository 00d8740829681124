// Package apperr defines the typed error taxonomy shared by the Risk
// Gateway, Execution Adapter, Network Resilience, Idempotency and Circuit
// Breaker components.
package apperr

import "fmt"

// Code identifies the class of a domain error so callers can branch on it
// without parsing strings.
type Code string

const (
	RiskCheckFailed       Code = "RISK_CHECK_FAILED"
	InsufficientMargin    Code = "INSUFFICIENT_MARGIN"
	LeverageExceeded      Code = "LEVERAGE_EXCEEDED"
	PositionLimitExceeded Code = "POSITION_LIMIT_EXCEEDED"
	PriceDeviation        Code = "PRICE_DEVIATION"
	MarketSuspended       Code = "MARKET_SUSPENDED"
	APIError              Code = "API_ERROR"
	Timeout               Code = "TIMEOUT"
	RateLimit             Code = "RATE_LIMIT"
	DuplicateOrder        Code = "DUPLICATE_ORDER"
	BreakerTriggered      Code = "BREAKER_TRIGGERED"
	AuditFailure          Code = "AUDIT_FAILURE"
)

// Retryable reports whether errors of this code are safe for the Network
// Resilience layer to retry locally (spec.md §7 Propagation policy).
func (c Code) Retryable() bool {
	switch c {
	case APIError, Timeout:
		return true
	case RateLimit:
		// retried once by the caller after retry_after elapses; the
		// resilience layer itself does not loop on RATE_LIMIT.
		return false
	default:
		return false
	}
}

// Error is the typed error value carried through Risk Gateway rejections
// and adapter/network failures.
type Error struct {
	Code       Code
	Message    string
	RetryAfter float64 // seconds, set only for RateLimit
	Err        error   // wrapped cause, if any
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err.Error())
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a typed error around a cause.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// WrapMsg builds a typed error around a cause with an additional
// message, used where the cause alone doesn't explain the context
// (e.g. "operation cancelled during backoff: <ctx.Err()>").
func WrapMsg(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// RateLimited builds a RATE_LIMIT error carrying retry_after seconds.
func RateLimited(retryAfter float64) *Error {
	return &Error{Code: RateLimit, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

// Retryable reports whether err (or something it wraps) is an *Error
// whose Code is safe for the Network Resilience layer to retry. A
// plain, untyped error is treated as non-retryable — only the layer
// that produced it knows whether retrying makes sense, and it is
// expected to wrap it as an *Error if it does.
func Retryable(err error) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	return code.Retryable()
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error; ok is false otherwise.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Code, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
