package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrCircuitOpen is returned by the circuit breaker when calls are
// rejected without attempting the underlying operation.
var ErrCircuitOpen = errors.New("circuit open")

// RateLimitError reports an admission denial by the rate limiter. It is
// a flow-control outcome, not a failure of the underlying operation.
type RateLimitError struct {
	Priority   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s calls, retry after %s", e.Priority, e.RetryAfter)
}

// ServerError reports an upstream 5xx failure.
type ServerError struct {
	Status int
	Msg    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Msg)
}

// ValidationError reports a rejected signal precondition. It is never
// retried and always surfaced to the caller with a readable reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "signal validation failed: " + e.Reason
}

// RiskLimitError reports a trade refused by a portfolio risk limit.
type RiskLimitError struct {
	Limit  string
	Reason string
}

func (e *RiskLimitError) Error() string {
	return fmt.Sprintf("risk limit %s: %s", e.Limit, e.Reason)
}

// IsRateLimit reports whether err is a rate limiter admission denial.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsValidation reports whether err is a signal validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRiskLimit reports whether err is a risk limit rejection.
func IsRiskLimit(err error) bool {
	var re *RiskLimitError
	return errors.As(err, &re)
}
