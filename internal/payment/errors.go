package payment

import (
	"errors"
	"fmt"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Error is a failure reported by or on the way to the gateway.
type Error struct {
	Code      string
	Reason    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment failed: %s (%s)", e.Reason, e.Code)
	}
	return fmt.Sprintf("payment failed: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsAmbiguous reports a failure where the request may have reached the
// gateway, so the charge could have gone through. Retries must reuse the
// same order id.
func IsAmbiguous(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable && pe.Err != nil && !errors.Is(pe.Err, ErrGatewayUnavailable)
}
