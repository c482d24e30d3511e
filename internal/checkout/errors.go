package checkout

import (
	"errors"

	"github.com/ariefcatur/go-checkout-orders/internal/payment"
)

var (
	ErrSessionNotFound   = errors.New("checkout session not found")
	ErrNotAtPaymentStep  = errors.New("checkout is not at the payment step")
	ErrPaymentInProgress = errors.New("a payment is already in progress")
	ErrNoPaymentInFlight = errors.New("no payment sheet is open")
	ErrWrongPaymentMode  = errors.New("operation not available in the configured payment mode")
	ErrPaymentRequired   = errors.New("a successful payment for the current cart is required")
	ErrIncompleteOrder   = errors.New("checkout is missing order details")
	ErrUnknownOutcome    = errors.New("unknown payment sheet outcome")
	ErrAlreadyPaid       = errors.New("this checkout has already been paid")

	// ErrPaymentPending means the gateway has not settled the intent yet. The
	// sheet stays open and the result can be reported again.
	ErrPaymentPending = errors.New("payment is still being confirmed")

	// ErrUnsavedOrder refuses to drop a session holding a captured charge
	// before its order is saved.
	ErrUnsavedOrder = errors.New("checkout holds a payment whose order is not saved yet")

	// ErrOrderNotSaved means the charge went through but the order could not be
	// persisted. Finalize can be retried; it never charges again.
	ErrOrderNotSaved = errors.New("payment succeeded but the order may not have saved")
)

const unsavedOrderMessage = "Your payment went through but your order may not have saved. Please try again."

// ValidationError refuses an operation because a step is incomplete.
type ValidationError struct{ Result Result }

func (e *ValidationError) Error() string { return e.Result.FirstError() }

// Describe gives the alerting layer a human-readable message and whether
// retrying the same action can help.
func Describe(err error) (message string, retryable bool) {
	var (
		ve *ValidationError
		pe *payment.Error
	)
	switch {
	case err == nil:
		return "", false
	case errors.As(err, &ve):
		return ve.Error(), false
	case errors.Is(err, ErrOrderNotSaved), errors.Is(err, ErrUnsavedOrder):
		return unsavedOrderMessage, true
	case errors.As(err, &pe):
		return pe.Reason, pe.Retryable
	case errors.Is(err, ErrPaymentInProgress), errors.Is(err, ErrPaymentPending):
		return err.Error(), true
	default:
		return err.Error(), false
	}
}
