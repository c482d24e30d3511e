package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/google/uuid"
)

// Sandbox is an in-process gateway for local runs. Cards ending in 0002 are
// declined, cards ending in 9995 fail with insufficient funds and numbers
// failing the Luhn checksum are rejected as invalid. Charges are idempotent
// per order id like a real gateway.
//
// Intents start out waiting for a payment method. ConfirmIntent stands in for
// the customer finishing the sheet; with WithAutoConfirm every new intent is
// created already succeeded.
type Sandbox struct {
	autoConfirm bool

	mu      sync.Mutex
	charges map[string]Result
	intents map[string]*sandboxIntent
}

type sandboxIntent struct {
	Intent
	state IntentState
}

type SandboxOption func(*Sandbox)

func WithAutoConfirm() SandboxOption {
	return func(s *Sandbox) { s.autoConfirm = true }
}

func NewSandbox(opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		charges: map[string]Result{},
		intents: map[string]*sandboxIntent{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sandbox) CreatePaymentIntent(_ context.Context, orderID string, amount orders.Cents) (Intent, error) {
	if amount <= 0 {
		return Intent{}, &Error{Code: "amount_too_small", Reason: "amount must be positive"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if in, ok := s.intents[orderID]; ok {
		return in.Intent, nil
	}
	in := &sandboxIntent{
		Intent: Intent{
			ClientSecret: "pi_" + compactID() + "_secret_" + compactID(),
			CustomerID:   "cus_sandbox",
			EphemeralKey: "ek_" + compactID(),
		},
		state: IntentState{Status: IntentRequiresPayment, Amount: amount},
	}
	if s.autoConfirm {
		in.state.Status = IntentSucceeded
	}
	s.intents[orderID] = in
	return in.Intent, nil
}

func (s *Sandbox) GetPaymentIntent(_ context.Context, orderID string) (IntentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[orderID]
	if !ok {
		return IntentState{}, &Error{Code: "resource_missing", Reason: "no such payment intent"}
	}
	return in.state, nil
}

// ConfirmIntent moves an intent to status as the sheet would.
func (s *Sandbox) ConfirmIntent(orderID string, status IntentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[orderID]
	if !ok {
		return fmt.Errorf("sandbox: no intent for order %s", orderID)
	}
	in.state.Status = status
	return nil
}

func (s *Sandbox) ProcessPayment(_ context.Context, method orders.PaymentMethod, amount orders.Cents, orderID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.charges[orderID]; ok {
		return res, nil
	}

	res := Result{OrderID: orderID}
	digits := orders.CardDigits(method.CardNumber)
	switch {
	case amount <= 0:
		return Result{}, &Error{Code: "amount_too_small", Reason: "amount must be positive"}
	case !luhn(digits):
		res.Error = "card number is invalid"
	case strings.HasSuffix(digits, "0002"):
		res.Error = "card declined"
	case strings.HasSuffix(digits, "9995"):
		res.Error = "insufficient funds"
	default:
		res.Success = true
		res.ConfirmationNumber = "ch_" + compactID()
	}
	s.charges[orderID] = res
	return res, nil
}

func compactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// luhn is the check digit test card networks use; gateways reject numbers
// that fail it before contacting the issuer.
func luhn(digits string) bool {
	if digits == "" {
		return false
	}
	sum := 0
	for i := 0; i < len(digits); i++ {
		c := digits[len(digits)-1-i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
