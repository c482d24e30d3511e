// Package checkout holds the per-user checkout state machine and the service
// that drives payment and order placement around it.
package checkout

import (
	"sync"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
)

type Step string

const (
	StepCart         Step = "cart"
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

var steps = []Step{StepCart, StepShipping, StepPayment, StepConfirmation}

func (s Step) index() int {
	for i, st := range steps {
		if st == s {
			return i
		}
	}
	return 0
}

// State is a read-only snapshot of a session.
type State struct {
	CurrentStep     Step                    `json:"currentStep"`
	CartItems       []orders.CartItem       `json:"cartItems"`
	ShippingAddress *orders.ShippingAddress `json:"shippingAddress,omitempty"`
	PaymentMethod   *orders.PaymentMethod   `json:"-"`
	Error           string                  `json:"error,omitempty"`
	IsProcessing    bool                    `json:"isProcessing"`
	OrderUnsaved    bool                    `json:"orderUnsaved,omitempty"`
}

func (s State) clone() State {
	s.CartItems = orders.CloneItems(s.CartItems)
	if s.ShippingAddress != nil {
		a := *s.ShippingAddress
		s.ShippingAddress = &a
	}
	if s.PaymentMethod != nil {
		m := *s.PaymentMethod
		s.PaymentMethod = &m
	}
	return s
}

func initialState() State {
	return State{CurrentStep: StepCart, CartItems: []orders.CartItem{}}
}

// Config is shared by every session of a registry.
type Config struct {
	Calculator orders.Calculator
	Countries  Countries
	// HostedPayments skips local card validation; the gateway sheet owns it.
	HostedPayments bool
	Now            func() time.Time
}

type paidCharge struct {
	ref    string
	amount orders.Cents
}

// Session is one user's checkout. All methods are safe for concurrent use and
// mutators return the resulting snapshot.
type Session struct {
	id     string
	userID string
	cfg    Config

	mu    sync.Mutex
	state State

	attempt    *paymentAttempt // open gateway attempt; its id is the gateway order id
	paid       *paidCharge     // set once the gateway confirmed a charge
	pending    *orders.Order   // materialized but not yet saved
	finalizing bool
}

func NewSession(id, userID string, cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{id: id, userID: userID, cfg: cfg, state: initialState()}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// InitializeCheckout starts over with items. A session holding a captured
// charge is left as is until its order is saved.
func (s *Session) InitializeCheckout(items []orders.CartItem) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holdsPaymentLocked() {
		s.state.Error = unsavedOrderMessage
		return s.state.clone()
	}
	s.resetLocked()
	s.state.CartItems = orders.CloneItems(items)
	return s.state.clone()
}

// UpdateCartItem sets the quantity of a cart line; zero or less removes it.
// Unknown products are ignored.
func (s *Session) UpdateCartItem(productID string, quantity int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holdsPaymentLocked() {
		return s.state.clone()
	}
	for i := range s.state.CartItems {
		if s.state.CartItems[i].ProductID != productID {
			continue
		}
		if quantity <= 0 {
			s.removeLocked(productID)
		} else {
			s.state.CartItems[i].Quantity = quantity
		}
		break
	}
	return s.state.clone()
}

func (s *Session) RemoveCartItem(productID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsPaymentLocked() {
		s.removeLocked(productID)
	}
	return s.state.clone()
}

func (s *Session) removeLocked(productID string) {
	out := s.state.CartItems[:0:0]
	for _, it := range s.state.CartItems {
		if it.ProductID != productID {
			out = append(out, it)
		}
	}
	s.state.CartItems = out
}

func (s *Session) SetShippingAddress(addr orders.ShippingAddress) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsPaymentLocked() {
		s.state.ShippingAddress = &addr
	}
	return s.state.clone()
}

func (s *Session) SetPaymentMethod(m orders.PaymentMethod) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PaymentMethod = &m
	return s.state.clone()
}

// ProceedToNextStep advances only when the current step validates; otherwise
// the first validation message is stored in Error.
func (s *Session) ProceedToNextStep() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proceedLocked()
	return s.state.clone()
}

func (s *Session) proceedLocked() bool {
	i := s.state.CurrentStep.index()
	if i == len(steps)-1 {
		return false
	}
	res := s.validateLocked()
	if !res.IsValid {
		s.state.Error = res.FirstError()
		return false
	}
	s.state.CurrentStep = steps[i+1]
	s.state.Error = ""
	return true
}

// GoToPreviousStep never leaves confirmation once a charge is captured.
func (s *Session) GoToPreviousStep() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holdsPaymentLocked() {
		return s.state.clone()
	}
	if i := s.state.CurrentStep.index(); i > 0 {
		s.state.CurrentStep = steps[i-1]
		s.state.Error = ""
	}
	return s.state.clone()
}

func (s *Session) ValidateCurrentStep() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked()
}

func (s *Session) validateLocked() Result {
	var fe fieldErrors
	switch s.state.CurrentStep {
	case StepCart:
		return ValidateCart(s.state.CartItems)
	case StepShipping:
		if s.state.ShippingAddress == nil {
			fe.add("shippingAddress", "shipping address is required")
			return fe.result()
		}
		return ValidateAddress(*s.state.ShippingAddress, s.cfg.Countries)
	case StepPayment:
		if s.cfg.HostedPayments {
			return valid()
		}
		if s.state.PaymentMethod == nil {
			fe.add("paymentMethod", "payment method is required")
			return fe.result()
		}
		return ValidatePayment(*s.state.PaymentMethod, s.cfg.Now())
	default:
		return valid()
	}
}

func (s *Session) CalculateTotals() orders.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Calculator.Totals(s.state.CartItems)
}

func (s *Session) ResetCheckout() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holdsPaymentLocked() {
		s.state.Error = unsavedOrderMessage
		return s.state.clone()
	}
	s.resetLocked()
	return s.state.clone()
}

// HoldsPayment reports a captured charge whose order is not saved yet. Such a
// session cannot be reset, re-initialized, edited or deleted.
func (s *Session) HoldsPayment() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdsPaymentLocked()
}

func (s *Session) holdsPaymentLocked() bool { return s.paid != nil }

func (s *Session) resetLocked() {
	s.state = initialState()
	s.attempt = nil
	s.paid = nil
	s.pending = nil
	s.finalizing = false
}

func (s *Session) SetProcessing(processing bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsProcessing = processing
	return s.state.clone()
}

// TryBeginProcessing sets IsProcessing unless it is already set.
func (s *Session) TryBeginProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsProcessing {
		return false
	}
	s.state.IsProcessing = true
	return true
}

// GetCartItemCount is the number of units, not lines.
func (s *Session) GetCartItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.state.CartItems {
		n += it.Quantity
	}
	return n
}

func (s *Session) IsCartEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.CartItems) == 0
}

func (s *Session) GetCartItems() []orders.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orders.CloneItems(s.state.CartItems)
}
