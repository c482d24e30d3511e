package checkout

import (
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/google/uuid"
)

type paymentAttempt struct {
	id     string
	amount orders.Cents
	method orders.PaymentMethod
}

// beginPayment gates a charge: not paid yet, payment step, nothing in flight,
// cart and payment step valid. It marks the session processing and mints an
// attempt id, or reuses the last one when its outcome was never learned and
// the amount is unchanged.
func (s *Session) beginPayment() (paymentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paid != nil {
		return paymentAttempt{}, ErrAlreadyPaid
	}
	if s.state.CurrentStep != StepPayment {
		return paymentAttempt{}, ErrNotAtPaymentStep
	}
	if s.state.IsProcessing {
		return paymentAttempt{}, ErrPaymentInProgress
	}
	if res := ValidateCart(s.state.CartItems); !res.IsValid {
		s.state.Error = res.FirstError()
		return paymentAttempt{}, &ValidationError{Result: res}
	}
	if res := s.validateLocked(); !res.IsValid {
		s.state.Error = res.FirstError()
		return paymentAttempt{}, &ValidationError{Result: res}
	}

	amount := s.cfg.Calculator.Totals(s.state.CartItems).Total
	att := paymentAttempt{id: uuid.NewString(), amount: amount}
	if s.attempt != nil && s.attempt.amount == amount {
		att.id = s.attempt.id
	}
	if s.state.PaymentMethod != nil {
		att.method = *s.state.PaymentMethod
	}
	s.attempt = &att
	s.state.IsProcessing = true
	return att, nil
}

// openAttempt returns the attempt behind an open hosted sheet.
func (s *Session) openAttempt() (paymentAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsProcessing || s.attempt == nil || s.paid != nil {
		return paymentAttempt{}, false
	}
	return *s.attempt, true
}

func (s *Session) paymentFailed(msg string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = nil
	s.state.IsProcessing = false
	s.state.Error = msg
	return s.state.clone()
}

// paymentUnresolved ends an attempt whose charge may or may not have gone
// through. The attempt is kept so the next try carries the same id and the
// gateway can dedupe it.
func (s *Session) paymentUnresolved(msg string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsProcessing = false
	s.state.Error = msg
	return s.state.clone()
}

// paymentCancelled undoes beginPayment and nothing else.
func (s *Session) paymentCancelled() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = nil
	s.state.IsProcessing = false
	return s.state.clone()
}

// paymentSucceeded records the charge and moves to confirmation. The session
// stays processing until the order is finalized.
func (s *Session) paymentSucceeded(ref string, amount orders.Cents) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paid = &paidCharge{ref: ref, amount: amount}
	s.attempt = nil
	if s.state.CurrentStep == StepPayment {
		s.state.CurrentStep = StepConfirmation
	}
	s.state.Error = ""
	return s.state.clone()
}

// materialize returns the order for this checkout, building it on first use
// so every retry saves the same order id.
func (s *Session) materialize(build func(items []orders.CartItem, addr orders.ShippingAddress, totals orders.Totals) orders.Order) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentStep != StepConfirmation || s.paid == nil {
		return orders.Order{}, ErrPaymentRequired
	}
	if s.finalizing {
		return orders.Order{}, ErrPaymentInProgress
	}
	if s.pending == nil {
		if s.state.ShippingAddress == nil || len(s.state.CartItems) == 0 {
			return orders.Order{}, ErrIncompleteOrder
		}
		totals := s.cfg.Calculator.Totals(s.state.CartItems)
		if totals.Total != s.paid.amount {
			return orders.Order{}, ErrPaymentRequired
		}
		o := build(s.state.CartItems, *s.state.ShippingAddress, totals)
		o.PaymentReference = s.paid.ref
		s.pending = &o
	}
	s.finalizing = true
	s.state.IsProcessing = true
	o := *s.pending
	o.Items = orders.CloneItems(o.Items)
	return o, nil
}

func (s *Session) orderUnsaved(msg string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizing = false
	s.state.IsProcessing = false
	s.state.OrderUnsaved = true
	s.state.Error = msg
	return s.state.clone()
}

func (s *Session) orderSaved() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return s.state.clone()
}
