package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Outcome is what a payment or finalize call leaves behind.
type Outcome struct {
	State     State         `json:"state"`
	Order     *orders.Order `json:"order,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

// Service charges a session through the gateway and turns a paid checkout
// into a saved order.
type Service struct {
	gateway payment.Gateway
	mode    payment.Mode
	repo    *orders.Repository
	log     *zap.Logger

	saveTries   uint
	saveBackOff func() backoff.BackOff
}

type ServiceOption func(*Service)

// WithSaveRetry tunes how often a paid order save is retried.
func WithSaveRetry(tries uint, newBackOff func() backoff.BackOff) ServiceOption {
	return func(s *Service) {
		s.saveTries = tries
		s.saveBackOff = newBackOff
	}
}

func NewService(gw payment.Gateway, mode payment.Mode, repo *orders.Repository, log *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		gateway:   gw,
		mode:      mode,
		repo:      repo,
		log:       log,
		saveTries: 4,
		saveBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Mode() payment.Mode { return s.mode }

// SessionConfig derives the per-session settings matching the payment mode.
func (s *Service) SessionConfig(calc orders.Calculator, countries Countries) Config {
	return Config{
		Calculator:     calc,
		Countries:      countries,
		HostedPayments: payment.IsHosted(s.mode),
	}
}

// Pay charges the entered card (direct mode) and, when the charge succeeds,
// finalizes the order.
func (s *Service) Pay(ctx context.Context, sess *Session) (Outcome, error) {
	if payment.IsHosted(s.mode) {
		return Outcome{State: sess.Snapshot()}, ErrWrongPaymentMode
	}
	att, err := sess.beginPayment()
	if err != nil {
		return Outcome{State: sess.Snapshot()}, err
	}

	res, err := s.gateway.ProcessPayment(ctx, att.method, att.amount, att.id)
	if err == nil && !res.Success {
		err = &payment.Error{Reason: res.Error, Retryable: true}
	}
	if err != nil {
		msg, _ := Describe(err)
		s.log.Warn("payment failed",
			zap.String("session_id", sess.ID()),
			zap.String("attempt_id", att.id),
			zap.String("card_last4", att.method.Last4()),
			zap.Bool("ambiguous", payment.IsAmbiguous(err)),
			zap.Error(err))
		if payment.IsAmbiguous(err) {
			return Outcome{State: sess.paymentUnresolved(msg)}, err
		}
		return Outcome{State: sess.paymentFailed(msg)}, err
	}

	ref := res.ConfirmationNumber
	if ref == "" {
		ref = att.id
	}
	sess.paymentSucceeded(ref, att.amount)
	s.log.Info("payment captured",
		zap.String("session_id", sess.ID()),
		zap.String("attempt_id", att.id),
		zap.Stringer("amount", att.amount))
	return s.Finalize(ctx, sess)
}

// BeginHostedPayment creates a payment intent for a fresh attempt id and
// returns what the payment sheet needs. The session stays processing until
// CompleteHostedPayment reports the sheet's result.
func (s *Service) BeginHostedPayment(ctx context.Context, sess *Session) (payment.SheetParams, error) {
	hosted, ok := s.mode.(payment.Hosted)
	if !ok {
		return payment.SheetParams{}, ErrWrongPaymentMode
	}
	att, err := sess.beginPayment()
	if err != nil {
		return payment.SheetParams{}, err
	}
	intent, err := s.gateway.CreatePaymentIntent(ctx, att.id, att.amount)
	if err != nil {
		msg, _ := Describe(err)
		if payment.IsAmbiguous(err) {
			sess.paymentUnresolved(msg)
		} else {
			sess.paymentFailed(msg)
		}
		s.log.Warn("create payment intent failed",
			zap.String("session_id", sess.ID()),
			zap.String("attempt_id", att.id),
			zap.Error(err))
		return payment.SheetParams{}, err
	}
	return hosted.SheetParams(intent), nil
}

// CompleteHostedPayment applies what the sheet reported. A reported success
// only counts once the gateway confirms the intent for the attempt's amount.
func (s *Service) CompleteHostedPayment(ctx context.Context, sess *Session, res payment.SheetResult) (Outcome, error) {
	if !payment.IsHosted(s.mode) {
		return Outcome{State: sess.Snapshot()}, ErrWrongPaymentMode
	}
	att, ok := sess.openAttempt()
	if !ok {
		return Outcome{State: sess.Snapshot()}, ErrNoPaymentInFlight
	}

	switch res.Outcome {
	case payment.SheetSuccess:
		if out, err := s.confirmIntent(ctx, sess, att); err != nil {
			return out, err
		}
		sess.paymentSucceeded(att.id, att.amount)
		s.log.Info("payment sheet completed",
			zap.String("session_id", sess.ID()),
			zap.String("attempt_id", att.id),
			zap.Stringer("amount", att.amount))
		return s.Finalize(ctx, sess)
	case payment.SheetUserCancelled:
		return Outcome{State: sess.paymentCancelled(), Cancelled: true}, nil
	case payment.SheetFailed:
		reason := res.Reason
		if reason == "" {
			reason = "payment failed"
		}
		err := &payment.Error{Reason: reason, Retryable: true}
		return Outcome{State: sess.paymentFailed(reason)}, err
	default:
		return Outcome{State: sess.Snapshot()}, fmt.Errorf("%w: %q", ErrUnknownOutcome, res.Outcome)
	}
}

func (s *Service) confirmIntent(ctx context.Context, sess *Session, att paymentAttempt) (Outcome, error) {
	st, err := s.gateway.GetPaymentIntent(ctx, att.id)
	if err != nil {
		s.log.Warn("payment intent lookup failed",
			zap.String("session_id", sess.ID()),
			zap.String("attempt_id", att.id),
			zap.Error(err))
		if payment.IsRetryable(err) {
			// sheet tetap terbuka, client boleh kirim ulang hasilnya
			return Outcome{State: sess.Snapshot()}, err
		}
		msg, _ := Describe(err)
		return Outcome{State: sess.paymentFailed(msg)}, err
	}

	switch {
	case st.Succeeded() && st.Amount == att.amount:
		return Outcome{}, nil
	case st.Status == payment.IntentProcessing:
		return Outcome{State: sess.Snapshot()}, ErrPaymentPending
	default:
		s.log.Warn("payment sheet success not confirmed by gateway",
			zap.String("session_id", sess.ID()),
			zap.String("attempt_id", att.id),
			zap.String("intent_status", string(st.Status)),
			zap.Stringer("intent_amount", st.Amount),
			zap.Stringer("amount", att.amount))
		err := &payment.Error{Code: string(st.Status), Reason: "payment was not confirmed", Retryable: true}
		return Outcome{State: sess.paymentFailed(err.Reason)}, err
	}
}

// Finalize saves the paid order and resets the session. When the store keeps
// failing the session is flagged OrderUnsaved and Finalize may be called again;
// it reuses the same order and never touches the gateway.
func (s *Service) Finalize(ctx context.Context, sess *Session) (Outcome, error) {
	o, err := sess.materialize(func(items []orders.CartItem, addr orders.ShippingAddress, totals orders.Totals) orders.Order {
		return s.repo.CreateOrder(items, addr, totals, sess.UserID())
	})
	if err != nil {
		return Outcome{State: sess.Snapshot()}, err
	}

	// charge sudah terjadi: jangan biarkan client disconnect membatalkan save
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := s.repo.SaveOrder(ctx, o)
		if errors.Is(err, orders.ErrMissingUser) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(s.saveBackOff()), backoff.WithMaxTries(s.saveTries))
	if err != nil {
		msg, _ := Describe(ErrOrderNotSaved)
		s.log.Error("order not saved after payment",
			zap.String("session_id", sess.ID()),
			zap.String("order_id", o.OrderID),
			zap.String("payment_ref", o.PaymentReference),
			zap.Error(err))
		return Outcome{State: sess.orderUnsaved(msg), Order: &o}, fmt.Errorf("%w: %w", ErrOrderNotSaved, err)
	}

	s.log.Info("order placed",
		zap.String("session_id", sess.ID()),
		zap.String("order_id", o.OrderID),
		zap.String("confirmation_number", o.ConfirmationNumber))
	return Outcome{State: sess.orderSaved(), Order: &o}, nil
}
