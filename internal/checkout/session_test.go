package checkout

import (
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCalc = orders.Calculator{
	TaxRate:      decimal.RequireFromString("0.08"),
	FlatShipping: 999,
	Currency:     "USD",
}

func testConfig() Config {
	return Config{
		Calculator: testCalc,
		Countries:  NewCountries("US", "CA"),
		Now:        func() time.Time { return testNow },
	}
}

func cartItems() []orders.CartItem {
	return []orders.CartItem{
		{ProductID: "p1", Title: "Mug", Price: 1000, Quantity: 2},
		{ProductID: "p2", Title: "Tea", Price: 500, Quantity: 1},
	}
}

func newTestSession(items []orders.CartItem) *Session {
	s := NewSession("s1", "u1", testConfig())
	s.InitializeCheckout(items)
	return s
}

// atPayment walks a session through cart and shipping.
func atPayment(t *testing.T, s *Session) {
	t.Helper()
	s.SetShippingAddress(validAddress())
	require.Equal(t, StepShipping, s.ProceedToNextStep().CurrentStep)
	require.Equal(t, StepPayment, s.ProceedToNextStep().CurrentStep)
}

func TestInitializeCheckout(t *testing.T) {
	items := cartItems()
	s := newTestSession(items)

	st := s.Snapshot()
	assert.Equal(t, StepCart, st.CurrentStep)
	assert.Equal(t, items, st.CartItems)
	assert.Nil(t, st.ShippingAddress)
	assert.Empty(t, st.Error)
	assert.False(t, st.IsProcessing)

	items[0].Quantity = 50
	assert.Equal(t, 2, s.GetCartItems()[0].Quantity, "session must not alias caller items")

	s.SetShippingAddress(validAddress())
	s.ProceedToNextStep()
	st = s.InitializeCheckout(cartItems()[:1])
	assert.Equal(t, StepCart, st.CurrentStep)
	assert.Nil(t, st.ShippingAddress)
	assert.Len(t, st.CartItems, 1)
}

func TestCartEditing(t *testing.T) {
	s := newTestSession(cartItems())
	assert.Equal(t, 3, s.GetCartItemCount())
	assert.False(t, s.IsCartEmpty())

	st := s.UpdateCartItem("p1", 5)
	assert.Equal(t, 5, st.CartItems[0].Quantity)
	assert.Equal(t, 6, s.GetCartItemCount())

	st = s.UpdateCartItem("unknown", 3)
	assert.Len(t, st.CartItems, 2)

	st = s.UpdateCartItem("p1", 0)
	require.Len(t, st.CartItems, 1)
	assert.Equal(t, "p2", st.CartItems[0].ProductID)

	st = s.RemoveCartItem("p2")
	assert.Empty(t, st.CartItems)
	assert.True(t, s.IsCartEmpty())
	assert.Equal(t, 0, s.GetCartItemCount())
	assert.Equal(t, orders.Totals{}, s.CalculateTotals())
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := newTestSession(cartItems())
	s.SetShippingAddress(validAddress())

	st := s.Snapshot()
	st.CartItems[0].Quantity = 99
	st.ShippingAddress.City = "Elsewhere"

	again := s.Snapshot()
	assert.Equal(t, 2, again.CartItems[0].Quantity)
	assert.Equal(t, "Springfield", again.ShippingAddress.City)
}

func TestProceedToNextStep(t *testing.T) {
	s := newTestSession(nil)
	st := s.ProceedToNextStep()
	assert.Equal(t, StepCart, st.CurrentStep)
	assert.Equal(t, "cart is empty", st.Error)

	s.InitializeCheckout(cartItems())
	st = s.ProceedToNextStep()
	assert.Equal(t, StepShipping, st.CurrentStep)
	assert.Empty(t, st.Error)

	st = s.ProceedToNextStep()
	assert.Equal(t, StepShipping, st.CurrentStep)
	assert.Equal(t, "shipping address is required", st.Error)

	bad := validAddress()
	bad.Country = "BR"
	s.SetShippingAddress(bad)
	st = s.ProceedToNextStep()
	assert.Equal(t, StepShipping, st.CurrentStep)
	assert.Equal(t, "we do not ship to BR", st.Error)

	s.SetShippingAddress(validAddress())
	st = s.ProceedToNextStep()
	assert.Equal(t, StepPayment, st.CurrentStep)

	st = s.ProceedToNextStep()
	assert.Equal(t, StepPayment, st.CurrentStep)
	assert.Equal(t, "payment method is required", st.Error)

	s.SetPaymentMethod(validCard())
	st = s.ProceedToNextStep()
	assert.Equal(t, StepConfirmation, st.CurrentStep)

	st = s.ProceedToNextStep()
	assert.Equal(t, StepConfirmation, st.CurrentStep, "confirmation is the last step")
}

func TestGoToPreviousStep(t *testing.T) {
	s := newTestSession(cartItems())
	assert.Equal(t, StepCart, s.GoToPreviousStep().CurrentStep)

	atPayment(t, s)
	s.ProceedToNextStep() // fails: no card
	st := s.GoToPreviousStep()
	assert.Equal(t, StepShipping, st.CurrentStep)
	assert.Empty(t, st.Error)
	assert.NotNil(t, st.ShippingAddress, "going back keeps entered data")
}

func TestValidateCurrentStep_HostedSkipsCard(t *testing.T) {
	cfg := testConfig()
	cfg.HostedPayments = true
	s := NewSession("s1", "u1", cfg)
	s.InitializeCheckout(cartItems())
	atPayment(t, s)

	assert.True(t, s.ValidateCurrentStep().IsValid)
}

func TestResetCheckout(t *testing.T) {
	s := newTestSession(cartItems())
	atPayment(t, s)
	require.NotEmpty(t, s.ProceedToNextStep().Error, "no card yet")
	s.SetPaymentMethod(validCard())
	s.SetProcessing(true)

	st := s.ResetCheckout()
	assert.Equal(t, StepCart, st.CurrentStep)
	assert.Empty(t, st.CartItems)
	assert.NotNil(t, st.CartItems)
	assert.Nil(t, st.ShippingAddress)
	assert.Nil(t, st.PaymentMethod)
	assert.Empty(t, st.Error)
	assert.False(t, st.IsProcessing)
	assert.False(t, st.OrderUnsaved)
	assert.False(t, s.HoldsPayment())
}

// paidSession is a session whose charge went through but whose order was
// never saved.
func paidSession(t *testing.T) *Session {
	t.Helper()
	s := newTestSession(cartItems())
	atPayment(t, s)
	s.SetPaymentMethod(validCard())
	att, err := s.beginPayment()
	require.NoError(t, err)
	s.paymentSucceeded("ch_1", att.amount)
	s.orderUnsaved(unsavedOrderMessage)
	return s
}

func TestPaidSession_IsFrozen(t *testing.T) {
	s := paidSession(t)
	before := s.Snapshot()
	require.Equal(t, StepConfirmation, before.CurrentStep)
	require.True(t, s.HoldsPayment())

	assert.Equal(t, StepConfirmation, s.GoToPreviousStep().CurrentStep)
	assert.Equal(t, before.CartItems, s.UpdateCartItem("p1", 9).CartItems)
	assert.Equal(t, before.CartItems, s.RemoveCartItem("p2").CartItems)
	other := validAddress()
	other.City = "Elsewhere"
	assert.Equal(t, before.ShippingAddress, s.SetShippingAddress(other).ShippingAddress)

	st := s.InitializeCheckout(nil)
	assert.Equal(t, StepConfirmation, st.CurrentStep)
	assert.Equal(t, before.CartItems, st.CartItems)
	assert.True(t, st.OrderUnsaved)
	assert.Equal(t, unsavedOrderMessage, st.Error)

	st = s.ResetCheckout()
	assert.Equal(t, StepConfirmation, st.CurrentStep)
	assert.Equal(t, unsavedOrderMessage, st.Error)
	assert.True(t, s.HoldsPayment())

	_, err := s.beginPayment()
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	// saving the order releases the session
	_, err = s.materialize(func(items []orders.CartItem, addr orders.ShippingAddress, totals orders.Totals) orders.Order {
		return orders.Order{OrderID: "o1", Items: items, Total: totals.Total}
	})
	require.NoError(t, err)
	s.orderSaved()
	assert.False(t, s.HoldsPayment())
	assert.Equal(t, StepCart, s.ResetCheckout().CurrentStep)
}

func TestTryBeginProcessing(t *testing.T) {
	s := newTestSession(cartItems())

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryBeginProcessing() {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
	assert.True(t, s.Snapshot().IsProcessing)

	s.SetProcessing(false)
	assert.True(t, s.TryBeginProcessing())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(testConfig())
	a := r.Create("u1", cartItems())
	b := r.Create("u2", nil)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, r.Len())

	got, err := r.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Equal(t, "u1", got.UserID())
	assert.Equal(t, 3, got.GetCartItemCount())

	// sessions are independent
	b.UpdateCartItem("p1", 9)
	assert.Equal(t, 3, a.GetCartItemCount())

	require.NoError(t, r.Delete(a.ID()))
	_, err = r.Get(a.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, r.Len())
	assert.ErrorIs(t, r.Delete(a.ID()), ErrSessionNotFound)
}

func TestRegistry_DeleteKeepsPaidSession(t *testing.T) {
	r := NewRegistry(testConfig())
	s := r.Create("u1", cartItems())
	atPayment(t, s)
	s.SetPaymentMethod(validCard())
	att, err := s.beginPayment()
	require.NoError(t, err)
	s.paymentSucceeded("ch_1", att.amount)

	assert.ErrorIs(t, r.Delete(s.ID()), ErrUnsavedOrder)
	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, got.Snapshot().CurrentStep)
}
