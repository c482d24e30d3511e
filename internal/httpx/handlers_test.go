package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testCalc = orders.Calculator{
	TaxRate:      decimal.RequireFromString("0.08"),
	FlatShipping: 999,
	Currency:     "USD",
}

type testServer struct {
	*httptest.Server
	sessions *checkout.Registry
	redis    *miniredis.Miniredis
}

func newTestServer(t *testing.T, mode payment.Mode, opts ...payment.SandboxOption) testServer {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zaptest.NewLogger(t)
	repo := orders.NewRepository(orders.NewRedisStore(rdb), testCalc, orders.WithLogger(log))
	svc := checkout.NewService(payment.NewSandbox(opts...), mode, repo, log)
	sessions := checkout.NewRegistry(svc.SessionConfig(testCalc, checkout.NewCountries("US")))

	r := NewRouter()
	(&CheckoutHandler{Sessions: sessions, Service: svc, Pricing: testCalc}).Register(r)
	(&OrdersHandler{Repo: repo}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return testServer{Server: srv, sessions: sessions, redis: mr}
}

func (s testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

type viewResp struct {
	SessionID       string                  `json:"sessionId"`
	CurrentStep     string                  `json:"currentStep"`
	CartItems       []orders.CartItem       `json:"cartItems"`
	ShippingAddress *orders.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   map[string]any          `json:"paymentMethod"`
	Error           string                  `json:"error"`
	IsProcessing    bool                    `json:"isProcessing"`
	ItemCount       int                     `json:"itemCount"`
	Totals          orders.Totals           `json:"totals"`
}

func startSession(t *testing.T, s testServer) viewResp {
	var v viewResp
	code := s.do(t, http.MethodPost, "/checkout/sessions", CreateSessionReq{
		UserID: "u1",
		Items: []orders.CartItem{
			{ProductID: "p1", Title: "Mug", Price: 1000, Quantity: 2},
			{ProductID: "p2", Title: "Tea", Price: 500, Quantity: 1},
		},
	}, &v)
	require.Equal(t, http.StatusCreated, code)
	return v
}

var address = orders.ShippingAddress{Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"}

var card = orders.PaymentMethod{CardNumber: "4242424242424242", ExpiryDate: "12/40", CVV: "123", CardholderName: "Ada Lovelace"}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, payment.Direct{})
	res, err := http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCheckoutFlow_Direct(t *testing.T) {
	s := newTestServer(t, payment.Direct{})
	v := startSession(t, s)
	base := "/checkout/sessions/" + v.SessionID

	assert.Equal(t, "cart", v.CurrentStep)
	assert.Equal(t, 3, v.ItemCount)
	assert.Equal(t, orders.Cents(3699), v.Totals.Total)

	var totals orders.Totals
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, base+"/totals", nil, &totals))
	assert.Equal(t, orders.Totals{Subtotal: 2500, Tax: 200, Shipping: 999, Total: 3699}, totals)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/next", nil, &v))
	assert.Equal(t, "shipping", v.CurrentStep)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/next", nil, &v))
	assert.Equal(t, "shipping address is required", v.Error)

	var res checkout.Result
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, base+"/validation", nil, &res))
	assert.False(t, res.IsValid)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, base+"/shipping-address", address, &v))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/next", nil, &v))
	assert.Equal(t, "payment", v.CurrentStep)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, base+"/payment-method", card, &v))
	assert.Equal(t, "4242", v.PaymentMethod["last4"])
	assert.NotContains(t, v.PaymentMethod, "cardNumber")
	assert.NotContains(t, v.PaymentMethod, "cvv")

	var pr struct {
		State viewResp     `json:"state"`
		Order orders.Order `json:"order"`
	}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/pay", nil, &pr))
	assert.Equal(t, "cart", pr.State.CurrentStep)
	assert.Equal(t, orders.Cents(3699), pr.Order.Total)
	orderID := pr.Order.OrderID

	var list []orders.Order
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users/u1/orders", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, orderID, list[0].OrderID)

	var o orders.Order
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPatch, "/users/u1/orders/"+orderID+"/status", UpdateStatusReq{Status: "shipped"}, &o))
	assert.Equal(t, orders.StatusShipped, o.Status)

	var er errorResp
	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPatch, "/users/u1/orders/"+orderID+"/status", UpdateStatusReq{Status: "completed"}, &er))
	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPatch, "/users/u1/orders/"+orderID+"/status", UpdateStatusReq{Status: "lost"}, &er))

	var re orders.Order
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/users/u1/orders/"+orderID+"/reorder", nil, &re))
	assert.NotEqual(t, orderID, re.OrderID)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users/u1/orders?status=shipped", nil, &list))
	assert.Len(t, list, 1)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users/u1/orders?limit=1", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, re.OrderID, list[0].OrderID)

	var st orders.Statistics
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users/u1/orders/stats", nil, &st))
	assert.Equal(t, 2, st.TotalOrders)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/users/u1/orders/"+orderID, nil, nil))
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/users/u1/orders/"+orderID, nil, &er))
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/users/u1/orders", nil, nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users/u1/orders", nil, &list))
	assert.Empty(t, list)
}

func TestCheckout_Errors(t *testing.T) {
	s := newTestServer(t, payment.Direct{})

	var er errorResp
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/checkout/sessions/nope", nil, &er))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/checkout/sessions", CreateSessionReq{}, &er))

	v := startSession(t, s)
	base := "/checkout/sessions/" + v.SessionID

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/pay", nil, &er))
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/payment-sheet", nil, &er))

	s.do(t, http.MethodPost, base+"/next", nil, &v)
	s.do(t, http.MethodPut, base+"/shipping-address", address, &v)
	s.do(t, http.MethodPost, base+"/next", nil, &v)
	require.Equal(t, "payment", v.CurrentStep)

	er = errorResp{}
	assert.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, base+"/pay", nil, &er))
	assert.Equal(t, "payment method is required", er.Error)
	assert.Contains(t, er.Fields, "paymentMethod")

	declined := card
	declined.CardNumber = "4000000000000002"
	s.do(t, http.MethodPut, base+"/payment-method", declined, &v)
	er = errorResp{}
	assert.Equal(t, http.StatusPaymentRequired, s.do(t, http.MethodPost, base+"/pay", nil, &er))
	assert.Equal(t, "card declined", er.Error)
	assert.True(t, er.Retryable)
	require.NotNil(t, er.State)
	assert.Equal(t, checkout.StepPayment, er.State.CurrentStep)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/finalize", nil, &er))

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, base, nil, nil))
	assert.Equal(t, 0, s.sessions.Len())
}

var hosted = payment.Hosted{Config: payment.HostedConfig{MerchantDisplayName: "Demo", ReturnURL: "demo://back"}}

func TestCheckoutFlow_Hosted(t *testing.T) {
	s := newTestServer(t, hosted, payment.WithAutoConfirm())
	v := startSession(t, s)
	base := "/checkout/sessions/" + v.SessionID

	s.do(t, http.MethodPost, base+"/next", nil, &v)
	s.do(t, http.MethodPut, base+"/shipping-address", address, &v)
	s.do(t, http.MethodPost, base+"/next", nil, &v)
	require.Equal(t, "payment", v.CurrentStep)

	var params payment.SheetParams
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/payment-sheet", nil, &params))
	assert.Equal(t, "Demo", params.MerchantDisplayName)
	assert.NotEmpty(t, params.ClientSecret)

	var pr paymentRespBody
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/payment-sheet/result", payment.SheetResult{Outcome: payment.SheetUserCancelled}, &pr))
	assert.True(t, pr.Cancelled)
	assert.False(t, pr.State.IsProcessing)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/payment-sheet", nil, &params))
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/payment-sheet/result", payment.SheetResult{Outcome: payment.SheetSuccess}, &pr))
	require.NotNil(t, pr.Order)
	assert.Equal(t, "cart", pr.State.CurrentStep)

	var er errorResp
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/pay", nil, &er))
}

type paymentRespBody struct {
	State     viewResp      `json:"state"`
	Order     *orders.Order `json:"order"`
	Cancelled bool          `json:"cancelled"`
}

// atPayment walks a fresh session to the payment step over HTTP.
func atPayment(t *testing.T, s testServer) string {
	v := startSession(t, s)
	base := "/checkout/sessions/" + v.SessionID
	s.do(t, http.MethodPost, base+"/next", nil, &v)
	s.do(t, http.MethodPut, base+"/shipping-address", address, &v)
	s.do(t, http.MethodPost, base+"/next", nil, &v)
	require.Equal(t, "payment", v.CurrentStep)
	return base
}

func TestCheckout_HostedSuccessMustBeConfirmed(t *testing.T) {
	s := newTestServer(t, hosted)
	base := atPayment(t, s)

	var params payment.SheetParams
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/payment-sheet", nil, &params))

	var er errorResp
	assert.Equal(t, http.StatusPaymentRequired, s.do(t, http.MethodPost, base+"/payment-sheet/result", payment.SheetResult{Outcome: payment.SheetSuccess}, &er))
	assert.Equal(t, "payment was not confirmed", er.Error)
	require.NotNil(t, er.State)
	assert.Equal(t, checkout.StepPayment, er.State.CurrentStep)

	var history []orders.Order
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users/u1/orders", nil, &history))
	assert.Empty(t, history)
}

func TestCheckout_UnsavedOrderBlocksDelete(t *testing.T) {
	s := newTestServer(t, payment.Direct{})
	base := atPayment(t, s)
	var v viewResp
	s.do(t, http.MethodPut, base+"/payment-method", card, &v)

	s.redis.SetError("ERR store down")
	var er errorResp
	require.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodPost, base+"/pay", nil, &er))
	assert.True(t, er.Retryable)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, base, nil, &er))
	assert.Equal(t, 1, s.sessions.Len())
	er = errorResp{}
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/pay", nil, &er))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/previous", nil, &v))
	assert.Equal(t, "confirmation", v.CurrentStep)

	s.redis.SetError("")
	var pr paymentRespBody
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/finalize", nil, &pr))
	require.NotNil(t, pr.Order)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, base, nil, nil))
}
