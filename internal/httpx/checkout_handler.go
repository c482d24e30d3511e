package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/go-chi/chi/v5"
)

type CheckoutHandler struct {
	Sessions *checkout.Registry
	Service  *checkout.Service
	Pricing  orders.Calculator
}

type CreateSessionReq struct {
	UserID string            `json:"userId"`
	Items  []orders.CartItem `json:"items"`
}

type UpdateQuantityReq struct {
	Quantity int `json:"quantity"`
}

type maskedMethod struct {
	CardholderName string `json:"cardholderName"`
	Last4          string `json:"last4"`
	ExpiryDate     string `json:"expiryDate"`
	IsDefault      bool   `json:"isDefault,omitempty"`
}

// sessionView is a session snapshot safe to send to clients: card data is
// masked and totals are included.
type sessionView struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	checkout.State
	PaymentMethod *maskedMethod `json:"paymentMethod,omitempty"`
	ItemCount     int           `json:"itemCount"`
	Totals        orders.Totals `json:"totals"`
}

type paymentResp struct {
	State     sessionView   `json:"state"`
	Order     *orders.Order `json:"order,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Route("/checkout/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Put("/items/{productID}", h.updateItem)
			r.Delete("/items/{productID}", h.removeItem)
			r.Put("/shipping-address", h.setShippingAddress)
			r.Put("/payment-method", h.setPaymentMethod)
			r.Post("/next", h.next)
			r.Post("/previous", h.previous)
			r.Get("/validation", h.validation)
			r.Get("/totals", h.totals)
			r.Post("/pay", h.pay)
			r.Post("/payment-sheet", h.paymentSheet)
			r.Post("/payment-sheet/result", h.paymentSheetResult)
			r.Post("/finalize", h.finalize)
		})
	})
}

func (h *CheckoutHandler) view(s *checkout.Session, st checkout.State) sessionView {
	v := sessionView{
		SessionID: s.ID(),
		UserID:    s.UserID(),
		State:     st,
		Totals:    h.Pricing.Totals(st.CartItems),
	}
	for _, it := range st.CartItems {
		v.ItemCount += it.Quantity
	}
	if m := st.PaymentMethod; m != nil {
		v.PaymentMethod = &maskedMethod{
			CardholderName: m.CardholderName,
			Last4:          m.Last4(),
			ExpiryDate:     m.ExpiryDate,
			IsDefault:      m.IsDefault,
		}
	}
	return v
}

func (h *CheckoutHandler) session(w http.ResponseWriter, r *http.Request) (*checkout.Session, bool) {
	s, err := h.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return nil, false
	}
	return s, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

func (h *CheckoutHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionReq
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		badRequest(w, "missing fields")
		return
	}
	s := h.Sessions.Create(req.UserID, req.Items)
	writeJSON(w, http.StatusCreated, h.view(s, s.Snapshot()))
}

func (h *CheckoutHandler) getSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, h.view(s, s.Snapshot()))
	}
}

func (h *CheckoutHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Delete(s.ID()); err != nil {
		v := h.view(s, s.Snapshot())
		writeError(w, err, &v)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityReq
	if !decode(w, r, &req) {
		return
	}
	st := s.UpdateCartItem(chi.URLParam(r, "productID"), req.Quantity)
	writeJSON(w, http.StatusOK, h.view(s, st))
}

func (h *CheckoutHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, h.view(s, s.RemoveCartItem(chi.URLParam(r, "productID"))))
	}
}

func (h *CheckoutHandler) setShippingAddress(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var addr orders.ShippingAddress
	if !decode(w, r, &addr) {
		return
	}
	writeJSON(w, http.StatusOK, h.view(s, s.SetShippingAddress(addr)))
}

func (h *CheckoutHandler) setPaymentMethod(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var m orders.PaymentMethod
	if !decode(w, r, &m) {
		return
	}
	writeJSON(w, http.StatusOK, h.view(s, s.SetPaymentMethod(m)))
}

// next always answers 200; a failed validation shows up in state.error.
func (h *CheckoutHandler) next(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, h.view(s, s.ProceedToNextStep()))
	}
}

func (h *CheckoutHandler) previous(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, h.view(s, s.GoToPreviousStep()))
	}
}

func (h *CheckoutHandler) validation(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, s.ValidateCurrentStep())
	}
}

func (h *CheckoutHandler) totals(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, s.CalculateTotals())
	}
}

func (h *CheckoutHandler) pay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()
	h.writeOutcome(w, s)(h.Service.Pay(ctx, s))
}

func (h *CheckoutHandler) paymentSheet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()
	params, err := h.Service.BeginHostedPayment(ctx, s)
	if err != nil {
		v := h.view(s, s.Snapshot())
		writeError(w, err, &v)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (h *CheckoutHandler) paymentSheetResult(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var res payment.SheetResult
	if !decode(w, r, &res) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()
	h.writeOutcome(w, s)(h.Service.CompleteHostedPayment(ctx, s, res))
}

func (h *CheckoutHandler) finalize(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeOutcome(w, s)(h.Service.Finalize(r.Context(), s))
}

func (h *CheckoutHandler) writeOutcome(w http.ResponseWriter, s *checkout.Session) func(checkout.Outcome, error) {
	return func(out checkout.Outcome, err error) {
		v := h.view(s, out.State)
		if err != nil {
			writeError(w, err, &v)
			return
		}
		code := http.StatusOK
		if out.Order != nil {
			code = http.StatusCreated
		}
		writeJSON(w, code, paymentResp{State: v, Order: out.Order, Cancelled: out.Cancelled})
	}
}
