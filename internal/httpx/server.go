package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error     string            `json:"error"`
	Retryable bool              `json:"retryable"`
	Fields    map[string]string `json:"fields,omitempty"`
	State     *sessionView      `json:"state,omitempty"`
}

func writeError(w http.ResponseWriter, err error, state *sessionView) {
	msg, retryable := checkout.Describe(err)
	resp := errorResp{Error: msg, Retryable: retryable, State: state}
	var ve *checkout.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Result.Errors
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	var (
		ve *checkout.ValidationError
		pe *payment.Error
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrSessionNotFound), errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrOrderNotSaved):
		return http.StatusServiceUnavailable
	case errors.As(err, &pe):
		return http.StatusPaymentRequired
	case errors.Is(err, checkout.ErrUnknownOutcome), errors.Is(err, orders.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrPaymentInProgress),
		errors.Is(err, checkout.ErrPaymentPending),
		errors.Is(err, checkout.ErrAlreadyPaid),
		errors.Is(err, checkout.ErrUnsavedOrder),
		errors.Is(err, checkout.ErrNotAtPaymentStep),
		errors.Is(err, checkout.ErrNoPaymentInFlight),
		errors.Is(err, checkout.ErrWrongPaymentMode),
		errors.Is(err, checkout.ErrPaymentRequired),
		errors.Is(err, checkout.ErrIncompleteOrder),
		errors.Is(err, orders.ErrIllegalTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResp{Error: msg})
}
