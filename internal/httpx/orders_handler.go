package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	Repo *orders.Repository
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/users/{userID}/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Delete("/", h.clearOrders)
		r.Get("/stats", h.stats)
		r.Get("/{orderID}", h.getOrder)
		r.Delete("/{orderID}", h.deleteOrder)
		r.Patch("/{orderID}/status", h.updateStatus)
		r.Post("/{orderID}/reorder", h.reorder)
	})
}

// listOrders serves the full history, ?status= filters and ?limit= takes the
// newest n.
func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		list []orders.Order
		err  error
	)
	q := r.URL.Query()
	switch {
	case q.Get("status") != "":
		st, perr := orders.ParseStatus(q.Get("status"))
		if perr != nil {
			writeError(w, perr, nil)
			return
		}
		list, err = h.Repo.GetOrdersByStatus(ctx, userID, st)
	case q.Get("limit") != "":
		n, perr := strconv.Atoi(q.Get("limit"))
		if perr != nil {
			badRequest(w, "limit must be a number")
			return
		}
		list, err = h.Repo.GetRecentOrders(ctx, userID, n)
	default:
		list, err = h.Repo.GetOrderHistory(ctx, userID)
	}
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	st, err := h.Repo.GetOrderStatistics(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	o, err := h.Repo.GetOrderByID(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if !decode(w, r, &req) {
		return
	}
	st, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	o, err := h.Repo.UpdateOrderStatus(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "orderID"), st)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) reorder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	o, err := h.Repo.CreateReorder(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.Repo.DeleteOrder(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "orderID")); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) clearOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.Repo.ClearOrderHistory(ctx, chi.URLParam(r, "userID")); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
