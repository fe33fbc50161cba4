package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-saree-storefront/internal/auth"
	"github.com/ariefcatur/go-saree-storefront/internal/confirm"
	"github.com/ariefcatur/go-saree-storefront/internal/orders"
	"github.com/ariefcatur/go-saree-storefront/internal/redisx"
)

type OrderStore interface {
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	GetStatus(ctx context.Context, id string) (orders.Status, error)
	UpdateStatus(ctx context.Context, id string, to orders.Status) (orders.Status, error)
}

type StatusCache interface {
	GetStatus(ctx context.Context, orderID string) (redisx.StatusEntry, bool, error)
	SetStatus(ctx context.Context, orderID string, s orders.Status) error
}

type StatusPublisher interface {
	StatusChanged(ctx context.Context, orderID string, from, to orders.Status, traceID string) error
}

type CallbackQueue interface {
	Pending(ctx context.Context, limit int) ([]confirm.Callback, error)
	Done(ctx context.Context, orderID string) error
}

type OrdersHandler struct {
	Repo      OrderStore
	Cache     StatusCache
	Publisher StatusPublisher // optional
	Callbacks CallbackQueue   // optional
	Log       *slog.Logger
}

type orderStatusResp struct {
	OrderID string        `json:"order_id"`
	ShortID string        `json:"short_id"`
	Status  orders.Status `json:"status"`
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

// Register mounts the shopper routes; /orders needs a signed-in user.
func (h *OrdersHandler) Register(r chi.Router) {
	r.With(requireUser).Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) RegisterStaff(r chi.Router) {
	r.Route("/staff", func(r chi.Router) {
		r.Use(requireStaff)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Get("/callbacks", h.pendingCallbacks)
		r.Delete("/callbacks/{id}", h.doneCallback)
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := auth.FromContext(ctx)
	list, err := h.Repo.ListByUser(ctx, id.UserID)
	if err != nil {
		h.Log.Error("list orders", "user_id", id.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not load orders")
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_id", "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if e, ok, err := h.Cache.GetStatus(ctx, orderID); err == nil && ok {
		writeJSON(w, http.StatusOK, orderStatusResp{OrderID: orderID, ShortID: orders.ShortID(orderID), Status: e.Status})
		return
	} else if err != nil {
		h.Log.Warn("status cache read failed", "order_id", orderID, "error", err)
	}

	// 2) fallback DB
	status, err := h.Repo.GetStatus(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	if err != nil {
		h.Log.Error("get order status", "order_id", orderID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not load order")
		return
	}
	_ = h.Cache.SetStatus(ctx, orderID, status)
	writeJSON(w, http.StatusOK, orderStatusResp{OrderID: orderID, ShortID: orders.ShortID(orderID), Status: status})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := decodeJSON(w, r, &req); err != nil || !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_status", "unknown status")
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	from, err := h.Repo.UpdateStatus(ctx, orderID, req.Status)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	case errors.Is(err, orders.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
		return
	case err != nil:
		h.Log.Error("update order status", "order_id", orderID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not update order")
		return
	}

	if err := h.Cache.SetStatus(ctx, orderID, req.Status); err != nil {
		h.Log.Warn("status cache write failed", "order_id", orderID, "error", err)
	}
	if h.Publisher != nil {
		if err := h.Publisher.StatusChanged(ctx, orderID, from, req.Status, middleware.GetReqID(ctx)); err != nil {
			h.Log.Warn("publish status changed failed", "order_id", orderID, "error", err)
		}
	}
	// confirmed or cancelled orders no longer need a call
	if h.Callbacks != nil && from == orders.StatusPending {
		if err := h.Callbacks.Done(ctx, orderID); err != nil {
			h.Log.Warn("remove call-back failed", "order_id", orderID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, orderStatusResp{OrderID: orderID, ShortID: orders.ShortID(orderID), Status: req.Status})
}

func (h *OrdersHandler) pendingCallbacks(w http.ResponseWriter, r *http.Request) {
	if h.Callbacks == nil {
		writeJSON(w, http.StatusOK, []confirm.Callback{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.Callbacks.Pending(r.Context(), limit)
	if err != nil {
		h.Log.Error("list call-backs", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not load call-backs")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) doneCallback(w http.ResponseWriter, r *http.Request) {
	if h.Callbacks != nil {
		if err := h.Callbacks.Done(r.Context(), chi.URLParam(r, "id")); err != nil {
			h.Log.Error("remove call-back", "error", err)
			respondError(w, http.StatusInternalServerError, "internal", "could not update call-backs")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
