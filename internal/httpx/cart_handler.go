package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-saree-storefront/internal/cart"
)

type CartHandler struct {
	Sessions  *cart.Sessions
	Heartbeat time.Duration
}

type addItemReq struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url"`
}

type updateQtyReq struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.get)
	r.Delete("/cart", h.clear)
	r.Post("/cart/items", h.add)
	r.Patch("/cart/items/{id}", h.update)
	r.Delete("/cart/items/{id}", h.remove)
}

// RegisterStream mounts the long-lived SSE route; it must sit outside the
// request timeout middleware.
func (h *CartHandler) RegisterStream(r chi.Router) {
	r.Get("/cart/stream", h.stream)
}

func (h *CartHandler) store(r *http.Request) *cart.Store {
	return h.Sessions.Get(r.Context(), sessionID(r.Context()))
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store(r).Snapshot())
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || strings.TrimSpace(req.Name) == "" || !req.Price.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid_item", "id, name and a positive price are required")
		return
	}
	st := h.store(r)
	st.Add(r.Context(), cart.Item{ID: req.ID, Name: req.Name, Price: req.Price, ImageURL: req.ImageURL})
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateQtyReq
	if err := decodeJSON(w, r, &req); err != nil || req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "quantity is required")
		return
	}
	st := h.store(r)
	st.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), *req.Quantity)
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	st.Remove(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	st := h.store(r)
	st.Clear(r.Context())
	writeJSON(w, http.StatusOK, st.Snapshot())
}

// stream pushes the cart as server-sent events: the current snapshot first,
// then one event per mutation. Only the latest snapshot is kept for a slow reader.
func (h *CartHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "stream_unsupported", "streaming unsupported")
		return
	}
	st := h.store(r)
	updates := make(chan cart.Snapshot, 1)
	unsubscribe := st.Subscribe(func(s cart.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(s cart.Snapshot) bool {
		b, err := json.Marshal(s)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send(st.Snapshot()) {
		return
	}

	beat := h.Heartbeat
	if beat <= 0 {
		beat = 25 * time.Second
	}
	ticker := time.NewTicker(beat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-updates:
			if !send(s) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
