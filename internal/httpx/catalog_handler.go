package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-saree-storefront/internal/catalog"
)

type CatalogLister interface {
	List(ctx context.Context, f catalog.Filter) ([]catalog.Product, error)
	Categories(ctx context.Context) ([]string, error)
}

type CatalogHandler struct {
	Catalog CatalogLister
	Log     *slog.Logger
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/categories", h.categories)
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx, catalog.Filter{Category: r.URL.Query().Get("category")})
	if err != nil {
		h.Log.Error("list products", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not load products")
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CatalogHandler) categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cs, err := h.Catalog.Categories(ctx)
	if err != nil {
		h.Log.Error("list categories", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not load categories")
		return
	}
	if cs == nil {
		cs = []string{}
	}
	writeJSON(w, http.StatusOK, cs)
}
