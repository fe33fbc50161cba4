package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-saree-storefront/internal/auth"
	"github.com/ariefcatur/go-saree-storefront/internal/cart"
	"github.com/ariefcatur/go-saree-storefront/internal/checkout"
)

func NewRouter(log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

type Routes struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Catalog  *CatalogHandler
	Orders   *OrdersHandler
	Session  *SessionHandler
	Verifier *auth.Verifier
	Timeout  time.Duration
}

// Mount wires every handler behind the session and auth middleware. The cart
// stream is long-lived, so it stays outside the request timeout.
func (rt Routes) Mount(r chi.Router) {
	timeout := rt.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r.Group(func(r chi.Router) {
		r.Use(withSession, withAuth(rt.Verifier))
		if rt.Cart != nil {
			rt.Cart.RegisterStream(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			if rt.Catalog != nil {
				rt.Catalog.Register(r)
			}
			if rt.Cart != nil {
				rt.Cart.Register(r)
			}
			if rt.Checkout != nil {
				rt.Checkout.Register(r)
			}
			if rt.Orders != nil {
				rt.Orders.Register(r)
				rt.Orders.RegisterStaff(r)
			}
			if rt.Session != nil {
				rt.Session.Register(r)
			}
		})
	})
}

// SessionHandler ends a browser session. The cart and checkout phase go with it.
type SessionHandler struct {
	Sessions *cart.Sessions
	Phases   *checkout.Tracker
}

func (h *SessionHandler) Register(r chi.Router) {
	r.Post("/session/logout", h.logout)
}

func (h *SessionHandler) logout(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r.Context())
	h.Sessions.Drop(r.Context(), sid)
	if h.Phases != nil {
		h.Phases.Forget(sid)
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}
