package httpx

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-saree-storefront/internal/auth"
	"github.com/ariefcatur/go-saree-storefront/internal/checkout"
)

type CheckoutHandler struct {
	Orchestrator *checkout.Orchestrator
}

type submissionFailedResp struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	ContactPhone string `json:"contact_phone"`
}

type phaseReq struct {
	Phase checkout.Phase `json:"phase"`
}

type phaseResp struct {
	Phase checkout.Phase `json:"phase"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Get("/checkout/form", h.form)
	r.Post("/checkout", h.submit)
	r.Get("/checkout/phase", h.getPhase)
	r.Put("/checkout/phase", h.putPhase)
}

func (h *CheckoutHandler) form(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, checkout.NewForm())
}

func (h *CheckoutHandler) submit(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if err := decodeJSON(w, r, &form); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	rc, err := h.Orchestrator.Submit(r.Context(), checkout.Request{
		SessionID: sessionID(r.Context()),
		UserID:    auth.UserID(r.Context()),
		Form:      form,
		TraceID:   middleware.GetReqID(r.Context()),
		// lets a client retry a timed out submit without a second order
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rc)
}

func writeCheckoutError(w http.ResponseWriter, err error) {
	var (
		verr *checkout.ValidationError
		perr *checkout.PriceChangedError
		uerr *checkout.UnavailableError
		serr *checkout.SubmissionError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "please correct the highlighted fields", Code: "validation_failed", Details: verr.Fields,
		})
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "your cart is empty")
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		respondError(w, http.StatusConflict, "in_flight", "your order is already being placed")
	case errors.As(err, &perr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "some prices changed, please review your cart", Code: "price_changed", Details: perr.Changes,
		})
	case errors.As(err, &uerr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "some items are no longer available", Code: "unavailable", Details: uerr.IDs,
		})
	case errors.As(err, &serr):
		writeJSON(w, http.StatusBadGateway, submissionFailedResp{
			Error: serr.Message, Code: "submission_failed", ContactPhone: serr.ContactPhone,
		})
	default:
		respondError(w, http.StatusInternalServerError, "internal", checkout.FailureMessage)
	}
}

func (h *CheckoutHandler) getPhase(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, phaseResp{Phase: h.Orchestrator.Phases().Phase(sessionID(r.Context()))})
}

func (h *CheckoutHandler) putPhase(w http.ResponseWriter, r *http.Request) {
	var req phaseReq
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	sid := sessionID(r.Context())
	if err := h.Orchestrator.Phases().Move(sid, req.Phase); err != nil {
		respondError(w, http.StatusConflict, "illegal_phase", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, phaseResp{Phase: h.Orchestrator.Phases().Phase(sid)})
}
