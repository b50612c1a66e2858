package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
	"github.com/mizpos/terminal-link-go/internal/service"
)

// PaymentHandler serves the payment request ledger: the POS side creates,
// polls and cancels; the terminal side reports results.
type PaymentHandler struct {
	ledger *service.LedgerService
}

func NewPaymentHandler(ledger *service.LedgerService) *PaymentHandler {
	return &PaymentHandler{ledger: ledger}
}

func (h *PaymentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/{requestID}", h.Get)
	r.Delete("/{requestID}", h.Cancel)
	r.Post("/{requestID}/result", h.SubmitResult)

	return r
}

// POST /terminal/payment-requests
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params model.CreatePaymentRequestParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	req, err := h.ledger.Create(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"payment_request": req})
}

// GET /terminal/payment-requests/{requestID}
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.ledger.Get(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"payment_request": req})
}

// DELETE /terminal/payment-requests/{requestID}
//
// Cancellation is best-effort on the POS side, so a request the terminal
// already finished still answers 204.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Cancel(r.Context(), chi.URLParam(r, "requestID")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /terminal/payment-requests/{requestID}/result
func (h *PaymentHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var params model.TerminalResultParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	req, err := h.ledger.SubmitResult(r.Context(), chi.URLParam(r, "requestID"), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"payment_request": req})
}
