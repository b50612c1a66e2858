package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
	"github.com/mizpos/terminal-link-go/internal/service"
)

// PairingHandler serves the pairing lifecycle: the POS side registers, polls
// and tears down; the terminal side claims, heartbeats and pulls work.
type PairingHandler struct {
	registry     *service.RegistryService
	ledger       *service.LedgerService
	claimLimiter func(http.Handler) http.Handler
}

func NewPairingHandler(
	registry *service.RegistryService,
	ledger *service.LedgerService,
	claimLimiter func(http.Handler) http.Handler,
) *PairingHandler {
	return &PairingHandler{
		registry:     registry,
		ledger:       ledger,
		claimLimiter: claimLimiter,
	}
}

func (h *PairingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Get("/{pinCode}", h.Get)
	r.Delete("/{pinCode}", h.Unregister)

	if h.claimLimiter != nil {
		r.With(h.claimLimiter).Post("/{pinCode}/claim", h.Claim)
	} else {
		r.Post("/{pinCode}/claim", h.Claim)
	}
	r.Post("/{pinCode}/heartbeat", h.Heartbeat)
	r.Get("/{pinCode}/payment-requests/next", h.NextPaymentRequest)

	return r
}

// POST /terminal/pairing/register
func (h *PairingHandler) Register(w http.ResponseWriter, r *http.Request) {
	var params model.RegisterPairingParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	pairing, err := h.registry.Register(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"pairing": pairing})
}

// GET /terminal/pairing/{pinCode}
func (h *PairingHandler) Get(w http.ResponseWriter, r *http.Request) {
	pairing, err := h.registry.Lookup(r.Context(), chi.URLParam(r, "pinCode"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pairing": pairing})
}

// DELETE /terminal/pairing/{pinCode}
func (h *PairingHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Unregister(r.Context(), chi.URLParam(r, "pinCode")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /terminal/pairing/{pinCode}/claim
func (h *PairingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var params model.ClaimPairingParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	pairing, err := h.registry.Claim(r.Context(), chi.URLParam(r, "pinCode"), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pairing": pairing})
}

// POST /terminal/pairing/{pinCode}/heartbeat
func (h *PairingHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var params model.HeartbeatParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	if err := h.registry.Heartbeat(r.Context(), chi.URLParam(r, "pinCode"), params); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /terminal/pairing/{pinCode}/payment-requests/next?terminal_serial=...
//
// The terminal polls this for work. An empty queue is a 404, which keeps the
// terminal loop a plain poll-until-200.
func (h *PairingHandler) NextPaymentRequest(w http.ResponseWriter, r *http.Request) {
	pin := chi.URLParam(r, "pinCode")
	serial := r.URL.Query().Get("terminal_serial")

	req, err := h.ledger.NextPending(r.Context(), pin, serial)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Debug().
		Str("request_id", req.RequestID).
		Str("terminal_serial", serial).
		Msg("payment request handed to terminal")

	writeJSON(w, http.StatusOK, map[string]any{"payment_request": req})
}
