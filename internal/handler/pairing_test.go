package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizpos/terminal-link-go/internal/model"
	"github.com/mizpos/terminal-link-go/internal/repository"
	"github.com/mizpos/terminal-link-go/internal/service"
)

// serverFixture is the rendezvous route tree over in-memory repositories,
// assembled the same way the server binary does it.
type serverFixture struct {
	pairings *repository.MemoryPairingRepository
	requests *repository.MemoryPaymentRequestRepository
	registry *service.RegistryService
	ledger   *service.LedgerService
	router   chi.Router
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		pairings: repository.NewMemoryPairingRepository(),
		requests: repository.NewMemoryPaymentRequestRepository(),
	}
	f.registry = service.NewRegistryService(f.pairings)
	f.ledger = service.NewLedgerService(f.pairings, f.requests)

	r := chi.NewRouter()
	r.Mount("/terminal/pairing", NewPairingHandler(f.registry, f.ledger, nil).Routes())
	r.Mount("/terminal/payment-requests", NewPaymentHandler(f.ledger).Routes())
	f.router = r
	return f
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) register(t *testing.T, pin string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/terminal/pairing/register", registerBody(pin))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func (f *serverFixture) claim(t *testing.T, pin, serial string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/terminal/pairing/"+pin+"/claim",
		map[string]any{"terminal_serial": serial})
	require.Equal(t, http.StatusOK, rec.Code)
}

func registerBody(pin string) map[string]any {
	return map[string]any{
		"pin_code": pin,
		"pos_id":   "pos-7",
		"pos_name": "Front register",
	}
}

func decodePairing(t *testing.T, rec *httptest.ResponseRecorder) *model.PairingRecord {
	t.Helper()
	var env struct {
		Pairing *model.PairingRecord `json:"pairing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Pairing)
	return env.Pairing
}

func decodePaymentRequest(t *testing.T, rec *httptest.ResponseRecorder) *model.PaymentRequest {
	t.Helper()
	var env struct {
		PaymentRequest *model.PaymentRequest `json:"payment_request"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.PaymentRequest)
	return env.PaymentRequest
}

func TestPairingRegister(t *testing.T) {
	t.Run("returns 201 with the stored pairing", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPost, "/terminal/pairing/register", registerBody("482913"))

		assert.Equal(t, http.StatusCreated, rec.Code)
		pairing := decodePairing(t, rec)
		assert.Equal(t, "482913", pairing.PinCode)
		assert.False(t, pairing.TerminalConnected)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), pairing.ExpiresAt, time.Minute)
	})

	t.Run("returns 409 when the PIN is already live", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")

		rec := f.do(t, http.MethodPost, "/terminal/pairing/register", registerBody("482913"))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "PIN_CONFLICT")
	})

	t.Run("returns 400 on a malformed body", func(t *testing.T) {
		f := newServerFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/terminal/pairing/register",
			bytes.NewBufferString(`{not json`))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	})

	t.Run("returns 400 on a non 6-digit PIN", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPost, "/terminal/pairing/register", registerBody("12AB56"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_PIN")
	})

	t.Run("returns 400 when pos_id is missing", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPost, "/terminal/pairing/register", map[string]any{
			"pin_code": "482913",
			"pos_name": "Front register",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_REQUIRED")
	})
}

func TestPairingGet(t *testing.T) {
	t.Run("returns the live pairing", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")

		rec := f.do(t, http.MethodGet, "/terminal/pairing/482913", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		pairing := decodePairing(t, rec)
		assert.Equal(t, "482913", pairing.PinCode)
		assert.False(t, pairing.TerminalConnected)
	})

	t.Run("returns 404 for an unknown PIN", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodGet, "/terminal/pairing/000000", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})

	t.Run("returns 404 once the pairing expired", func(t *testing.T) {
		f := newServerFixture(t)
		_, err := f.pairings.Create(context.Background(), model.RegisterPairingParams{
			PinCode: "482913",
			PosID:   "pos-7",
			PosName: "Front register",
		}, time.Now().Add(-time.Minute))
		require.NoError(t, err)

		rec := f.do(t, http.MethodGet, "/terminal/pairing/482913", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPairingUnregister(t *testing.T) {
	f := newServerFixture(t)
	f.register(t, "482913")

	rec := f.do(t, http.MethodDelete, "/terminal/pairing/482913", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/terminal/pairing/482913", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Teardown is best-effort on the client, so repeats stay 204.
	rec = f.do(t, http.MethodDelete, "/terminal/pairing/482913", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPairingClaim(t *testing.T) {
	t.Run("connects the terminal", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")

		rec := f.do(t, http.MethodPost, "/terminal/pairing/482913/claim", map[string]any{
			"terminal_serial": "TERM-9",
			"terminal_name":   "Reader A",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		pairing := decodePairing(t, rec)
		assert.True(t, pairing.TerminalConnected)
		require.NotNil(t, pairing.TerminalSerial)
		assert.Equal(t, "TERM-9", *pairing.TerminalSerial)
		assert.NotNil(t, pairing.TerminalConnectedAt)
	})

	t.Run("is idempotent for the same serial", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")
		f.claim(t, "482913", "TERM-9")

		rec := f.do(t, http.MethodPost, "/terminal/pairing/482913/claim",
			map[string]any{"terminal_serial": "TERM-9"})

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects a second terminal with 409", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")
		f.claim(t, "482913", "TERM-9")

		rec := f.do(t, http.MethodPost, "/terminal/pairing/482913/claim",
			map[string]any{"terminal_serial": "TERM-2"})

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "ALREADY_CLAIMED")
	})

	t.Run("returns 404 for an unknown PIN", func(t *testing.T) {
		f := newServerFixture(t)

		rec := f.do(t, http.MethodPost, "/terminal/pairing/000000/claim",
			map[string]any{"terminal_serial": "TERM-9"})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 400 without a serial", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")

		rec := f.do(t, http.MethodPost, "/terminal/pairing/482913/claim", map[string]any{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_REQUIRED")
	})
}

func TestPairingHeartbeat(t *testing.T) {
	t.Run("returns 204 for the claiming terminal", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")
		f.claim(t, "482913", "TERM-9")

		rec := f.do(t, http.MethodPost, "/terminal/pairing/482913/heartbeat",
			map[string]any{"terminal_serial": "TERM-9"})

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("returns 404 when the pairing is not claimed", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")

		rec := f.do(t, http.MethodPost, "/terminal/pairing/482913/heartbeat",
			map[string]any{"terminal_serial": "TERM-9"})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestNextPaymentRequest(t *testing.T) {
	charge := func(t *testing.T, f *serverFixture, amount int64) *model.PaymentRequest {
		t.Helper()
		rec := f.do(t, http.MethodPost, "/terminal/payment-requests", map[string]any{
			"pin_code": "482913",
			"amount":   amount,
			"currency": "jpy",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		return decodePaymentRequest(t, rec)
	}

	t.Run("hands out the oldest pending request", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")
		f.claim(t, "482913", "TERM-9")
		first := charge(t, f, 1500)
		time.Sleep(2 * time.Millisecond)
		charge(t, f, 900)

		rec := f.do(t, http.MethodGet,
			"/terminal/pairing/482913/payment-requests/next?terminal_serial=TERM-9", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		req := decodePaymentRequest(t, rec)
		assert.Equal(t, first.RequestID, req.RequestID)
	})

	t.Run("returns 404 when the queue is empty", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")
		f.claim(t, "482913", "TERM-9")

		rec := f.do(t, http.MethodGet,
			"/terminal/pairing/482913/payment-requests/next?terminal_serial=TERM-9", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 409 for a serial that does not hold the claim", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")
		f.claim(t, "482913", "TERM-9")

		rec := f.do(t, http.MethodGet,
			"/terminal/pairing/482913/payment-requests/next?terminal_serial=TERM-2", nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("returns 400 without a serial", func(t *testing.T) {
		f := newServerFixture(t)
		f.register(t, "482913")

		rec := f.do(t, http.MethodGet,
			"/terminal/pairing/482913/payment-requests/next", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
