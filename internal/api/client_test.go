package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(data))
}

func TestClientRegisterPairing(t *testing.T) {
	t.Run("decodes pairing envelope", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/terminal/pairing/register", r.URL.Path)

			var params model.RegisterPairingParams
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			assert.Equal(t, "482913", params.PinCode)
			assert.Equal(t, "POS-1", params.PosID)

			now := time.Now().UTC()
			writeJSON(t, w, http.StatusCreated, map[string]any{
				"pairing": model.PairingRecord{
					PinCode:   params.PinCode,
					PosID:     params.PosID,
					PosName:   params.PosName,
					CreatedAt: now,
					ExpiresAt: now.Add(model.PairingTTL),
				},
			})
		})

		rec, err := client.RegisterPairing(context.Background(), model.RegisterPairingParams{
			PinCode: "482913",
			PosID:   "POS-1",
			PosName: "Front Counter",
		})
		require.NoError(t, err)
		assert.Equal(t, "482913", rec.PinCode)
		assert.False(t, rec.TerminalConnected)
	})

	t.Run("surfaces server error code", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusConflict, map[string]any{
				"error": "PIN code is already in use by a live pairing",
				"code":  "PIN_CONFLICT",
			})
		})

		_, err := client.RegisterPairing(context.Background(), model.RegisterPairingParams{PinCode: "482913"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePinConflict))
	})

	t.Run("rejects missing envelope", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusCreated, map[string]any{})
		})

		_, err := client.RegisterPairing(context.Background(), model.RegisterPairingParams{PinCode: "482913"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternal))
	})
}

func TestClientGetPairing(t *testing.T) {
	t.Run("maps bare 404 to NOT_FOUND", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})

		_, err := client.GetPairing(context.Background(), "482913")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("hits the PIN path", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/terminal/pairing/482913", r.URL.Path)
			writeJSON(t, w, http.StatusOK, map[string]any{
				"pairing": model.PairingRecord{PinCode: "482913", TerminalConnected: true},
			})
		})

		rec, err := client.GetPairing(context.Background(), "482913")
		require.NoError(t, err)
		assert.True(t, rec.TerminalConnected)
	})
}

func TestClientDeletePairing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/terminal/pairing/482913", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, client.DeletePairing(context.Background(), "482913"))
}

func TestClientPaymentRequests(t *testing.T) {
	t.Run("create round trips the body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/terminal/payment-requests", r.URL.Path)

			var params model.CreatePaymentRequestParams
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			assert.Equal(t, int64(1500), params.Amount)
			assert.Equal(t, "jpy", params.Currency)
			require.Len(t, params.Items, 1)
			assert.Equal(t, "coffee", params.Items[0].Name)

			writeJSON(t, w, http.StatusCreated, map[string]any{
				"payment_request": model.PaymentRequest{
					RequestID: "req-1",
					PinCode:   params.PinCode,
					Amount:    params.Amount,
					Currency:  params.Currency,
					Status:    model.PaymentPending,
				},
			})
		})

		req, err := client.CreatePaymentRequest(context.Background(), model.CreatePaymentRequestParams{
			PinCode:  "482913",
			Amount:   1500,
			Currency: "jpy",
			Items:    model.SaleItems{{Name: "coffee", Quantity: 2, Price: 750}},
		})
		require.NoError(t, err)
		assert.Equal(t, "req-1", req.RequestID)
		assert.Equal(t, model.PaymentPending, req.Status)
	})

	t.Run("get decodes evolving status", func(t *testing.T) {
		intent := "pi_123"
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/terminal/payment-requests/req-1", r.URL.Path)
			writeJSON(t, w, http.StatusOK, map[string]any{
				"payment_request": model.PaymentRequest{
					RequestID:       "req-1",
					Status:          model.PaymentCompleted,
					PaymentIntentID: &intent,
					CardDetails:     &model.CardDetails{Brand: "visa", Last4: "4242"},
				},
			})
		})

		req, err := client.GetPaymentRequest(context.Background(), "req-1")
		require.NoError(t, err)
		assert.True(t, req.Settled())
	})

	t.Run("cancel tolerates already-terminal requests", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		assert.NoError(t, client.CancelPaymentRequest(context.Background(), "req-1"))
	})
}

func TestClientTerminalSide(t *testing.T) {
	t.Run("claim posts serial", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/terminal/pairing/482913/claim", r.URL.Path)

			var params model.ClaimPairingParams
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			assert.Equal(t, "TERM-9", params.TerminalSerial)

			serial := params.TerminalSerial
			writeJSON(t, w, http.StatusOK, map[string]any{
				"pairing": model.PairingRecord{
					PinCode:           "482913",
					TerminalConnected: true,
					TerminalSerial:    &serial,
				},
			})
		})

		rec, err := client.ClaimPairing(context.Background(), "482913", model.ClaimPairingParams{TerminalSerial: "TERM-9"})
		require.NoError(t, err)
		assert.True(t, rec.TerminalConnected)
	})

	t.Run("claim surfaces 409 from rival serial", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusConflict, map[string]any{
				"error": "Pairing is already claimed by another terminal",
				"code":  "ALREADY_CLAIMED",
			})
		})

		_, err := client.ClaimPairing(context.Background(), "482913", model.ClaimPairingParams{TerminalSerial: "TERM-2"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyClaimed))
	})

	t.Run("next returns nil on empty queue", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/terminal/pairing/482913/payment-requests/next", r.URL.Path)
			assert.Equal(t, "TERM-9", r.URL.Query().Get("terminal_serial"))
			writeJSON(t, w, http.StatusNotFound, map[string]any{
				"error": "payment request not found",
				"code":  "NOT_FOUND",
			})
		})

		req, err := client.NextPaymentRequest(context.Background(), "482913", "TERM-9")
		require.NoError(t, err)
		assert.Nil(t, req)
	})

	t.Run("submit result returns updated record", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/terminal/payment-requests/req-1/result", r.URL.Path)

			var params model.TerminalResultParams
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			assert.Equal(t, model.PaymentProcessing, params.Status)

			writeJSON(t, w, http.StatusOK, map[string]any{
				"payment_request": model.PaymentRequest{RequestID: "req-1", Status: params.Status},
			})
		})

		req, err := client.SubmitResult(context.Background(), "req-1", model.TerminalResultParams{
			TerminalSerial: "TERM-9",
			Status:         model.PaymentProcessing,
		})
		require.NoError(t, err)
		assert.Equal(t, model.PaymentProcessing, req.Status)
	})

	t.Run("heartbeat posts serial", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/terminal/pairing/482913/heartbeat", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		})

		err := client.Heartbeat(context.Background(), "482913", model.HeartbeatParams{TerminalSerial: "TERM-9"})
		assert.NoError(t, err)
	})
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient(srv.URL, time.Second)
	srv.Close()

	_, err := client.GetPairing(context.Background(), "482913")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternal))
}

func TestClientRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
			"error": "Rate limit exceeded",
			"code":  "RATE_LIMIT_EXCEEDED",
		})
	})

	_, err := client.ClaimPairing(context.Background(), "482913", model.ClaimPairingParams{TerminalSerial: "TERM-9"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRateLimitExceeded))
}
