// Package api implements the HTTP transport between POS-side code and the
// rendezvous backend. The coordinator and the payment manager consume the
// Rendezvous interface; the terminal simulator consumes Terminal. Client
// implements both against the wire API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
)

// Rendezvous is the backend surface the POS client depends on. Register and
// CreatePaymentRequest are one-shot calls and are never retried here; the
// polling reads are driven by the callers' pollers.
type Rendezvous interface {
	RegisterPairing(ctx context.Context, params model.RegisterPairingParams) (*model.PairingRecord, error)
	GetPairing(ctx context.Context, pin string) (*model.PairingRecord, error)
	DeletePairing(ctx context.Context, pin string) error
	CreatePaymentRequest(ctx context.Context, params model.CreatePaymentRequestParams) (*model.PaymentRequest, error)
	GetPaymentRequest(ctx context.Context, requestID string) (*model.PaymentRequest, error)
	CancelPaymentRequest(ctx context.Context, requestID string) error
}

// Terminal is the backend surface a payment terminal uses: claim a scanned
// PIN, keep the claim alive, pick up work and report outcomes.
type Terminal interface {
	ClaimPairing(ctx context.Context, pin string, params model.ClaimPairingParams) (*model.PairingRecord, error)
	Heartbeat(ctx context.Context, pin string, params model.HeartbeatParams) error
	NextPaymentRequest(ctx context.Context, pin, terminalSerial string) (*model.PaymentRequest, error)
	SubmitResult(ctx context.Context, requestID string, params model.TerminalResultParams) (*model.PaymentRequest, error)
}

// Client talks to the rendezvous backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ Rendezvous = (*Client)(nil)
	_ Terminal   = (*Client)(nil)
)

// NewClient creates a transport client for the given base URL. The timeout
// bounds every call including body reads.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type pairingEnvelope struct {
	Pairing *model.PairingRecord `json:"pairing"`
}

type paymentRequestEnvelope struct {
	PaymentRequest *model.PaymentRequest `json:"payment_request"`
}

// wireError mirrors the error body the rendezvous server writes.
type wireError struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

func (c *Client) RegisterPairing(ctx context.Context, params model.RegisterPairingParams) (*model.PairingRecord, error) {
	var env pairingEnvelope
	if err := c.do(ctx, http.MethodPost, "/terminal/pairing/register", params, &env); err != nil {
		return nil, fmt.Errorf("register pairing: %w", err)
	}
	if env.Pairing == nil {
		return nil, apperrors.Internal("rendezvous returned no pairing record")
	}
	return env.Pairing, nil
}

func (c *Client) GetPairing(ctx context.Context, pin string) (*model.PairingRecord, error) {
	var env pairingEnvelope
	if err := c.do(ctx, http.MethodGet, "/terminal/pairing/"+url.PathEscape(pin), nil, &env); err != nil {
		return nil, fmt.Errorf("get pairing: %w", err)
	}
	if env.Pairing == nil {
		return nil, apperrors.Internal("rendezvous returned no pairing record")
	}
	return env.Pairing, nil
}

func (c *Client) DeletePairing(ctx context.Context, pin string) error {
	if err := c.do(ctx, http.MethodDelete, "/terminal/pairing/"+url.PathEscape(pin), nil, nil); err != nil {
		return fmt.Errorf("delete pairing: %w", err)
	}
	return nil
}

func (c *Client) CreatePaymentRequest(ctx context.Context, params model.CreatePaymentRequestParams) (*model.PaymentRequest, error) {
	var env paymentRequestEnvelope
	if err := c.do(ctx, http.MethodPost, "/terminal/payment-requests", params, &env); err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}
	if env.PaymentRequest == nil {
		return nil, apperrors.Internal("rendezvous returned no payment request")
	}
	return env.PaymentRequest, nil
}

func (c *Client) GetPaymentRequest(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	var env paymentRequestEnvelope
	if err := c.do(ctx, http.MethodGet, "/terminal/payment-requests/"+url.PathEscape(requestID), nil, &env); err != nil {
		return nil, fmt.Errorf("get payment request: %w", err)
	}
	if env.PaymentRequest == nil {
		return nil, apperrors.Internal("rendezvous returned no payment request")
	}
	return env.PaymentRequest, nil
}

func (c *Client) CancelPaymentRequest(ctx context.Context, requestID string) error {
	if err := c.do(ctx, http.MethodDelete, "/terminal/payment-requests/"+url.PathEscape(requestID), nil, nil); err != nil {
		return fmt.Errorf("cancel payment request: %w", err)
	}
	return nil
}

func (c *Client) ClaimPairing(ctx context.Context, pin string, params model.ClaimPairingParams) (*model.PairingRecord, error) {
	var env pairingEnvelope
	if err := c.do(ctx, http.MethodPost, "/terminal/pairing/"+url.PathEscape(pin)+"/claim", params, &env); err != nil {
		return nil, fmt.Errorf("claim pairing: %w", err)
	}
	if env.Pairing == nil {
		return nil, apperrors.Internal("rendezvous returned no pairing record")
	}
	return env.Pairing, nil
}

func (c *Client) Heartbeat(ctx context.Context, pin string, params model.HeartbeatParams) error {
	if err := c.do(ctx, http.MethodPost, "/terminal/pairing/"+url.PathEscape(pin)+"/heartbeat", params, nil); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// NextPaymentRequest returns the oldest pending request for the pairing, or
// nil when the queue is empty.
func (c *Client) NextPaymentRequest(ctx context.Context, pin, terminalSerial string) (*model.PaymentRequest, error) {
	path := "/terminal/pairing/" + url.PathEscape(pin) + "/payment-requests/next?" +
		url.Values{"terminal_serial": {terminalSerial}}.Encode()

	var env paymentRequestEnvelope
	err := c.do(ctx, http.MethodGet, path, nil, &env)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("next payment request: %w", err)
	}
	if env.PaymentRequest == nil {
		return nil, apperrors.Internal("rendezvous returned no payment request")
	}
	return env.PaymentRequest, nil
}

func (c *Client) SubmitResult(ctx context.Context, requestID string, params model.TerminalResultParams) (*model.PaymentRequest, error) {
	var env paymentRequestEnvelope
	if err := c.do(ctx, http.MethodPost, "/terminal/payment-requests/"+url.PathEscape(requestID)+"/result", params, &env); err != nil {
		return nil, fmt.Errorf("submit result: %w", err)
	}
	if env.PaymentRequest == nil {
		return nil, apperrors.Internal("rendezvous returned no payment request")
	}
	return env.PaymentRequest, nil
}

// do executes one request against the backend and decodes the response into
// out when out is non-nil. Non-2xx responses come back as AppError so callers
// can branch on the code.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.External("rendezvous", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds an AppError from the server's error body, falling
// back to a status-based mapping when the body is not ours.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var wire wireError
	if err := json.Unmarshal(body, &wire); err == nil && wire.Code != "" {
		appErr := apperrors.New(wire.Code, wire.Error)
		if wire.Details != nil {
			appErr = appErr.WithDetails(wire.Details)
		}
		return appErr
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperrors.NotFound("resource")
	case http.StatusConflict:
		return apperrors.Conflict("request conflicts with backend state")
	case http.StatusTooManyRequests:
		return apperrors.RateLimitExceeded()
	default:
		return apperrors.Internal(fmt.Sprintf("rendezvous returned status %d", resp.StatusCode))
	}
}
