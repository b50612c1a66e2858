// Package payment tracks the single in-flight payment request a POS may
// have and polls the rendezvous backend for the outcome the terminal
// reports. The backend copy is authoritative; completion is only trusted
// once the settlement artifacts have landed alongside it.
package payment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mizpos/terminal-link-go/internal/api"
	"github.com/mizpos/terminal-link-go/internal/config"
	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
	"github.com/mizpos/terminal-link-go/internal/poller"
)

const eventBuffer = 16

// PairingSource exposes the one thing the manager needs from the pairing
// coordinator: whether a pairing is live right now.
type PairingSource interface {
	ActivePairing() *model.PairingRecord
}

// Event is one observed payment request transition. Request is the mirror
// snapshot at the time of the event.
type Event struct {
	Status  model.PaymentStatus
	Request *model.PaymentRequest
}

// CreateOptions carries the optional fields of a new payment request.
type CreateOptions struct {
	Description *string
	SaleID      *string
	Items       model.SaleItems
}

// Manager owns at most one in-flight payment request. All methods are safe
// for concurrent use; network calls happen outside lock scope.
type Manager struct {
	transport    api.Rendezvous
	pairings     PairingSource
	currency     string
	pollInterval time.Duration
	resultPoller *poller.Poller

	mu       sync.Mutex
	current  *model.PaymentRequest
	creating bool

	events chan Event
}

// NewManager creates a manager over the given transport and pairing source.
// A non-positive pollInterval falls back to the 2s default; an empty
// currency falls back to jpy.
func NewManager(transport api.Rendezvous, pairings PairingSource, currency string, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = config.PaymentPollInterval
	}
	if currency == "" {
		currency = config.DefaultCurrency
	}
	return &Manager{
		transport:    transport,
		pairings:     pairings,
		currency:     currency,
		pollInterval: pollInterval,
		resultPoller: poller.New("payment-result"),
		events:       make(chan Event, eventBuffer),
	}
}

// Create submits a new payment request for the active pairing and starts
// result polling. Amounts are minor currency units and must be positive.
// Rejected without any network traffic when no pairing is live or another
// request is still in flight.
func (m *Manager) Create(ctx context.Context, amount int64, opts CreateOptions) (*model.PaymentRequest, error) {
	if amount <= 0 {
		return nil, apperrors.ValidationError("amount must be a positive number of minor units")
	}
	pairing := m.pairings.ActivePairing()
	if pairing == nil {
		return nil, apperrors.NoActivePairing()
	}

	m.mu.Lock()
	if m.current != nil {
		requestID := m.current.RequestID
		m.mu.Unlock()
		return nil, apperrors.PaymentInFlight(requestID)
	}
	if m.creating {
		m.mu.Unlock()
		return nil, apperrors.PaymentInFlight("")
	}
	m.creating = true
	m.mu.Unlock()

	req, err := m.transport.CreatePaymentRequest(ctx, model.CreatePaymentRequestParams{
		PinCode:     pairing.PinCode,
		Amount:      amount,
		Currency:    m.currency,
		Description: opts.Description,
		SaleID:      opts.SaleID,
		Items:       opts.Items,
	})
	if err != nil {
		m.mu.Lock()
		m.creating = false
		m.mu.Unlock()
		log.Error().Err(err).Int64("amount", amount).Msg("payment request creation failed")
		return nil, apperrors.PaymentCreateFailed(err)
	}

	m.mu.Lock()
	m.creating = false
	m.current = req
	m.mu.Unlock()

	m.resultPoller.Start(m.pollInterval, m.pollResult)
	log.Info().
		Str("request_id", req.RequestID).
		Int64("amount", amount).
		Str("currency", m.currency).
		Msg("payment request created, polling for result")

	snapshot := *req
	return &snapshot, nil
}

// Cancel abandons the current request. Polling stops and the local mirror
// clears no matter what the backend says; the remote cancel is best-effort
// and a failure there is logged and discarded. With no current request,
// Cancel is a successful no-op.
func (m *Manager) Cancel(ctx context.Context) error {
	m.resultPoller.Stop()

	m.mu.Lock()
	req := m.current
	m.current = nil
	m.mu.Unlock()

	if req == nil {
		return nil
	}

	if err := m.transport.CancelPaymentRequest(ctx, req.RequestID); err != nil {
		log.Warn().Err(err).Str("request_id", req.RequestID).Msg("payment cancel failed, ignored")
	}

	snapshot := *req
	snapshot.Status = model.PaymentCancelled
	m.publish(Event{Status: model.PaymentCancelled, Request: &snapshot})
	log.Info().Str("request_id", req.RequestID).Msg("payment request cancelled")
	return nil
}

// Reset drops all local payment state without touching the backend. The
// pairing coordinator calls this on teardown; any still-open request stays
// backend-side until its own lifecycle or retention cleanup ends it.
func (m *Manager) Reset() {
	m.resultPoller.Stop()

	m.mu.Lock()
	had := m.current != nil
	m.current = nil
	m.creating = false
	m.mu.Unlock()

	if had {
		log.Info().Msg("payment state reset after pairing teardown")
	}
}

// Current returns a snapshot of the tracked request, nil when idle.
func (m *Manager) Current() *model.PaymentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	snapshot := *m.current
	return &snapshot
}

// Polling reports whether the result poll loop is active.
func (m *Manager) Polling() bool {
	return m.resultPoller.Running()
}

// Events returns the transition stream. The channel is buffered; events are
// dropped rather than blocking the poll loop when the consumer lags.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// pollResult is one result poll tick. Transport errors are swallowed; the
// next tick retries.
func (m *Manager) pollResult(ctx context.Context) {
	m.mu.Lock()
	req := m.current
	m.mu.Unlock()
	if req == nil {
		m.resultPoller.Stop()
		return
	}

	latest, err := m.transport.GetPaymentRequest(ctx, req.RequestID)
	if err != nil {
		log.Debug().
			Err(apperrors.PaymentPollFailed(err)).
			Str("request_id", req.RequestID).
			Msg("result poll failed, will retry")
		return
	}

	m.mu.Lock()
	if m.current == nil || m.current.RequestID != latest.RequestID {
		// Cancelled or reset while the request was in flight.
		m.mu.Unlock()
		return
	}
	prev := m.current.Status
	m.current = latest
	m.mu.Unlock()

	switch latest.Status {
	case model.PaymentPending, model.PaymentProcessing:
		if latest.Status != prev {
			snapshot := *latest
			m.publish(Event{Status: latest.Status, Request: &snapshot})
			log.Info().
				Str("request_id", latest.RequestID).
				Str("status", string(latest.Status)).
				Msg("payment request progressing")
		}
	case model.PaymentCompleted:
		if !latest.Settled() {
			// The terminal reported completion but the settlement
			// artifacts have not landed. Keep polling.
			log.Debug().Str("request_id", latest.RequestID).Msg("completed without settlement details, still polling")
			return
		}
		m.finish(latest)
	case model.PaymentCancelled, model.PaymentFailed:
		m.finish(latest)
	}
}

// finish handles a terminal outcome: polling stops, the outcome is
// published with the final record, and the mirror clears.
func (m *Manager) finish(latest *model.PaymentRequest) {
	m.resultPoller.Stop()

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	snapshot := *latest
	m.publish(Event{Status: latest.Status, Request: &snapshot})

	evt := log.Info().
		Str("request_id", latest.RequestID).
		Str("status", string(latest.Status))
	if latest.ErrorMessage != nil {
		evt = evt.Str("error_message", *latest.ErrorMessage)
	}
	evt.Msg("payment request finished")
}

func (m *Manager) publish(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Debug().Msg("payment event dropped, consumer lagging")
	}
}
