// Package pairing drives the POS side of the pairing lifecycle: PIN
// registration against the rendezvous backend, status polling while the
// pairing lives, and teardown. The backend copy is authoritative; the
// coordinator only mirrors it between poll ticks.
package pairing

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

// Event is one observed pairing state transition. Pairing is a snapshot
// copy, nil once the pairing is gone.
type Event struct {
	Status  model.PairingStatus
	Message string
	Pairing *model.PairingRecord
}

// Coordinator owns at most one live pairing at a time. All methods are safe
// for concurrent use; network calls happen outside lock scope.
type Coordinator struct {
	transport    api.Rendezvous
	pollInterval time.Duration
	statusPoller *poller.Poller

	mu       sync.Mutex
	status   model.PairingStatus
	pairing  *model.PairingRecord
	message  string
	teardown []func()

	events chan Event
}

// NewCoordinator creates a coordinator over the given transport. A
// non-positive pollInterval falls back to the 5s default.
func NewCoordinator(transport api.Rendezvous, pollInterval time.Duration) *Coordinator {
	if pollInterval <= 0 {
		pollInterval = config.PairingPollInterval
	}
	return &Coordinator{
		transport:    transport,
		pollInterval: pollInterval,
		statusPoller: poller.New("pairing-status"),
		status:       model.PairingDisconnected,
		events:       make(chan Event, eventBuffer),
	}
}

// Register generates a fresh PIN and registers it with the backend. Valid
// only while no pairing is live; the PIN of the new pairing is returned and
// also shown in the active record. Never retried on failure: the caller
// decides, and a retry gets a new PIN.
func (c *Coordinator) Register(ctx context.Context, params model.RegisterPairingParams) (string, error) {
	pin, err := GeneratePIN()
	if err != nil {
		return "", apperrors.RegistrationFailed(err)
	}
	params.PinCode = pin

	c.mu.Lock()
	if c.status != model.PairingDisconnected && c.status != model.PairingError {
		status := c.status
		c.mu.Unlock()
		return "", apperrors.Conflict("a pairing is already active").
			WithDetails(map[string]string{"status": string(status)})
	}
	c.status = model.PairingRegistering
	c.message = ""
	c.mu.Unlock()
	c.publish()

	rec, err := c.transport.RegisterPairing(ctx, params)
	if err != nil {
		appErr := apperrors.RegistrationFailed(err)
		c.mu.Lock()
		c.status = model.PairingError
		c.pairing = nil
		c.message = appErr.Message
		c.mu.Unlock()
		c.publish()
		log.Error().Err(err).Str("pin", maskPIN(pin)).Msg("pairing registration failed")
		return "", appErr
	}

	c.mu.Lock()
	c.status = model.PairingWaiting
	c.pairing = rec
	c.message = ""
	c.mu.Unlock()
	c.publish()

	log.Info().
		Str("pin", maskPIN(pin)).
		Str("pos_id", params.PosID).
		Time("expires_at", rec.ExpiresAt).
		Msg("pairing registered, waiting for terminal")
	return pin, nil
}

// Unregister tears the pairing down. The status poller stops, teardown
// observers run, local state resets, and the backend delete is best-effort:
// a remote failure is logged and discarded, the 24h TTL reclaims orphans.
// Calling Unregister with no live pairing is a no-op.
func (c *Coordinator) Unregister(ctx context.Context) error {
	c.statusPoller.Stop()

	c.mu.Lock()
	var pin string
	if c.pairing != nil {
		pin = c.pairing.PinCode
	}
	hadPairing := c.status != model.PairingDisconnected
	c.status = model.PairingDisconnected
	c.pairing = nil
	c.message = ""
	c.mu.Unlock()

	if !hadPairing && pin == "" {
		return nil
	}

	c.notifyTeardown()
	c.publish()

	if pin != "" {
		if err := c.transport.DeletePairing(ctx, pin); err != nil {
			log.Warn().Err(err).Str("pin", maskPIN(pin)).Msg("pairing delete failed, ignored")
		}
	}
	log.Info().Str("pin", maskPIN(pin)).Msg("pairing unregistered")
	return nil
}

// StartStatusPolling begins the 5s status poll loop. No-op while already
// polling or when no pairing is live.
func (c *Coordinator) StartStatusPolling() {
	if c.ActivePairing() == nil {
		log.Debug().Msg("status polling not started, no live pairing")
		return
	}
	c.statusPoller.Start(c.pollInterval, c.pollStatus)
}

// StopStatusPolling halts the status poll loop. Safe to call at any time.
func (c *Coordinator) StopStatusPolling() {
	c.statusPoller.Stop()
}

// OnTeardown registers a callback invoked synchronously whenever the
// pairing goes away, via Unregister or remote revocation. The payment
// manager resets through this.
func (c *Coordinator) OnTeardown(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown = append(c.teardown, fn)
}

// Events returns the transition stream. The channel is buffered; events are
// dropped rather than blocking the poll loop when the consumer lags.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Polling reports whether the status poll loop is active.
func (c *Coordinator) Polling() bool {
	return c.statusPoller.Running()
}

// Status returns the current pairing lifecycle state.
func (c *Coordinator) Status() model.PairingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Message returns the last surfaced status message, empty when healthy.
func (c *Coordinator) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// ActivePairing returns a snapshot of the live pairing record, nil when
// there is none.
func (c *Coordinator) ActivePairing() *model.PairingRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pairing == nil {
		return nil
	}
	rec := *c.pairing
	return &rec
}

// pollStatus is one status poll tick. Transport errors other than 404 are
// swallowed; the next tick retries.
func (c *Coordinator) pollStatus(ctx context.Context) {
	c.mu.Lock()
	var pin string
	if c.pairing != nil {
		pin = c.pairing.PinCode
	}
	c.mu.Unlock()
	if pin == "" {
		return
	}

	rec, err := c.transport.GetPairing(ctx, pin)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			c.handleLoss(pin)
			return
		}
		log.Debug().Err(err).Str("pin", maskPIN(pin)).Msg("status poll failed, will retry")
		return
	}

	c.mu.Lock()
	if c.pairing == nil || c.pairing.PinCode != pin {
		// Torn down while the request was in flight.
		c.mu.Unlock()
		return
	}
	c.pairing = rec
	prev := c.status
	changed := false
	switch {
	case rec.TerminalConnected && prev == model.PairingWaiting:
		c.status = model.PairingConnected
		c.message = ""
		changed = true
	case !rec.TerminalConnected && prev == model.PairingConnected:
		c.status = model.PairingWaiting
		c.message = "Terminal reconnecting"
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.publish()
		log.Info().
			Str("pin", maskPIN(pin)).
			Str("from", string(prev)).
			Str("to", string(c.Status())).
			Msg("pairing status changed")
	}
}

// handleLoss applies an authoritative 404: the backend no longer knows the
// pairing, so the local mirror resets no matter what state it was in.
func (c *Coordinator) handleLoss(pin string) {
	c.statusPoller.Stop()

	c.mu.Lock()
	if c.pairing == nil || c.pairing.PinCode != pin {
		c.mu.Unlock()
		return
	}
	c.status = model.PairingDisconnected
	c.pairing = nil
	c.message = apperrors.PairingLost().Message
	c.mu.Unlock()

	c.notifyTeardown()
	c.publish()
	log.Warn().Str("pin", maskPIN(pin)).Msg("pairing lost, revoked or expired backend-side")
}

func (c *Coordinator) notifyTeardown() {
	c.mu.Lock()
	observers := make([]func(), len(c.teardown))
	copy(observers, c.teardown)
	c.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// publish snapshots current state onto the event channel without blocking.
func (c *Coordinator) publish() {
	c.mu.Lock()
	ev := Event{Status: c.status, Message: c.message}
	if c.pairing != nil {
		rec := *c.pairing
		ev.Pairing = &rec
	}
	c.mu.Unlock()

	select {
	case c.events <- ev:
	default:
		log.Debug().Msg("pairing event dropped, consumer lagging")
	}
}
