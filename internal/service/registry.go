// Package service holds the rendezvous server's domain logic: the registry
// of live pairings and the ledger of payment requests flowing across them.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
	"github.com/mizpos/terminal-link-go/internal/repository"
)

// RegistryService owns the pairing registry: registration with PIN
// uniqueness, terminal claims with single-claim semantics, heartbeats and
// teardown.
type RegistryService struct {
	pairingRepo repository.PairingRepository
}

func NewRegistryService(pairingRepo repository.PairingRepository) *RegistryService {
	return &RegistryService{pairingRepo: pairingRepo}
}

// Register stores a new pairing under the client-generated PIN. A PIN held
// by a live pairing is a conflict; one held only by an expired leftover is
// reclaimed in place.
func (s *RegistryService) Register(ctx context.Context, params model.RegisterPairingParams) (*model.PairingRecord, error) {
	if !model.ValidPIN(params.PinCode) {
		return nil, apperrors.InvalidPin()
	}
	if params.PosID == "" {
		return nil, apperrors.MissingRequired("pos_id")
	}
	if params.PosName == "" {
		return nil, apperrors.MissingRequired("pos_name")
	}

	expiresAt := time.Now().Add(model.PairingTTL)
	rec, err := s.pairingRepo.Create(ctx, params, expiresAt)
	if repository.IsUniqueViolation(err) {
		existing, findErr := s.pairingRepo.FindByPIN(ctx, params.PinCode)
		if findErr != nil {
			return nil, apperrors.Database(findErr)
		}
		if existing == nil || !existing.Expired(time.Now()) {
			return nil, apperrors.PinConflict()
		}
		// Expired leftover; reclaim the PIN.
		if delErr := s.pairingRepo.Delete(ctx, params.PinCode); delErr != nil {
			return nil, apperrors.Database(delErr)
		}
		rec, err = s.pairingRepo.Create(ctx, params, expiresAt)
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.PinConflict()
		}
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("pos_id", params.PosID).
		Time("expires_at", rec.ExpiresAt).
		Msg("pairing registered")
	return rec, nil
}

// Lookup returns the pairing for the PIN. Expired pairings are reported as
// missing: expiry is indistinguishable from deletion on the wire, and that
// is what makes the client's 404 handling authoritative.
func (s *RegistryService) Lookup(ctx context.Context, pin string) (*model.PairingRecord, error) {
	if !model.ValidPIN(pin) {
		return nil, apperrors.InvalidPin()
	}
	rec, err := s.pairingRepo.FindByPIN(ctx, pin)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if rec == nil || rec.Expired(time.Now()) {
		return nil, apperrors.NotFound("pairing")
	}
	return rec, nil
}

// Unregister removes the pairing. Unknown PINs are fine: the client's
// teardown is best-effort and may race expiry cleanup. Requests already
// queued stay writable so a terminal mid-payment can still report its
// outcome; the cleanup job cancels them once they go stale.
func (s *RegistryService) Unregister(ctx context.Context, pin string) error {
	if !model.ValidPIN(pin) {
		return apperrors.InvalidPin()
	}
	if err := s.pairingRepo.Delete(ctx, pin); err != nil {
		return apperrors.Database(err)
	}
	log.Info().Msg("pairing unregistered")
	return nil
}

// Claim connects a terminal to a waiting pairing. First claim wins; a
// re-claim by the same serial is an idempotent reconnect, any other serial
// gets a conflict.
func (s *RegistryService) Claim(ctx context.Context, pin string, params model.ClaimPairingParams) (*model.PairingRecord, error) {
	if !model.ValidPIN(pin) {
		return nil, apperrors.InvalidPin()
	}
	if params.TerminalSerial == "" {
		return nil, apperrors.MissingRequired("terminal_serial")
	}

	rec, err := s.pairingRepo.MarkClaimed(ctx, pin, params.TerminalSerial, params.TerminalName)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if rec != nil {
		log.Info().
			Str("terminal_serial", params.TerminalSerial).
			Str("pos_id", rec.PosID).
			Msg("pairing claimed by terminal")
		return rec, nil
	}

	// No row matched: either the pairing is gone or another terminal holds it.
	existing, err := s.pairingRepo.FindByPIN(ctx, pin)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing == nil || existing.Expired(time.Now()) {
		return nil, apperrors.NotFound("pairing")
	}
	return nil, apperrors.AlreadyClaimed()
}

// Heartbeat refreshes the claiming terminal's liveness, reconnecting it if
// the cleanup job had flipped it to disconnected.
func (s *RegistryService) Heartbeat(ctx context.Context, pin string, params model.HeartbeatParams) error {
	if !model.ValidPIN(pin) {
		return apperrors.InvalidPin()
	}
	if params.TerminalSerial == "" {
		return apperrors.MissingRequired("terminal_serial")
	}

	ok, err := s.pairingRepo.Heartbeat(ctx, pin, params.TerminalSerial)
	if err != nil {
		return apperrors.Database(err)
	}
	if !ok {
		return apperrors.NotFound("pairing")
	}
	return nil
}
