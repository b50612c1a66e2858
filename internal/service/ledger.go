package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
	"github.com/mizpos/terminal-link-go/internal/repository"
)

// resultStatuses is what a terminal may report. Pending is the birth state
// and cancellation belongs to the POS, so neither is reportable.
var resultStatuses = map[model.PaymentStatus]bool{
	model.PaymentProcessing: true,
	model.PaymentCompleted:  true,
	model.PaymentFailed:     true,
}

// LedgerService owns the payment request ledger: creation against a live
// pairing, terminal pickup, monotonic result transitions and cancellation.
type LedgerService struct {
	pairingRepo repository.PairingRepository
	requestRepo repository.PaymentRequestRepository
}

func NewLedgerService(pairingRepo repository.PairingRepository, requestRepo repository.PaymentRequestRepository) *LedgerService {
	return &LedgerService{
		pairingRepo: pairingRepo,
		requestRepo: requestRepo,
	}
}

// Create opens a new payment request for a live pairing. The request id is
// server-assigned and opaque to both sides.
func (s *LedgerService) Create(ctx context.Context, params model.CreatePaymentRequestParams) (*model.PaymentRequest, error) {
	if !model.ValidPIN(params.PinCode) {
		return nil, apperrors.InvalidPin()
	}
	if params.Amount <= 0 {
		return nil, apperrors.ValidationError("amount must be a positive number of minor units")
	}
	if len(params.Currency) != 3 {
		return nil, apperrors.ValidationError("currency must be a 3-letter code")
	}
	for _, item := range params.Items {
		if item.Name == "" || item.Quantity <= 0 || item.Price < 0 {
			return nil, apperrors.ValidationError("items must carry a name, positive quantity and non-negative price")
		}
	}

	if _, err := s.livePairing(ctx, params.PinCode); err != nil {
		return nil, err
	}

	req, err := s.requestRepo.Create(ctx, uuid.NewString(), params)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("request_id", req.RequestID).
		Int64("amount", req.Amount).
		Str("currency", req.Currency).
		Msg("payment request created")
	return req, nil
}

// Get returns the request by id.
func (s *LedgerService) Get(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	req, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if req == nil {
		return nil, apperrors.NotFound("payment request")
	}
	return req, nil
}

// Cancel abandons a request. Already-terminal requests make this a no-op,
// so the POS can fire cancels without caring about races against the
// terminal's result.
func (s *LedgerService) Cancel(ctx context.Context, requestID string) error {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return nil
	}

	cancelled, err := s.requestRepo.MarkCancelled(ctx, requestID)
	if err != nil {
		return apperrors.Database(err)
	}
	if cancelled != nil {
		log.Info().Str("request_id", requestID).Msg("payment request cancelled")
	}
	// A nil result means the terminal finished first; the no-op is fine.
	return nil
}

// NextPending hands the claiming terminal its oldest open request.
func (s *LedgerService) NextPending(ctx context.Context, pin, terminalSerial string) (*model.PaymentRequest, error) {
	if terminalSerial == "" {
		return nil, apperrors.MissingRequired("terminal_serial")
	}
	pairing, err := s.livePairing(ctx, pin)
	if err != nil {
		return nil, err
	}
	if pairing.TerminalSerial == nil || *pairing.TerminalSerial != terminalSerial {
		return nil, apperrors.Conflict("pairing is not claimed by this terminal")
	}

	req, err := s.requestRepo.FindNextPending(ctx, pin)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if req == nil {
		return nil, apperrors.NotFound("payment request")
	}
	return req, nil
}

// SubmitResult applies a terminal-reported result. Transitions only move
// forward; the one repeatable move is completed onto completed, which merges
// late settlement artifacts onto the finished row.
func (s *LedgerService) SubmitResult(ctx context.Context, requestID string, params model.TerminalResultParams) (*model.PaymentRequest, error) {
	if params.TerminalSerial == "" {
		return nil, apperrors.MissingRequired("terminal_serial")
	}
	if !resultStatuses[params.Status] {
		return nil, apperrors.ValidationError("status must be processing, completed or failed")
	}

	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Enforce the claim while the pairing lives. A pairing torn down
	// mid-charge must not block the outcome from landing: the money moved.
	pairing, err := s.pairingRepo.FindByPIN(ctx, req.PinCode)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pairing != nil && pairing.TerminalSerial != nil && *pairing.TerminalSerial != params.TerminalSerial {
		return nil, apperrors.Conflict("request belongs to a different terminal")
	}

	if !req.Status.CanTransitionTo(params.Status) {
		return nil, apperrors.InvalidTransition(string(req.Status), string(params.Status))
	}

	updated, err := s.requestRepo.UpdateResult(ctx, requestID, req.Status, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if updated == nil {
		return nil, apperrors.Conflict("request state changed concurrently")
	}

	log.Info().
		Str("request_id", requestID).
		Str("status", string(updated.Status)).
		Msg("payment result recorded")
	return updated, nil
}

// livePairing fetches a pairing and filters out expired leftovers.
func (s *LedgerService) livePairing(ctx context.Context, pin string) (*model.PairingRecord, error) {
	if !model.ValidPIN(pin) {
		return nil, apperrors.InvalidPin()
	}
	pairing, err := s.pairingRepo.FindByPIN(ctx, pin)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pairing == nil || pairing.Expired(time.Now()) {
		return nil, apperrors.NotFound("pairing")
	}
	return pairing, nil
}
