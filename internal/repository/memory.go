package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mizpos/terminal-link-go/internal/model"
)

// ErrDuplicatePIN mirrors the Postgres unique violation for the in-memory
// implementations.
var ErrDuplicatePIN = errors.New("repository: duplicate pin")

// MemoryPairingRepository is a map-backed PairingRepository for tests and
// local development. It replicates the SQL implementation's semantics,
// including atomic claim behavior.
type MemoryPairingRepository struct {
	mu       sync.Mutex
	pairings map[string]model.PairingRecord
}

var _ PairingRepository = (*MemoryPairingRepository)(nil)

func NewMemoryPairingRepository() *MemoryPairingRepository {
	return &MemoryPairingRepository{pairings: make(map[string]model.PairingRecord)}
}

func (r *MemoryPairingRepository) Create(ctx context.Context, params model.RegisterPairingParams, expiresAt time.Time) (*model.PairingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pairings[params.PinCode]; exists {
		return nil, ErrDuplicatePIN
	}
	rec := model.PairingRecord{
		PinCode:   params.PinCode,
		PosID:     params.PosID,
		PosName:   params.PosName,
		EventID:   params.EventID,
		EventName: params.EventName,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	r.pairings[params.PinCode] = rec
	return &rec, nil
}

func (r *MemoryPairingRepository) FindByPIN(ctx context.Context, pin string) (*model.PairingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.pairings[pin]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *MemoryPairingRepository) Delete(ctx context.Context, pin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pairings, pin)
	return nil
}

func (r *MemoryPairingRepository) MarkClaimed(ctx context.Context, pin, terminalSerial string, terminalName *string) (*model.PairingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.pairings[pin]
	if !ok || rec.Expired(time.Now()) {
		return nil, nil
	}
	if rec.TerminalSerial != nil && *rec.TerminalSerial != terminalSerial {
		return nil, nil
	}

	now := time.Now().UTC()
	rec.TerminalConnected = true
	if rec.TerminalConnectedAt == nil {
		rec.TerminalConnectedAt = &now
	}
	rec.TerminalSerial = &terminalSerial
	if terminalName != nil {
		rec.TerminalName = terminalName
	}
	rec.LastHeartbeatAt = &now
	r.pairings[pin] = rec
	return &rec, nil
}

func (r *MemoryPairingRepository) Heartbeat(ctx context.Context, pin, terminalSerial string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.pairings[pin]
	if !ok || rec.Expired(time.Now()) {
		return false, nil
	}
	if rec.TerminalSerial == nil || *rec.TerminalSerial != terminalSerial {
		return false, nil
	}

	now := time.Now().UTC()
	rec.TerminalConnected = true
	rec.LastHeartbeatAt = &now
	r.pairings[pin] = rec
	return true, nil
}

func (r *MemoryPairingRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var count int64
	for pin, rec := range r.pairings {
		if rec.Expired(now) {
			delete(r.pairings, pin)
			count++
		}
	}
	return count, nil
}

func (r *MemoryPairingRepository) DisconnectStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for pin, rec := range r.pairings {
		if !rec.TerminalConnected {
			continue
		}
		if rec.LastHeartbeatAt == nil || rec.LastHeartbeatAt.Before(cutoff) {
			rec.TerminalConnected = false
			r.pairings[pin] = rec
			count++
		}
	}
	return count, nil
}

// MemoryPaymentRequestRepository is a map-backed PaymentRequestRepository
// for tests and local development.
type MemoryPaymentRequestRepository struct {
	mu       sync.Mutex
	requests map[string]model.PaymentRequest
}

var _ PaymentRequestRepository = (*MemoryPaymentRequestRepository)(nil)

func NewMemoryPaymentRequestRepository() *MemoryPaymentRequestRepository {
	return &MemoryPaymentRequestRepository{requests: make(map[string]model.PaymentRequest)}
}

func (r *MemoryPaymentRequestRepository) Create(ctx context.Context, requestID string, params model.CreatePaymentRequestParams) (*model.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	req := model.PaymentRequest{
		RequestID:   requestID,
		PinCode:     params.PinCode,
		Amount:      params.Amount,
		Currency:    params.Currency,
		Description: params.Description,
		SaleID:      params.SaleID,
		Items:       params.Items,
		Status:      model.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.requests[requestID] = req
	return &req, nil
}

func (r *MemoryPaymentRequestRepository) FindByID(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r *MemoryPaymentRequestRepository) FindNextPending(ctx context.Context, pin string) (*model.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []model.PaymentRequest
	for _, req := range r.requests {
		if req.PinCode == pin && req.Status == model.PaymentPending {
			pending = append(pending, req)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return &pending[0], nil
}

func (r *MemoryPaymentRequestRepository) UpdateResult(ctx context.Context, requestID string, from model.PaymentStatus, params model.TerminalResultParams) (*model.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok || req.Status != from {
		return nil, nil
	}

	req.Status = params.Status
	if params.PaymentIntentID != nil {
		req.PaymentIntentID = params.PaymentIntentID
	}
	if params.CardDetails != nil {
		req.CardDetails = params.CardDetails
	}
	if params.ErrorMessage != nil {
		req.ErrorMessage = params.ErrorMessage
	}
	req.UpdatedAt = time.Now().UTC()
	r.requests[requestID] = req
	return &req, nil
}

func (r *MemoryPaymentRequestRepository) MarkCancelled(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok || req.Status.Terminal() {
		return nil, nil
	}

	req.Status = model.PaymentCancelled
	req.UpdatedAt = time.Now().UTC()
	r.requests[requestID] = req
	return &req, nil
}

func (r *MemoryPaymentRequestRepository) CancelAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, req := range r.requests {
		if req.Status.Terminal() || !req.UpdatedAt.Before(cutoff) {
			continue
		}
		req.Status = model.PaymentCancelled
		req.UpdatedAt = time.Now().UTC()
		r.requests[id] = req
		count++
	}
	return count, nil
}

func (r *MemoryPaymentRequestRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, req := range r.requests {
		if req.Status.Terminal() && req.UpdatedAt.Before(cutoff) {
			delete(r.requests, id)
			count++
		}
	}
	return count, nil
}
