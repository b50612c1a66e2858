package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mizpos/terminal-link-go/internal/model"
)

type PaymentRequestRepository interface {
	Create(ctx context.Context, requestID string, params model.CreatePaymentRequestParams) (*model.PaymentRequest, error)
	FindByID(ctx context.Context, requestID string) (*model.PaymentRequest, error)
	// FindNextPending returns the oldest pending request for the pairing,
	// nil when the queue is empty.
	FindNextPending(ctx context.Context, pin string) (*model.PaymentRequest, error)
	// UpdateResult applies a terminal-reported result with compare-and-set
	// on the current status. Intent id and card details merge via COALESCE,
	// so a follow-up completed result that only carries card details keeps
	// the earlier intent id. Returns nil when the status moved concurrently.
	UpdateResult(ctx context.Context, requestID string, from model.PaymentStatus, params model.TerminalResultParams) (*model.PaymentRequest, error)
	// MarkCancelled cancels a request still in a non-terminal state.
	// Returns nil when the request is unknown or already terminal.
	MarkCancelled(ctx context.Context, requestID string) (*model.PaymentRequest, error)
	// CancelAbandonedBefore cancels non-terminal requests whose last update
	// predates the cutoff. Liveness gates fetching, so these can only be
	// strays whose pairing died; cancelling frees them for the purge.
	CancelAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteFinishedBefore purges terminal-state requests whose last update
	// predates the cutoff.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type paymentRequestRepo struct {
	db *sqlx.DB
}

func NewPaymentRequestRepository(db *sqlx.DB) PaymentRequestRepository {
	return &paymentRequestRepo{db: db}
}

func (r *paymentRequestRepo) Create(ctx context.Context, requestID string, params model.CreatePaymentRequestParams) (*model.PaymentRequest, error) {
	var req model.PaymentRequest
	err := r.db.GetContext(ctx, &req, `
		INSERT INTO payment_requests (request_id, pin_code, amount, currency, description, sale_id, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, requestID, params.PinCode, params.Amount, params.Currency, params.Description, params.SaleID, params.Items)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *paymentRequestRepo) FindByID(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	var req model.PaymentRequest
	err := r.db.GetContext(ctx, &req, `
		SELECT * FROM payment_requests
		WHERE request_id = $1
	`, requestID)
	return HandleNotFound(&req, err)
}

func (r *paymentRequestRepo) FindNextPending(ctx context.Context, pin string) (*model.PaymentRequest, error) {
	var req model.PaymentRequest
	err := r.db.GetContext(ctx, &req, `
		SELECT * FROM payment_requests
		WHERE pin_code = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, pin, model.PaymentPending)
	return HandleNotFound(&req, err)
}

func (r *paymentRequestRepo) UpdateResult(ctx context.Context, requestID string, from model.PaymentStatus, params model.TerminalResultParams) (*model.PaymentRequest, error) {
	var req model.PaymentRequest
	err := r.db.GetContext(ctx, &req, `
		UPDATE payment_requests SET
			status = $3,
			payment_intent_id = COALESCE($4, payment_intent_id),
			card_details = COALESCE($5, card_details),
			error_message = COALESCE($6, error_message),
			updated_at = NOW()
		WHERE request_id = $1 AND status = $2
		RETURNING *
	`, requestID, from, params.Status, params.PaymentIntentID, params.CardDetails, params.ErrorMessage)
	return HandleNotFound(&req, err)
}

func (r *paymentRequestRepo) MarkCancelled(ctx context.Context, requestID string) (*model.PaymentRequest, error) {
	var req model.PaymentRequest
	err := r.db.GetContext(ctx, &req, `
		UPDATE payment_requests SET
			status = $2,
			updated_at = NOW()
		WHERE request_id = $1 AND status IN ($3, $4)
		RETURNING *
	`, requestID, model.PaymentCancelled, model.PaymentPending, model.PaymentProcessing)
	return HandleNotFound(&req, err)
}

func (r *paymentRequestRepo) CancelAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_requests SET
			status = $2,
			updated_at = NOW()
		WHERE status IN ($3, $4)
		  AND updated_at < $1
	`, cutoff, model.PaymentCancelled, model.PaymentPending, model.PaymentProcessing)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *paymentRequestRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM payment_requests
		WHERE status IN ($1, $2, $3)
		  AND updated_at < $4
	`, model.PaymentCompleted, model.PaymentCancelled, model.PaymentFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
