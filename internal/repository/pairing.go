package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mizpos/terminal-link-go/internal/model"
)

type PairingRepository interface {
	Create(ctx context.Context, params model.RegisterPairingParams, expiresAt time.Time) (*model.PairingRecord, error)
	FindByPIN(ctx context.Context, pin string) (*model.PairingRecord, error)
	Delete(ctx context.Context, pin string) error
	// MarkClaimed connects a terminal to an unexpired pairing. The update is
	// atomic: it only matches when the pairing is unclaimed or already held
	// by the same serial, so rival claims race safely. Returns nil when no
	// row matched.
	MarkClaimed(ctx context.Context, pin, terminalSerial string, terminalName *string) (*model.PairingRecord, error)
	// Heartbeat refreshes terminal liveness. Reports whether a row matched.
	Heartbeat(ctx context.Context, pin, terminalSerial string) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
	// DisconnectStale flips terminal_connected off where the last heartbeat
	// predates the cutoff. The pairing itself stays alive for reclaim.
	DisconnectStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type pairingRepo struct {
	db *sqlx.DB
}

func NewPairingRepository(db *sqlx.DB) PairingRepository {
	return &pairingRepo{db: db}
}

func (r *pairingRepo) Create(ctx context.Context, params model.RegisterPairingParams, expiresAt time.Time) (*model.PairingRecord, error) {
	var rec model.PairingRecord
	err := r.db.GetContext(ctx, &rec, `
		INSERT INTO pairings (pin_code, pos_id, pos_name, event_id, event_name, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.PinCode, params.PosID, params.PosName, params.EventID, params.EventName, expiresAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *pairingRepo) FindByPIN(ctx context.Context, pin string) (*model.PairingRecord, error) {
	var rec model.PairingRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT * FROM pairings
		WHERE pin_code = $1
	`, pin)
	return HandleNotFound(&rec, err)
}

func (r *pairingRepo) Delete(ctx context.Context, pin string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM pairings
		WHERE pin_code = $1
	`, pin)
	return err
}

func (r *pairingRepo) MarkClaimed(ctx context.Context, pin, terminalSerial string, terminalName *string) (*model.PairingRecord, error) {
	var rec model.PairingRecord
	err := r.db.GetContext(ctx, &rec, `
		UPDATE pairings SET
			terminal_connected = TRUE,
			terminal_connected_at = COALESCE(terminal_connected_at, NOW()),
			terminal_serial = $2,
			terminal_name = COALESCE($3, terminal_name),
			last_heartbeat_at = NOW()
		WHERE pin_code = $1
		  AND expires_at > NOW()
		  AND (terminal_serial IS NULL OR terminal_serial = $2)
		RETURNING *
	`, pin, terminalSerial, terminalName)
	return HandleNotFound(&rec, err)
}

func (r *pairingRepo) Heartbeat(ctx context.Context, pin, terminalSerial string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pairings SET
			terminal_connected = TRUE,
			last_heartbeat_at = NOW()
		WHERE pin_code = $1
		  AND terminal_serial = $2
		  AND expires_at > NOW()
	`, pin, terminalSerial)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *pairingRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pairings
		WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *pairingRepo) DisconnectStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pairings SET
			terminal_connected = FALSE
		WHERE terminal_connected = TRUE
		  AND (last_heartbeat_at IS NULL OR last_heartbeat_at < $1)
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
