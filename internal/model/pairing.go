package model

import (
	"regexp"
	"time"
)

// PairingTTL is how long a pairing record lives before the backend may
// reclaim it. The PIN is a bearer credential; the TTL bounds how long an
// orphaned record can linger when best-effort cleanup never reached the
// backend.
const PairingTTL = 24 * time.Hour

var pinPattern = regexp.MustCompile(`^\d{6}$`)

// ValidPIN reports whether s is a well-formed 6-digit PIN code. Leading
// zeros are legal: the PIN is a string credential, not a number.
func ValidPIN(s string) bool {
	return pinPattern.MatchString(s)
}

// PairingRecord is the rendezvous association between one POS and one
// payment terminal, keyed by the client-generated PIN. The backend copy is
// authoritative; the POS keeps a mirror that is only as fresh as the last
// poll tick.
type PairingRecord struct {
	PinCode             string     `db:"pin_code" json:"pin_code"`
	PosID               string     `db:"pos_id" json:"pos_id"`
	PosName             string     `db:"pos_name" json:"pos_name"`
	EventID             *string    `db:"event_id" json:"event_id,omitempty"`
	EventName           *string    `db:"event_name" json:"event_name,omitempty"`
	TerminalConnected   bool       `db:"terminal_connected" json:"terminal_connected"`
	TerminalConnectedAt *time.Time `db:"terminal_connected_at" json:"terminal_connected_at,omitempty"`
	TerminalSerial      *string    `db:"terminal_serial" json:"terminal_serial,omitempty"`
	TerminalName        *string    `db:"terminal_name" json:"terminal_name,omitempty"`
	LastHeartbeatAt     *time.Time `db:"last_heartbeat_at" json:"last_heartbeat_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt           time.Time  `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the record's TTL has lapsed at the given instant.
func (p *PairingRecord) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// RegisterPairingParams is the POST /terminal/pairing/register body.
type RegisterPairingParams struct {
	PinCode   string  `json:"pin_code"`
	PosID     string  `json:"pos_id"`
	PosName   string  `json:"pos_name"`
	EventID   *string `json:"event_id,omitempty"`
	EventName *string `json:"event_name,omitempty"`
}

// ClaimPairingParams is the body a payment terminal sends to claim a PIN it
// scanned.
type ClaimPairingParams struct {
	TerminalSerial string  `json:"terminal_serial"`
	TerminalName   *string `json:"terminal_name,omitempty"`
}

// HeartbeatParams keeps a claimed pairing marked as terminal-connected.
type HeartbeatParams struct {
	TerminalSerial string `json:"terminal_serial"`
}
