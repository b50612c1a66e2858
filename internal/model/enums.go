package model

// PairingStatus is the POS-local view of the pairing lifecycle. It never
// travels on the wire; the backend only knows whether a pairing row exists
// and whether a terminal is connected to it.
type PairingStatus string

const (
	PairingDisconnected PairingStatus = "disconnected"
	PairingRegistering  PairingStatus = "registering"
	PairingWaiting      PairingStatus = "waiting"
	PairingConnected    PairingStatus = "connected"
	PairingError        PairingStatus = "error"
)

// PaymentStatus is the backend-authoritative payment request state.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentFailed     PaymentStatus = "failed"
)

// Terminal reports whether the status is final for the request lifecycle.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentCompleted, PaymentCancelled, PaymentFailed:
		return true
	}
	return false
}

// Valid reports whether the status is one of the known lifecycle states.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentCancelled, PaymentFailed:
		return true
	}
	return false
}

// rank orders statuses along the forward-only lifecycle. Terminal states
// share a rank: once terminal, a request never becomes a different terminal
// state.
func (s PaymentStatus) rank() int {
	switch s {
	case PaymentPending:
		return 0
	case PaymentProcessing:
		return 1
	case PaymentCompleted, PaymentCancelled, PaymentFailed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// monotonic. A completed request may "transition" to completed again: that is
// how late-arriving card details are merged onto an already-completed row.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return s == PaymentCompleted && next == PaymentCompleted
	}
	return next.rank() > s.rank()
}
