package config

import "time"

// Client polling intervals. Pairing status only affects liveness copy on the
// POS screen; payment results gate a purchase the customer is waiting on,
// hence the tighter interval.
const (
	PairingPollInterval = 5 * time.Second
	PaymentPollInterval = 2 * time.Second
)

// DefaultCurrency is the ISO 4217 code used when the deployment does not
// configure one. Amounts are minor units throughout.
const DefaultCurrency = "jpy"

// One-shot transport timeout for register/create/cancel calls. Polling calls
// share it; a tick that cannot finish inside the interval is skipped by the
// poller rather than stacked.
const TransportTimeout = 10 * time.Second

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for startup checks
const DBPingTimeout = 5 * time.Second

// Background job defaults for the rendezvous server.
const (
	CleanupJobInterval       = 1 * time.Minute
	DefaultHeartbeatTimeout  = 30 * time.Second
	DefaultRequestRetention  = 24 * time.Hour
	DefaultClaimsPerIPPerMin = 10
)
