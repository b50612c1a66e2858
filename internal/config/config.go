package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Client is the POS-side configuration: where the rendezvous backend lives
// and the identity this register reports when pairing. POS id/name/event are
// the local settings source the coordinator reads from.
type Client struct {
	RendezvousURL  string `env:"RENDEZVOUS_URL" envDefault:"http://localhost:8080"`
	PosID          string `env:"POS_ID,required"`
	PosName        string `env:"POS_NAME,required"`
	EventID        string `env:"EVENT_ID"`
	EventName      string `env:"EVENT_NAME"`
	Currency       string `env:"CURRENCY" envDefault:"jpy"`
	TimeoutSeconds int    `env:"HTTP_TIMEOUT_SECONDS" envDefault:"10"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Client) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Event returns the optional event pair as pointers, nil when unset, the
// shape the registration body wants.
func (c *Client) Event() (id, name *string) {
	if c.EventID != "" {
		id = &c.EventID
	}
	if c.EventName != "" {
		name = &c.EventName
	}
	return id, name
}

func (c *Client) Validate() error {
	if c.Currency == "" {
		return fmt.Errorf("CURRENCY must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// LoadClient reads the POS client configuration from the environment.
func LoadClient() (*Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Server is the rendezvousd configuration.
type Server struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	DatabaseURL             string `env:"DATABASE_URL,required"`
	RedisURL                string `env:"REDIS_URL,required"`
	HeartbeatTimeoutSeconds int    `env:"HEARTBEAT_TIMEOUT_SECONDS" envDefault:"30"`
	RequestRetentionHours   int    `env:"REQUEST_RETENTION_HOURS" envDefault:"24"`
	ClaimsPerIPPerMin       int    `env:"CLAIMS_PER_IP_PER_MIN" envDefault:"10"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Server) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Server) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSeconds) * time.Second
}

func (c *Server) RequestRetention() time.Duration {
	return time.Duration(c.RequestRetentionHours) * time.Hour
}

func (c *Server) Validate() error {
	if c.HeartbeatTimeoutSeconds <= 0 {
		return fmt.Errorf("HEARTBEAT_TIMEOUT_SECONDS must be positive")
	}
	if c.RequestRetentionHours <= 0 {
		return fmt.Errorf("REQUEST_RETENTION_HOURS must be positive")
	}
	if c.ClaimsPerIPPerMin <= 0 {
		return fmt.Errorf("CLAIMS_PER_IP_PER_MIN must be positive")
	}
	return nil
}

// LoadServer reads the rendezvous server configuration from the environment.
func LoadServer() (*Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
