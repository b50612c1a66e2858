// Package qr builds and parses the pairing payload that the register
// renders as a QR code for the terminal to scan.
package qr

import (
	"fmt"
	"net/url"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
)

const (
	// Scheme is the URI scheme shared by every pairing payload.
	Scheme = "mizpos"
	// Host identifies the pairing action within the scheme.
	Host = "pair"
)

// Encode renders a PIN as a pairing payload URI.
// Returns INVALID_PIN if the PIN is not exactly six digits.
func Encode(pin string) (string, error) {
	if !model.ValidPIN(pin) {
		return "", apperrors.InvalidPin()
	}
	u := url.URL{
		Scheme:   Scheme,
		Host:     Host,
		RawQuery: url.Values{"pin": {pin}}.Encode(),
	}
	return u.String(), nil
}

// Decode extracts the PIN from a pairing payload URI.
// Returns INVALID_INPUT for payloads that are not pairing URIs and
// INVALID_PIN when the embedded PIN is malformed.
func Decode(payload string) (string, error) {
	u, err := url.Parse(payload)
	if err != nil {
		return "", apperrors.InvalidInput("payload", "not a valid URI").WithCause(err)
	}
	if u.Scheme != Scheme || u.Host != Host {
		return "", apperrors.InvalidInput("payload", fmt.Sprintf("expected %s://%s URI", Scheme, Host))
	}
	pin := u.Query().Get("pin")
	if !model.ValidPIN(pin) {
		return "", apperrors.InvalidPin()
	}
	return pin, nil
}
