package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mizpos/terminal-link-go/internal/api"
	"github.com/mizpos/terminal-link-go/internal/config"
	"github.com/mizpos/terminal-link-go/internal/model"
)

const usageText = `posctl drives a register through the terminal-link rendezvous.

Usage:
  posctl <command> [flags]

POS commands (configured via POS_ID, POS_NAME, RENDEZVOUS_URL, ...):
  pair       register a pairing, print the PIN and QR payload, wait for a terminal
  status     show the saved pairing's state
  charge     open a payment request and wait for the outcome
  cancel     abandon a payment request by id
  unpair     tear the saved pairing down

Terminal simulator:
  terminal   claim a pairing and fulfill payment requests (stand-in card reader)

Run 'posctl <command> -h' for the command's flags.
`

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "pair":
		err = runPair(args)
	case "status":
		err = runStatus(args)
	case "charge":
		err = runCharge(args)
	case "cancel":
		err = runCancel(args)
	case "unpair":
		err = runUnpair(args)
	case "terminal":
		err = runTerminal(args)
	case "help", "-h", "--help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usageText)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newPOSClient loads the POS-side settings and builds the transport.
func newPOSClient() (*config.Client, *api.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, nil, err
	}
	return cfg, api.NewClient(cfg.RendezvousURL, cfg.Timeout()), nil
}

// cliState is what posctl remembers between invocations: the PIN of the
// pairing this register registered. The pairing itself lives on the backend.
type cliState struct {
	PinCode string `json:"pin_code"`
}

func statePath() string {
	if p := os.Getenv("POSCTL_STATE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".posctl.json"
	}
	return filepath.Join(home, ".posctl.json")
}

func savePin(pin string) error {
	raw, err := json.Marshal(cliState{PinCode: pin})
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath(), raw, 0o600); err != nil {
		return fmt.Errorf("save pairing state: %w", err)
	}
	return nil
}

var errNoSavedPairing = errors.New("no saved pairing, run 'posctl pair' first")

func loadPin() (string, error) {
	raw, err := os.ReadFile(statePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errNoSavedPairing
		}
		return "", fmt.Errorf("read pairing state: %w", err)
	}

	var st cliState
	if err := json.Unmarshal(raw, &st); err != nil || !model.ValidPIN(st.PinCode) {
		return "", errNoSavedPairing
	}
	return st.PinCode, nil
}

func clearPin() {
	os.Remove(statePath())
}
