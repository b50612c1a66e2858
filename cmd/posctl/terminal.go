package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mizpos/terminal-link-go/internal/api"
	"github.com/mizpos/terminal-link-go/internal/config"
	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
	"github.com/mizpos/terminal-link-go/internal/poller"
	"github.com/mizpos/terminal-link-go/internal/qr"
	"github.com/mizpos/terminal-link-go/internal/receipt"
)

// simulator is a stand-in payment terminal: it claims a pairing, keeps a
// heartbeat going, pulls pending requests off the queue and reports a
// configurable outcome. Completion is reported in two phases by default,
// intent first and card details a beat later, matching how settlement
// details trail authorization on real hardware.
type simulator struct {
	client   *api.Client
	pin      string
	serial   string
	outcome  string
	delay    time.Duration
	twoPhase bool

	heartbeats *poller.Poller
	work       *poller.Poller

	loseOnce sync.Once
	gone     chan struct{}
}

func runTerminal(args []string) error {
	fs := flag.NewFlagSet("terminal", flag.ExitOnError)
	server := fs.String("server", envOr("RENDEZVOUS_URL", "http://localhost:8080"), "rendezvous base URL")
	pinFlag := fs.String("pin", "", "6-digit pairing PIN")
	qrFlag := fs.String("qr", "", "QR payload to decode instead of -pin")
	serial := fs.String("serial", "SIM-0001", "terminal serial")
	name := fs.String("name", "Simulated terminal", "terminal display name")
	outcome := fs.String("outcome", "completed", "result to report: completed or failed")
	delay := fs.Duration("delay", 2*time.Second, "simulated card processing time")
	singlePhase := fs.Bool("single-phase", false, "report card details together with completion")
	fs.Parse(args)

	pin := *pinFlag
	if *qrFlag != "" {
		decoded, err := qr.Decode(*qrFlag)
		if err != nil {
			return err
		}
		pin = decoded
	}
	if !model.ValidPIN(pin) {
		return fmt.Errorf("a 6-digit PIN is required, pass -pin or -qr")
	}
	if *outcome != "completed" && *outcome != "failed" {
		return fmt.Errorf("outcome must be completed or failed")
	}

	client := api.NewClient(*server, config.TransportTimeout)
	ctx := context.Background()

	params := model.ClaimPairingParams{TerminalSerial: *serial}
	if *name != "" {
		params.TerminalName = name
	}
	rec, err := client.ClaimPairing(ctx, pin, params)
	if err != nil {
		return fmt.Errorf("claim pairing: %w", err)
	}
	fmt.Printf("Claimed pairing %s for %s. Waiting for payment requests...\n", pin, rec.PosName)

	sim := &simulator{
		client:     client,
		pin:        pin,
		serial:     *serial,
		outcome:    *outcome,
		delay:      *delay,
		twoPhase:   !*singlePhase,
		heartbeats: poller.New("heartbeat"),
		work:       poller.New("terminal-work"),
		gone:       make(chan struct{}),
	}

	sim.heartbeats.Start(10*time.Second, sim.heartbeat)
	sim.work.Start(2*time.Second, sim.serve)
	defer sim.heartbeats.Stop()
	defer sim.work.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		fmt.Println("Terminal signing off.")
		return nil
	case <-sim.gone:
		return fmt.Errorf("pairing was revoked by the register")
	}
}

func (s *simulator) lose() {
	s.loseOnce.Do(func() { close(s.gone) })
}

func (s *simulator) heartbeat(ctx context.Context) {
	err := s.client.Heartbeat(ctx, s.pin, model.HeartbeatParams{TerminalSerial: s.serial})
	if err == nil {
		return
	}
	if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		s.lose()
		return
	}
	log.Warn().Err(err).Msg("heartbeat failed")
}

func (s *simulator) serve(ctx context.Context) {
	req, err := s.client.NextPaymentRequest(ctx, s.pin, s.serial)
	if err != nil {
		log.Warn().Err(err).Msg("poll for work failed")
		return
	}
	if req == nil {
		return
	}
	s.fulfill(ctx, req)
}

func (s *simulator) fulfill(ctx context.Context, req *model.PaymentRequest) {
	fmt.Printf("Processing %s for %s...\n", req.RequestID, receipt.FormatAmount(req.Amount, req.Currency))

	if _, err := s.submit(ctx, req.RequestID, model.TerminalResultParams{
		TerminalSerial: s.serial,
		Status:         model.PaymentProcessing,
	}); err != nil {
		return
	}

	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return
	}

	if s.outcome == "failed" {
		msg := "card declined (simulated)"
		s.submit(ctx, req.RequestID, model.TerminalResultParams{
			TerminalSerial: s.serial,
			Status:         model.PaymentFailed,
			ErrorMessage:   &msg,
		})
		fmt.Printf("Declined %s.\n", req.RequestID)
		return
	}

	intent := "pi_sim_" + uuid.NewString()[:8]
	now := time.Now().UTC()
	details := &model.CardDetails{
		Brand:           "visa",
		Last4:           "4242",
		Funding:         "credit",
		TerminalSerial:  s.serial,
		TransactionType: "sale",
		TransactionTime: &now,
	}

	if !s.twoPhase {
		s.submit(ctx, req.RequestID, model.TerminalResultParams{
			TerminalSerial:  s.serial,
			Status:          model.PaymentCompleted,
			PaymentIntentID: &intent,
			CardDetails:     details,
		})
		fmt.Printf("Completed %s (%s).\n", req.RequestID, intent)
		return
	}

	if _, err := s.submit(ctx, req.RequestID, model.TerminalResultParams{
		TerminalSerial:  s.serial,
		Status:          model.PaymentCompleted,
		PaymentIntentID: &intent,
	}); err != nil {
		return
	}

	// Settlement details trail the authorization.
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return
	}
	s.submit(ctx, req.RequestID, model.TerminalResultParams{
		TerminalSerial: s.serial,
		Status:         model.PaymentCompleted,
		CardDetails:    details,
	})
	fmt.Printf("Completed %s (%s).\n", req.RequestID, intent)
}

func (s *simulator) submit(ctx context.Context, requestID string, params model.TerminalResultParams) (*model.PaymentRequest, error) {
	updated, err := s.client.SubmitResult(ctx, requestID, params)
	if err != nil {
		log.Warn().
			Err(err).
			Str("request_id", requestID).
			Str("status", string(params.Status)).
			Msg("result submission failed")
		return nil, err
	}
	return updated, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
