package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
	"github.com/mizpos/terminal-link-go/internal/pairing"
	"github.com/mizpos/terminal-link-go/internal/payment"
	"github.com/mizpos/terminal-link-go/internal/qr"
	"github.com/mizpos/terminal-link-go/internal/receipt"
)

func runPair(args []string) error {
	fs := flag.NewFlagSet("pair", flag.ExitOnError)
	wait := fs.Duration("wait", 5*time.Minute, "how long to wait for a terminal before returning")
	fs.Parse(args)

	cfg, client, err := newPOSClient()
	if err != nil {
		return err
	}

	coord := pairing.NewCoordinator(client, 0)
	ctx := context.Background()

	eventID, eventName := cfg.Event()
	pin, err := coord.Register(ctx, model.RegisterPairingParams{
		PosID:     cfg.PosID,
		PosName:   cfg.PosName,
		EventID:   eventID,
		EventName: eventName,
	})
	if err != nil {
		return err
	}
	if err := savePin(pin); err != nil {
		return err
	}

	payload, err := qr.Encode(pin)
	if err != nil {
		return err
	}

	fmt.Printf("Pairing PIN: %s\n", pin)
	fmt.Printf("QR payload:  %s\n", payload)
	fmt.Println("Waiting for a terminal to claim the pairing...")

	coord.StartStatusPolling()
	defer coord.StopStatusPolling()

	deadline := time.After(*wait)
	for {
		select {
		case ev := <-coord.Events():
			switch ev.Status {
			case model.PairingConnected:
				fmt.Println("Terminal connected.")
				return nil
			case model.PairingDisconnected:
				clearPin()
				return fmt.Errorf("pairing lost: %s", ev.Message)
			}
		case <-deadline:
			fmt.Println("No terminal yet. The pairing stays live; check with 'posctl status'.")
			return nil
		}
	}
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)

	_, client, err := newPOSClient()
	if err != nil {
		return err
	}
	pin, err := loadPin()
	if err != nil {
		return err
	}

	rec, err := client.GetPairing(context.Background(), pin)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			clearPin()
			fmt.Println("Pairing is gone (expired or revoked).")
			return nil
		}
		return err
	}

	fmt.Printf("PIN:      %s\n", rec.PinCode)
	fmt.Printf("POS:      %s (%s)\n", rec.PosName, rec.PosID)
	if rec.EventName != nil {
		fmt.Printf("Event:    %s\n", *rec.EventName)
	}
	if rec.TerminalConnected {
		serial := ""
		if rec.TerminalSerial != nil {
			serial = " (" + *rec.TerminalSerial + ")"
		}
		fmt.Printf("Terminal: connected%s\n", serial)
	} else if rec.TerminalSerial != nil {
		fmt.Printf("Terminal: %s offline, waiting for it to reconnect\n", *rec.TerminalSerial)
	} else {
		fmt.Println("Terminal: none yet, waiting for a claim")
	}
	fmt.Printf("Expires:  %s\n", rec.ExpiresAt.Local().Format(time.RFC3339))
	return nil
}

// itemsFlag collects repeated -item name:qty:price values.
type itemsFlag []model.SaleItem

func (f *itemsFlag) String() string {
	return fmt.Sprintf("%d items", len(*f))
}

func (f *itemsFlag) Set(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return fmt.Errorf("want name:qty:price, got %q", v)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("bad quantity in %q", v)
	}
	price, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return fmt.Errorf("bad price in %q", v)
	}
	*f = append(*f, model.SaleItem{Name: parts[0], Quantity: qty, Price: price})
	return nil
}

func runCharge(args []string) error {
	fs := flag.NewFlagSet("charge", flag.ExitOnError)
	amount := fs.Int64("amount", 0, "amount in minor units (required)")
	desc := fs.String("desc", "", "description shown to the terminal")
	saleID := fs.String("sale-id", "", "external sale reference")
	currency := fs.String("currency", "", "ISO 4217 override")
	wait := fs.Duration("wait", 3*time.Minute, "how long to wait for the terminal outcome")
	var items itemsFlag
	fs.Var(&items, "item", "line item as name:qty:price, repeatable")
	fs.Parse(args)

	cfg, client, err := newPOSClient()
	if err != nil {
		return err
	}
	pin, err := loadPin()
	if err != nil {
		return err
	}

	ctx := context.Background()
	rec, err := client.GetPairing(ctx, pin)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			clearPin()
			return fmt.Errorf("pairing is gone, run 'posctl pair' again")
		}
		return err
	}

	cur := cfg.Currency
	if *currency != "" {
		cur = *currency
	}

	mgr := payment.NewManager(client, staticPairing{rec}, cur, 0)
	opts := payment.CreateOptions{Items: model.SaleItems(items)}
	if *desc != "" {
		opts.Description = desc
	}
	if *saleID != "" {
		opts.SaleID = saleID
	}

	req, err := mgr.Create(ctx, *amount, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Payment request %s for %s, waiting for the terminal...\n",
		req.RequestID, receipt.FormatAmount(req.Amount, req.Currency))

	deadline := time.After(*wait)
	for {
		select {
		case ev := <-mgr.Events():
			switch ev.Status {
			case model.PaymentProcessing:
				fmt.Println("Terminal is processing the card...")
			case model.PaymentCompleted:
				fmt.Println("Payment completed.")
				return printReceipt(cfg.PosName, ev.Request)
			case model.PaymentFailed:
				if ev.Request != nil && ev.Request.ErrorMessage != nil {
					return fmt.Errorf("payment failed: %s", *ev.Request.ErrorMessage)
				}
				return fmt.Errorf("payment failed")
			case model.PaymentCancelled:
				return fmt.Errorf("payment was cancelled")
			}
		case <-deadline:
			if cancelErr := mgr.Cancel(ctx); cancelErr != nil {
				log.Warn().Err(cancelErr).Msg("cancel after timeout failed")
			}
			return fmt.Errorf("timed out waiting for the terminal, request %s cancelled", req.RequestID)
		}
	}
}

func printReceipt(header string, req *model.PaymentRequest) error {
	text, err := receipt.Format(req, receipt.Options{Header: header})
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(text)
	return nil
}

func runCancel(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	fs.Parse(args)

	requestID := fs.Arg(0)
	if requestID == "" {
		return fmt.Errorf("usage: posctl cancel <request-id>")
	}

	_, client, err := newPOSClient()
	if err != nil {
		return err
	}

	if err := client.CancelPaymentRequest(context.Background(), requestID); err != nil {
		return err
	}
	fmt.Printf("Request %s cancelled.\n", requestID)
	return nil
}

func runUnpair(args []string) error {
	fs := flag.NewFlagSet("unpair", flag.ExitOnError)
	fs.Parse(args)

	_, client, err := newPOSClient()
	if err != nil {
		return err
	}
	pin, err := loadPin()
	if err != nil {
		return err
	}

	// Local state always clears; the backend delete is best-effort and the
	// 24h TTL mops up if it never lands.
	if err := client.DeletePairing(context.Background(), pin); err != nil {
		log.Warn().Err(err).Msg("pairing delete failed, ignored")
	}
	clearPin()
	fmt.Println("Unpaired.")
	return nil
}

// staticPairing adapts a fetched record to the manager's pairing source.
// Each posctl invocation is a fresh process, so the pairing is looked up
// once rather than tracked by a live coordinator.
type staticPairing struct {
	rec *model.PairingRecord
}

func (s staticPairing) ActivePairing() *model.PairingRecord {
	return s.rec
}
