package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SaleItem is one line of the sale a payment request settles. Prices are
// unit prices in minor currency units, mirroring the POS sale records.
type SaleItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     int64   `json:"price"`
	ProductID *string `json:"product_id,omitempty"`
}

// SaleItems stores the item lines as a single JSONB column server-side.
type SaleItems []SaleItem

// Value implements the driver.Valuer interface
func (s SaleItems) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface
func (s *SaleItems) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("sale items: unsupported column type %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// CardDetails carries receipt-grade card metadata reported by the payment
// terminal after settlement. No PAN or sensitive authentication data ever
// appears here.
type CardDetails struct {
	Brand           string     `json:"brand"`
	Last4           string     `json:"last4"`
	ExpMonth        int        `json:"exp_month,omitempty"`
	ExpYear         int        `json:"exp_year,omitempty"`
	CardholderName  string     `json:"cardholder_name,omitempty"`
	Funding         string     `json:"funding,omitempty"`
	TerminalSerial  string     `json:"terminal_serial,omitempty"`
	TransactionType string     `json:"transaction_type,omitempty"`
	TransactionTime *time.Time `json:"transaction_time,omitempty"`
}

// Value implements the driver.Valuer interface
func (c *CardDetails) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface
func (c *CardDetails) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("card details: unsupported column type %T", value)
	}
	return json.Unmarshal(bytes, c)
}

// PaymentRequest is one funds-moving operation scoped to an active pairing.
// The backend owns the authoritative copy; request_id is server-assigned and
// opaque to the POS.
type PaymentRequest struct {
	RequestID       string        `db:"request_id" json:"request_id"`
	PinCode         string        `db:"pin_code" json:"pin_code"`
	Amount          int64         `db:"amount" json:"amount"`
	Currency        string        `db:"currency" json:"currency"`
	Description     *string       `db:"description" json:"description,omitempty"`
	SaleID          *string       `db:"sale_id" json:"sale_id,omitempty"`
	Items           SaleItems     `db:"items" json:"items,omitempty"`
	Status          PaymentStatus `db:"status" json:"status"`
	PaymentIntentID *string       `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CardDetails     *CardDetails  `db:"card_details" json:"card_details,omitempty"`
	ErrorMessage    *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// Settled reports whether the request is usable by downstream consumers
// (receipt rendering, sale finalization). "completed" alone is not enough:
// the payment network feeds intent id and card details into the backend with
// eventual consistency, so both must have landed.
func (r *PaymentRequest) Settled() bool {
	return r.Status == PaymentCompleted &&
		r.PaymentIntentID != nil && *r.PaymentIntentID != "" &&
		r.CardDetails != nil
}

// CreatePaymentRequestParams is the POST /terminal/payment-requests body.
type CreatePaymentRequestParams struct {
	PinCode     string    `json:"pin_code"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Description *string   `json:"description,omitempty"`
	SaleID      *string   `json:"sale_id,omitempty"`
	Items       SaleItems `json:"items,omitempty"`
}

// TerminalResultParams is the body a payment terminal posts to report
// progress or an outcome for a request it picked up. A completed result may
// arrive without card details and be followed by another completed result
// that only adds them.
type TerminalResultParams struct {
	TerminalSerial  string        `json:"terminal_serial"`
	Status          PaymentStatus `json:"status"`
	PaymentIntentID *string       `json:"payment_intent_id,omitempty"`
	CardDetails     *CardDetails  `json:"card_details,omitempty"`
	ErrorMessage    *string       `json:"error_message,omitempty"`
}
