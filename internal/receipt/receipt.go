// Package receipt renders settled payment requests as fixed-width text for
// thermal printers and terminal output.
package receipt

import (
	"fmt"
	"strings"

	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/model"
)

// DefaultWidth matches the common 58mm thermal printer column count.
const DefaultWidth = 32

const timeLayout = "2006-01-02 15:04:05"

// Options controls receipt layout.
type Options struct {
	// Width is the column count; DefaultWidth when zero.
	Width int
	// Header is printed centered on the first line, typically the POS name.
	Header string
}

// Format renders a settled payment request. Unsettled requests are refused:
// a receipt claims money moved, and that claim is only safe once the
// settlement artifacts are present.
func Format(req *model.PaymentRequest, opts Options) (string, error) {
	if req == nil {
		return "", apperrors.ValidationError("receipt requires a payment request")
	}
	if !req.Settled() {
		return "", apperrors.ValidationError("receipt requires a settled payment request")
	}

	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	divider := strings.Repeat("-", width)

	var b strings.Builder
	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	if opts.Header != "" {
		writeLine(center(opts.Header, width))
	}
	settledAt := req.UpdatedAt
	if req.CardDetails.TransactionTime != nil {
		settledAt = *req.CardDetails.TransactionTime
	}
	writeLine(center(settledAt.Format(timeLayout), width))
	if req.Description != nil && *req.Description != "" {
		writeLine(center(*req.Description, width))
	}
	writeLine(divider)

	for _, item := range req.Items {
		qty := fmt.Sprintf("x%d", item.Quantity)
		amount := formatNumber(item.Price*int64(item.Quantity), exponent(req.Currency))
		writeLine(split(fmt.Sprintf("%s %s", item.Name, qty), amount, width))
	}
	if len(req.Items) > 0 {
		writeLine(divider)
	}

	writeLine(split("TOTAL", FormatAmount(req.Amount, req.Currency), width))
	card := fmt.Sprintf("%s ****%s", strings.ToUpper(req.CardDetails.Brand), req.CardDetails.Last4)
	writeLine(split("CARD", card, width))
	writeLine(split("REF", *req.PaymentIntentID, width))
	writeLine(divider)
	writeLine(center("Thank you", width))

	return b.String(), nil
}

// FormatAmount renders a minor-unit amount with its ISO 4217 code, e.g.
// 1500 jpy -> "JPY 1,500" and 1500 usd -> "USD 15.00".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + strings.ToUpper(currency) + " " + formatNumber(amount, exponent(currency))
}

// exponent returns how many minor-unit digits the currency carries.
func exponent(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd":
		return 0
	case "bhd", "jod", "kwd", "omr", "tnd":
		return 3
	default:
		return 2
	}
}

func formatNumber(amount int64, exp int) string {
	pow := int64(1)
	for i := 0; i < exp; i++ {
		pow *= 10
	}
	whole := group(amount / pow)
	if exp == 0 {
		return whole
	}
	return fmt.Sprintf("%s.%0*d", whole, exp, amount%pow)
}

// group inserts thousands separators.
func group(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}

// split left-aligns and right-aligns two fragments on one line, truncating
// the left side when they collide.
func split(left, right string, width int) string {
	space := width - len(right) - 1
	if space < 0 {
		return right
	}
	if len(left) > space {
		left = left[:space]
	}
	return left + strings.Repeat(" ", width-len(left)-len(right)) + right
}
