package invoice

import (
	"fmt"
	"strings"

	ierr "github.com/edulane/billing/internal/errors"
)

// DefaultNumberDigits is the zero padding of the sequence part of a number
const DefaultNumberDigits = 6

// SequenceKey identifies one invoice number counter. Counters only ever
// increase and a value handed out is never reused, even if the invoice it
// was issued for is voided.
type SequenceKey struct {
	Scope string
	Year  int
}

func (k SequenceKey) Validate() error {
	if strings.TrimSpace(k.Scope) == "" {
		return ierr.NewError("sequence scope is required").
			WithHint("Invoice numbers must be issued within a scope").
			Mark(ierr.ErrValidation)
	}
	if k.Year < 1 || k.Year > 9999 {
		return ierr.NewError("sequence year out of range").
			WithHintf("Year %d is not a valid invoice year", k.Year).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InvoiceSequence is the stored state of one counter
type InvoiceSequence struct {
	Scope     string `db:"scope"`
	Year      int    `db:"year"`
	LastValue int64  `db:"last_value"`
}

// FormatInvoiceNumber renders a number like 2025-000123
func FormatInvoiceNumber(year int, value int64, digits int) string {
	if digits <= 0 {
		digits = DefaultNumberDigits
	}
	return fmt.Sprintf("%04d-%0*d", year, digits, value)
}
