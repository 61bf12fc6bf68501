package types

import (
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/samber/lo"
)

// InvoiceStatus is assigned by the caller; the engine only reads it for
// overdue derivation and sets it on send and payment.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
	InvoiceStatusVoid  InvoiceStatus = "void"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusSent,
		InvoiceStatusPaid,
		InvoiceStatusVoid,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHint("Please provide a valid invoice status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"status":  s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsEditable reports whether items, discounts and taxes may still change
func (s InvoiceStatus) IsEditable() bool {
	return s == InvoiceStatusDraft || s == InvoiceStatusSent
}

// InvoiceAgingBucket groups overdue invoices by how late they are
type InvoiceAgingBucket string

const (
	InvoiceAgingCurrent InvoiceAgingBucket = "current"
	InvoiceAging1To30   InvoiceAgingBucket = "1-30"
	InvoiceAging31To60  InvoiceAgingBucket = "31-60"
	InvoiceAging61To90  InvoiceAgingBucket = "61-90"
	InvoiceAgingOver90  InvoiceAgingBucket = "90+"
)
