package invoice

import (
	"time"

	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Invoice is a billing document for one student. Subtotal, TotalDiscounts,
// TotalTaxes and TotalAmount are derived from the three entry lists and are
// only trustworthy after Recompute.
type Invoice struct {
	ID             string              `json:"id" db:"id"`
	StudentID      string              `json:"student_id" db:"student_id"`
	SubscriptionID *string             `json:"subscription_id,omitempty" db:"subscription_id"`
	InvoiceNumber  *string             `json:"invoice_number,omitempty" db:"invoice_number"`
	InvoiceStatus  types.InvoiceStatus `json:"invoice_status" db:"invoice_status"`
	Currency       string              `json:"currency" db:"currency"`

	Items     []*Item          `json:"items" db:"-"`
	Discounts []*DiscountEntry `json:"discounts" db:"-"`
	Taxes     []*TaxEntry      `json:"taxes" db:"-"`

	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	TotalDiscounts decimal.Decimal `json:"total_discounts" db:"total_discounts"`
	TotalTaxes     decimal.Decimal `json:"total_taxes" db:"total_taxes"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid" db:"amount_paid"`

	DueDate  *time.Time `json:"due_date,omitempty" db:"due_date"`
	SentAt   *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	PaidAt   *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	VoidedAt *time.Time `json:"voided_at,omitempty" db:"voided_at"`
	Version  int        `json:"version" db:"version"`

	dirty bool
	types.BaseModel
}

// Item is a single charge on an invoice
type Item struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	CourseID       *string         `json:"course_id,omitempty"`
	SessionID      *string         `json:"session_id,omitempty"`
	SubscriptionID *string         `json:"subscription_id,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// DiscountEntry is a discount applied to the invoice as a whole
type DiscountEntry struct {
	ID            string             `json:"id"`
	DiscountID    *string            `json:"discount_id,omitempty"`
	Code          *string            `json:"code,omitempty"`
	Type          types.DiscountType `json:"type"`
	Value         decimal.Decimal    `json:"value"`
	Description   string             `json:"description"`
	AppliedAmount decimal.Decimal    `json:"applied_amount"`
	Currency      string             `json:"currency"`

	// MaxAmount caps a percentage entry when it is re-derived
	MaxAmount *decimal.Decimal `json:"max_amount,omitempty"`
}

// TaxEntry is a tax charged on the invoice
type TaxEntry struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Rate          decimal.Decimal `json:"rate"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	Currency      string          `json:"currency"`
}

// New returns an empty draft invoice with zero totals
func New(studentID, currency string) *Invoice {
	return &Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		StudentID:      studentID,
		InvoiceStatus:  types.InvoiceStatusDraft,
		Currency:       types.NormalizeCurrency(currency),
		Items:          []*Item{},
		Discounts:      []*DiscountEntry{},
		Taxes:          []*TaxEntry{},
		Subtotal:       decimal.Zero,
		TotalDiscounts: decimal.Zero,
		TotalTaxes:     decimal.Zero,
		TotalAmount:    decimal.Zero,
		AmountPaid:     decimal.Zero,
	}
}

// IsDirty reports whether an entry list changed since the last Recompute
func (i *Invoice) IsDirty() bool {
	return i.dirty
}

// MarkDirty flags the totals as stale
func (i *Invoice) MarkDirty() {
	i.dirty = true
}

func (i *Invoice) checkEditable() error {
	if !i.InvoiceStatus.IsEditable() {
		return ierr.NewError("invoice can no longer be edited").
			WithHintf("Invoice in status %s cannot be changed", i.InvoiceStatus).
			WithReportableDetails(map[string]any{
				"invoice_id": i.ID,
				"status":     i.InvoiceStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}

func (i *Invoice) checkCurrency(currency string) error {
	if types.NormalizeCurrency(currency) != i.Currency {
		return ierr.NewError("currency does not match invoice currency").
			WithHint("All invoice entries must use the invoice currency").
			WithReportableDetails(map[string]any{
				"invoice_currency": i.Currency,
				"entry_currency":   currency,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AddItem appends an item and marks the invoice dirty. The line total is
// always derived from quantity and unit price.
func (i *Invoice) AddItem(item *Item) error {
	if err := i.checkEditable(); err != nil {
		return err
	}

	if item.Quantity.IsNegative() || item.UnitPrice.IsNegative() {
		return ierr.NewError("invoice item validation failed").
			WithHint("Quantity and unit price must be non negative").
			WithReportableDetails(map[string]any{
				"quantity":   item.Quantity,
				"unit_price": item.UnitPrice,
			}).
			Mark(ierr.ErrValidation)
	}

	if item.ID == "" {
		item.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM)
	}
	item.LineTotal = item.lineTotal()

	i.Items = append(i.Items, item)
	i.dirty = true
	return nil
}

// AddDiscountEntry appends a discount entry and marks the invoice dirty
func (i *Invoice) AddDiscountEntry(entry *DiscountEntry) error {
	if err := i.checkEditable(); err != nil {
		return err
	}

	if entry.AppliedAmount.IsNegative() {
		return ierr.NewError("discount entry validation failed").
			WithHint("Applied discount amount must be non negative").
			Mark(ierr.ErrValidation)
	}

	if err := i.checkCurrency(entry.Currency); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DISCOUNT_ENTRY)
	}
	entry.Currency = i.Currency
	entry.AppliedAmount = types.RoundMoney(entry.AppliedAmount)

	i.Discounts = append(i.Discounts, entry)
	i.dirty = true
	return nil
}

// AddTaxEntry appends a tax entry and marks the invoice dirty
func (i *Invoice) AddTaxEntry(entry *TaxEntry) error {
	if err := i.checkEditable(); err != nil {
		return err
	}

	if entry.AppliedAmount.IsNegative() || entry.Rate.IsNegative() {
		return ierr.NewError("tax entry validation failed").
			WithHint("Tax rate and applied amount must be non negative").
			Mark(ierr.ErrValidation)
	}

	if err := i.checkCurrency(entry.Currency); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TAX_ENTRY)
	}
	entry.Currency = i.Currency
	entry.AppliedAmount = types.RoundMoney(entry.AppliedAmount)

	i.Taxes = append(i.Taxes, entry)
	i.dirty = true
	return nil
}

func (it *Item) lineTotal() decimal.Decimal {
	return types.RoundMoney(it.Quantity.Mul(it.UnitPrice))
}

// Totals is the derived money summary of an invoice
type Totals struct {
	Subtotal       decimal.Decimal
	TotalDiscounts decimal.Decimal
	TotalTaxes     decimal.Decimal
	TotalAmount    decimal.Decimal
}

// ComputeTotals derives the totals from the entry lists without touching
// the invoice. Items are summed first, then discounts, then taxes, and the
// grand total is clamped at zero. Entries that could only come from a
// malformed record (negative amounts) are an invariant violation.
func (i *Invoice) ComputeTotals() (Totals, error) {
	subtotal := decimal.Zero
	for _, item := range i.Items {
		if item.Quantity.IsNegative() || item.UnitPrice.IsNegative() {
			return Totals{}, ierr.NewError("invoice item has negative quantity or price").
				WithReportableDetails(map[string]any{
					"invoice_id": i.ID,
					"item_id":    item.ID,
				}).
				Mark(ierr.ErrInvariantViolation)
		}
		subtotal = subtotal.Add(item.lineTotal())
	}

	discounts := decimal.Zero
	for _, entry := range i.Discounts {
		if entry.AppliedAmount.IsNegative() {
			return Totals{}, ierr.NewError("discount entry has negative amount").
				WithReportableDetails(map[string]any{
					"invoice_id": i.ID,
					"entry_id":   entry.ID,
				}).
				Mark(ierr.ErrInvariantViolation)
		}
		discounts = discounts.Add(entry.AppliedAmount)
	}

	taxes := decimal.Zero
	for _, entry := range i.Taxes {
		if entry.AppliedAmount.IsNegative() {
			return Totals{}, ierr.NewError("tax entry has negative amount").
				WithReportableDetails(map[string]any{
					"invoice_id": i.ID,
					"entry_id":   entry.ID,
				}).
				Mark(ierr.ErrInvariantViolation)
		}
		taxes = taxes.Add(entry.AppliedAmount)
	}

	return Totals{
		Subtotal:       subtotal,
		TotalDiscounts: discounts,
		TotalTaxes:     taxes,
		TotalAmount:    types.ClampZero(subtotal.Add(taxes).Sub(discounts)),
	}, nil
}

// Recompute re-derives the four totals from the entry lists. It is
// idempotent and leaves the invoice untouched when it fails.
func (i *Invoice) Recompute() error {
	totals, err := i.ComputeTotals()
	if err != nil {
		return err
	}

	for _, item := range i.Items {
		item.LineTotal = item.lineTotal()
	}
	i.Subtotal = totals.Subtotal
	i.TotalDiscounts = totals.TotalDiscounts
	i.TotalTaxes = totals.TotalTaxes
	i.TotalAmount = totals.TotalAmount
	i.dirty = false
	return nil
}

// VerifyTotals checks that the stored totals match the entry lists
func (i *Invoice) VerifyTotals() error {
	totals, err := i.ComputeTotals()
	if err != nil {
		return err
	}

	if !totals.Subtotal.Equal(i.Subtotal) ||
		!totals.TotalDiscounts.Equal(i.TotalDiscounts) ||
		!totals.TotalTaxes.Equal(i.TotalTaxes) ||
		!totals.TotalAmount.Equal(i.TotalAmount) {
		return ierr.NewError("invoice totals do not match entries").
			WithHint("Invoice totals must be recomputed").
			WithReportableDetails(map[string]any{
				"invoice_id":      i.ID,
				"subtotal":        i.Subtotal,
				"total_discounts": i.TotalDiscounts,
				"total_taxes":     i.TotalTaxes,
				"total_amount":    i.TotalAmount,
			}).
			Mark(ierr.ErrInvariantViolation)
	}
	return nil
}

// Validate checks the invoice can be persisted
func (i *Invoice) Validate() error {
	if i.StudentID == "" {
		return ierr.NewError("student_id is required").
			WithHint("Invoice must reference a student").
			Mark(ierr.ErrValidation)
	}

	if err := i.InvoiceStatus.Validate(); err != nil {
		return err
	}

	if i.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Invoice must have a currency").
			Mark(ierr.ErrValidation)
	}

	if i.AmountPaid.IsNegative() {
		return ierr.NewError("amount_paid must not be negative").
			WithHint("Amount paid must be zero or greater").
			Mark(ierr.ErrValidation)
	}

	if i.dirty {
		return ierr.NewError("invoice totals are stale").
			WithHint("Invoice totals must be recomputed before saving").
			WithReportableDetails(map[string]any{"invoice_id": i.ID}).
			Mark(ierr.ErrInvariantViolation)
	}

	return i.VerifyTotals()
}

// AmountDue returns what is still owed on the invoice
func (i *Invoice) AmountDue() decimal.Decimal {
	return types.ClampZero(i.TotalAmount.Sub(i.AmountPaid))
}

// ApplyPayment records a payment against the invoice and marks it paid
// once the total is covered. It returns true when the invoice became paid.
func (i *Invoice) ApplyPayment(amount decimal.Decimal, now time.Time) (bool, error) {
	if i.InvoiceStatus == types.InvoiceStatusPaid || i.InvoiceStatus == types.InvoiceStatusVoid {
		return false, ierr.NewError("invoice does not accept payments").
			WithHintf("Invoice in status %s cannot receive payments", i.InvoiceStatus).
			WithReportableDetails(map[string]any{
				"invoice_id": i.ID,
				"status":     i.InvoiceStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if i.dirty {
		return false, ierr.NewError("invoice totals are stale").
			WithHint("Invoice totals must be recomputed before taking payments").
			Mark(ierr.ErrInvariantViolation)
	}

	if amount.IsNegative() {
		return false, ierr.NewError("payment amount must not be negative").
			WithHint("Payment amount must be zero or greater").
			Mark(ierr.ErrValidation)
	}

	i.AmountPaid = types.RoundMoney(i.AmountPaid.Add(amount))
	if i.AmountPaid.GreaterThanOrEqual(i.TotalAmount) {
		i.InvoiceStatus = types.InvoiceStatusPaid
		i.PaidAt = lo.ToPtr(now)
		return true, nil
	}
	return false, nil
}

// Void marks the invoice void. Its number, if any, is never reissued.
func (i *Invoice) Void(now time.Time) error {
	if i.InvoiceStatus == types.InvoiceStatusPaid {
		return ierr.NewError("paid invoice cannot be voided").
			WithHint("A paid invoice cannot be voided").
			Mark(ierr.ErrInvalidOperation)
	}
	i.InvoiceStatus = types.InvoiceStatusVoid
	i.VoidedAt = lo.ToPtr(now)
	return nil
}

// TaxEntryFromRate builds a tax entry charging rate percent on the taxable
// amount, which is floored at zero
func TaxEntryFromRate(name string, rate, taxable decimal.Decimal, currency string) *TaxEntry {
	return &TaxEntry{
		Name:          name,
		Rate:          rate,
		AppliedAmount: types.RoundMoney(types.Percent(types.ClampZero(taxable), rate)),
		Currency:      types.NormalizeCurrency(currency),
	}
}

// TaxableAmount is the base taxes are charged on: subtotal less discounts
func (i *Invoice) TaxableAmount() decimal.Decimal {
	return types.ClampZero(i.Subtotal.Sub(i.TotalDiscounts))
}

// Copy returns a deep copy of the invoice
func (i *Invoice) Copy() *Invoice {
	out := *i
	out.Items = lo.Map(i.Items, func(it *Item, _ int) *Item {
		c := *it
		return &c
	})
	out.Discounts = lo.Map(i.Discounts, func(e *DiscountEntry, _ int) *DiscountEntry {
		c := *e
		return &c
	})
	out.Taxes = lo.Map(i.Taxes, func(e *TaxEntry, _ int) *TaxEntry {
		c := *e
		return &c
	})
	return &out
}

// DiscountEntryByCode returns the entry applied for code, if any
func (i *Invoice) DiscountEntryByCode(code string) *DiscountEntry {
	entry, ok := lo.Find(i.Discounts, func(e *DiscountEntry) bool {
		return e.Code != nil && *e.Code == code
	})
	if !ok {
		return nil
	}
	return entry
}

// RemoveDiscountEntry drops the entry with the given id and marks the
// invoice dirty. It reports whether an entry was removed.
func (i *Invoice) RemoveDiscountEntry(id string) (bool, error) {
	if err := i.checkEditable(); err != nil {
		return false, err
	}

	kept := lo.Reject(i.Discounts, func(e *DiscountEntry, _ int) bool {
		return e.ID == id
	})
	if len(kept) == len(i.Discounts) {
		return false, nil
	}
	i.Discounts = kept
	i.dirty = true
	return true, nil
}

// RecomputeWithTaxRates recomputes the totals and re-derives every entry
// that depends on them: percentage discounts follow the subtotal, then
// rate based taxes follow the taxable amount. Flat entries keep their
// amount.
func (i *Invoice) RecomputeWithTaxRates() error {
	if err := i.Recompute(); err != nil {
		return err
	}

	changed := false
	for _, entry := range i.Discounts {
		if entry.Type != types.DiscountTypePercentage || !entry.Value.IsPositive() {
			continue
		}
		amount := types.Percent(i.Subtotal, entry.Value)
		if entry.MaxAmount != nil && amount.GreaterThan(*entry.MaxAmount) {
			amount = *entry.MaxAmount
		}
		amount = types.RoundMoney(amount)
		if !amount.Equal(entry.AppliedAmount) {
			entry.AppliedAmount = amount
			changed = true
		}
	}
	if changed {
		if err := i.Recompute(); err != nil {
			return err
		}
	}

	taxable := i.TaxableAmount()
	changed = false
	for _, entry := range i.Taxes {
		if !entry.Rate.IsPositive() {
			continue
		}
		amount := types.RoundMoney(types.Percent(taxable, entry.Rate))
		if !amount.Equal(entry.AppliedAmount) {
			entry.AppliedAmount = amount
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return i.Recompute()
}
