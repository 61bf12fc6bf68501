package dto

import (
	"context"
	"time"

	"github.com/edulane/billing/internal/domain/discount"
	"github.com/edulane/billing/internal/domain/invoice"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/edulane/billing/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateInvoiceItemRequest is one charge on a new or existing invoice
type CreateInvoiceItemRequest struct {
	Description    string          `json:"description" validate:"required"`
	CourseID       *string         `json:"course_id,omitempty"`
	SessionID      *string         `json:"session_id,omitempty"`
	SubscriptionID *string         `json:"subscription_id,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

func (r *CreateInvoiceItemRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if r.Quantity.IsNegative() || r.UnitPrice.IsNegative() {
		return ierr.NewError("quantity and unit_price must not be negative").
			WithHint("Invoice item quantity and unit price must be zero or greater").
			WithReportableDetails(map[string]any{
				"quantity":   r.Quantity.String(),
				"unit_price": r.UnitPrice.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateInvoiceItemRequest) ToItem() *invoice.Item {
	return &invoice.Item{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
		Description:    r.Description,
		CourseID:       r.CourseID,
		SessionID:      r.SessionID,
		SubscriptionID: r.SubscriptionID,
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice,
	}
}

// CreateInvoiceRequest creates a draft invoice with optional initial items
type CreateInvoiceRequest struct {
	StudentID      string                     `json:"student_id" validate:"required"`
	SubscriptionID *string                    `json:"subscription_id,omitempty"`
	Currency       string                     `json:"currency" validate:"required,len=3"`
	DueDate        *time.Time                 `json:"due_date,omitempty"`
	Items          []CreateInvoiceItemRequest `json:"items,omitempty"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	for i := range r.Items {
		if err := r.Items[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToInvoice builds the draft invoice. Totals are computed by the caller.
func (r *CreateInvoiceRequest) ToInvoice(ctx context.Context) (*invoice.Invoice, error) {
	inv := invoice.New(r.StudentID, r.Currency)
	inv.SubscriptionID = r.SubscriptionID
	inv.DueDate = r.DueDate
	inv.Version = 1
	inv.BaseModel = types.GetDefaultBaseModel(ctx)

	for i := range r.Items {
		if err := inv.AddItem(r.Items[i].ToItem()); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// AddInvoiceTaxRequest adds a tax either as a rate on the taxable amount
// or as a precomputed amount. Exactly one of Rate and Amount is set.
type AddInvoiceTaxRequest struct {
	Name   string           `json:"name" validate:"required"`
	Rate   *decimal.Decimal `json:"rate,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (r *AddInvoiceTaxRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}

	if (r.Rate == nil) == (r.Amount == nil) {
		return ierr.NewError("exactly one of rate and amount is required").
			WithHint("Provide either a tax rate or a tax amount").
			Mark(ierr.ErrValidation)
	}

	if (r.Rate != nil && r.Rate.IsNegative()) || (r.Amount != nil && r.Amount.IsNegative()) {
		return ierr.NewError("tax must not be negative").
			WithHint("Tax rate and amount must be zero or greater").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ApplyInvoiceDiscountRequest evaluates a code against the invoice subtotal
// and, when valid, adds it as a discount entry
type ApplyInvoiceDiscountRequest struct {
	Code string `json:"code" validate:"required"`
	// UserID defaults to the invoice student
	UserID string `json:"user_id,omitempty"`
	// TargetEntityID defaults to the invoice subscription
	TargetEntityID string `json:"target_entity_id,omitempty"`
}

func (r *ApplyInvoiceDiscountRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ApplyInvoiceDiscountResponse carries the evaluation and the invoice after
// it; a rejected code leaves the invoice unchanged
type ApplyInvoiceDiscountResponse struct {
	Evaluation discount.EvaluationResult `json:"evaluation"`
	Invoice    *InvoiceResponse          `json:"invoice"`
}

// InvoiceResponse carries the invoice with its aging derived at read time
type InvoiceResponse struct {
	*invoice.Invoice
	AmountDue   decimal.Decimal          `json:"amount_due"`
	IsOverdue   bool                     `json:"is_overdue"`
	DaysOverdue int                      `json:"days_overdue"`
	AgingBucket types.InvoiceAgingBucket `json:"aging_bucket"`
}

func NewInvoiceResponse(inv *invoice.Invoice, now time.Time) *InvoiceResponse {
	return &InvoiceResponse{
		Invoice:     inv,
		AmountDue:   inv.AmountDue(),
		IsOverdue:   inv.IsOverdue(now),
		DaysOverdue: inv.DaysOverdue(now),
		AgingBucket: inv.AgingBucket(now),
	}
}

// SendInvoiceRequest issues the invoice
type SendInvoiceRequest struct {
	DueDate *time.Time `json:"due_date,omitempty"`
}

// MarkInvoicePaidRequest settles the invoice outside the payment flow
type MarkInvoicePaidRequest struct {
	PaidAt *time.Time `json:"paid_at,omitempty"`
}
