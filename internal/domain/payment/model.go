package payment

import (
	"time"

	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Payment is a received payment event. Its ID is assigned by the sender
// and doubles as the idempotency key.
type Payment struct {
	// ID is the sender assigned payment identifier
	ID string `json:"id" db:"id"`
	// InvoiceID is the invoice the payment settles
	InvoiceID string `json:"invoice_id" db:"invoice_id"`
	// SubscriptionID is credited with the payment when set
	SubscriptionID *string `json:"subscription_id,omitempty" db:"subscription_id"`
	// StudentID is the paying student, also the discount ledger user
	StudentID string `json:"student_id" db:"student_id"`
	// Amount is the paid amount in Currency
	Amount decimal.Decimal `json:"amount" db:"amount"`
	// Currency is a lower case ISO 4217 code
	Currency string `json:"currency" db:"currency"`
	// DiscountCode is redeemed against the invoice before settling (optional)
	DiscountCode *string `json:"discount_code,omitempty" db:"discount_code"`
	// PaymentStatus is the processing state of the event
	PaymentStatus types.PaymentStatus `json:"payment_status" db:"payment_status"`
	// ReceivedAt is when the payment was made
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
	// SucceededAt is set once the payment has been applied (optional)
	SucceededAt *time.Time `json:"succeeded_at,omitempty" db:"succeeded_at"`
	// FailedAt is set when the payment could not be applied (optional)
	FailedAt *time.Time `json:"failed_at,omitempty" db:"failed_at"`
	// ErrorMessage explains a failure (optional)
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	types.BaseModel
}

// Validate validates the payment
func (p *Payment) Validate() error {
	if p.ID == "" {
		return ierr.NewError("invalid payment id").
			WithHint("Payment id is required").
			Mark(ierr.ErrValidation)
	}
	if p.InvoiceID == "" {
		return ierr.NewError("invalid invoice id").
			WithHint("Invoice id is required").
			Mark(ierr.ErrValidation)
	}
	if p.StudentID == "" {
		return ierr.NewError("invalid student id").
			WithHint("Student id is required").
			Mark(ierr.ErrValidation)
	}
	if p.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	if p.Currency == "" {
		return ierr.NewError("invalid currency").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	return p.PaymentStatus.Validate()
}

// MarkSucceeded moves a pending payment to succeeded
func (p *Payment) MarkSucceeded(at time.Time) {
	p.PaymentStatus = types.PaymentStatusSucceeded
	p.SucceededAt = lo.ToPtr(at)
	p.ErrorMessage = nil
}

// MarkFailed moves a pending payment to failed
func (p *Payment) MarkFailed(at time.Time, err error) {
	p.PaymentStatus = types.PaymentStatusFailed
	p.FailedAt = lo.ToPtr(at)
	if err != nil {
		p.ErrorMessage = lo.ToPtr(err.Error())
	}
}
