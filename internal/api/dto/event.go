package dto

import (
	"context"
	"time"

	"github.com/edulane/billing/internal/types"
	"github.com/shopspring/decimal"
)

// BillingEvent is published on the events topic once a payment has been
// committed or has failed permanently
type BillingEvent struct {
	ID             string                 `json:"id"`
	EventType      types.BillingEventType `json:"event_type"`
	TenantID       string                 `json:"tenant_id"`
	PaymentID      string                 `json:"payment_id"`
	InvoiceID      string                 `json:"invoice_id"`
	SubscriptionID *string                `json:"subscription_id,omitempty"`
	StudentID      string                 `json:"student_id"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	DiscountCode   *string                `json:"discount_code,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

func NewBillingEvent(ctx context.Context, eventType types.BillingEventType, resp *ProcessPaymentResponse, at time.Time) *BillingEvent {
	p := resp.Payment
	return &BillingEvent{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		EventType:      eventType,
		TenantID:       types.GetTenantID(ctx),
		PaymentID:      p.ID,
		InvoiceID:      p.InvoiceID,
		SubscriptionID: p.SubscriptionID,
		StudentID:      p.StudentID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		DiscountCode:   p.DiscountCode,
		Timestamp:      at,
	}
}
