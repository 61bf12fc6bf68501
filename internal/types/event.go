package types

// BillingEventType names an event published after a payment was processed
type BillingEventType string

const (
	BillingEventPaymentSucceeded BillingEventType = "payment.succeeded"
	BillingEventPaymentFailed    BillingEventType = "payment.failed"
	BillingEventDiscountRedeemed BillingEventType = "discount.redeemed"
	BillingEventInvoicePaid      BillingEventType = "invoice.paid"
)

func (t BillingEventType) String() string {
	return string(t)
}
