package service

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/edulane/billing/internal/api/dto"
	"github.com/edulane/billing/internal/domain/invoice"
	"github.com/edulane/billing/internal/domain/payment"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/metrics"
	"github.com/edulane/billing/internal/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

// BillingService applies payment events to invoices, discount ledgers and
// subscriptions
type BillingService interface {
	// ProcessPayment applies one payment event. The invoice, the discount
	// ledgers and the subscription are written in a single transaction.
	// Replaying a payment id that was already processed is a no-op.
	ProcessPayment(ctx context.Context, req dto.ProcessPaymentRequest) (*dto.ProcessPaymentResponse, error)
	GetPayment(ctx context.Context, id string) (*payment.Payment, error)
}

type billingService struct {
	ServiceParams
	invoices      *invoiceService
	discounts     *discountService
	subscriptions *subscriptionService
}

// NewBillingService creates a new billing service
func NewBillingService(params ServiceParams) BillingService {
	return &billingService{
		ServiceParams: params,
		invoices:      newInvoiceService(params),
		discounts:     &discountService{ServiceParams: params},
		subscriptions: &subscriptionService{ServiceParams: params},
	}
}

func (s *billingService) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	if id == "" {
		return nil, ierr.NewError("payment_id is required").
			WithHint("Payment ID is required").
			Mark(ierr.ErrValidation)
	}
	return s.PaymentRepo.Get(ctx, id)
}

func (s *billingService) ProcessPayment(ctx context.Context, req dto.ProcessPaymentRequest) (*dto.ProcessPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	if resp, ok, err := s.duplicate(ctx, req.PaymentID); err != nil || ok {
		if ok {
			s.Metrics.PaymentProcessed(metrics.PaymentDuplicate, time.Since(start))
		}
		return resp, err
	}

	now := s.now()
	p := req.ToPayment(ctx, lo.FromPtrOr(req.ReceivedAt, now))

	var resp *dto.ProcessPaymentResponse
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.apply(ctx, p, now)
		return err
	})

	if err != nil {
		// a concurrent delivery of the same payment won
		if ierr.IsAlreadyExists(err) {
			if resp, ok, dupErr := s.duplicate(ctx, p.ID); dupErr == nil && ok {
				s.Metrics.PaymentProcessed(metrics.PaymentDuplicate, time.Since(start))
				return resp, nil
			}
		}

		if ierr.IsRetryable(err) || ierr.IsDatabase(err) {
			s.Logger.Warnw("payment processing failed, will be retried",
				"payment_id", p.ID,
				"invoice_id", p.InvoiceID,
				"error", err,
			)
			s.Metrics.PaymentProcessed(metrics.PaymentRetry, time.Since(start))
			return nil, err
		}

		s.recordFailure(ctx, p, err, now)
		s.Metrics.PaymentProcessed(metrics.PaymentFailed, time.Since(start))
		return nil, err
	}

	s.Logger.Infow("processed payment",
		"payment_id", p.ID,
		"invoice_id", p.InvoiceID,
		"amount", p.Amount,
		"invoice_status", resp.Invoice.InvoiceStatus,
		"amount_due", resp.Invoice.AmountDue,
	)

	s.Metrics.PaymentProcessed(metrics.PaymentSucceeded, time.Since(start))

	s.publish(ctx, types.BillingEventPaymentSucceeded, resp, now)
	if resp.DiscountRedemption != nil && resp.DiscountRedemption.Committed {
		s.publish(ctx, types.BillingEventDiscountRedeemed, resp, now)
	}
	if resp.Invoice.InvoiceStatus == types.InvoiceStatusPaid {
		s.publish(ctx, types.BillingEventInvoicePaid, resp, now)
	}
	return resp, nil
}

// duplicate reports whether the payment id has already reached a terminal
// state, and if so rebuilds the response from what is stored
func (s *billingService) duplicate(ctx context.Context, paymentID string) (*dto.ProcessPaymentResponse, bool, error) {
	existing, err := s.PaymentRepo.Get(ctx, paymentID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if !existing.PaymentStatus.IsTerminal() {
		return nil, false, nil
	}

	s.Logger.Infow("payment already processed",
		"payment_id", existing.ID,
		"status", existing.PaymentStatus,
	)

	resp := &dto.ProcessPaymentResponse{
		Payment:   existing,
		Duplicate: true,
	}

	inv, err := s.InvoiceRepo.Get(ctx, existing.InvoiceID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, false, err
	}
	if inv != nil {
		resp.Invoice = dto.NewInvoiceResponse(inv, s.now())
	}
	return resp, true, nil
}

// apply runs inside the payment transaction. Any error rolls back every
// write it made.
func (s *billingService) apply(ctx context.Context, p *payment.Payment, now time.Time) (*dto.ProcessPaymentResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, p.InvoiceID)
	if err != nil {
		return nil, err
	}

	if inv.StudentID != p.StudentID {
		return nil, ierr.NewError("payment student does not match invoice").
			WithHint("The payment does not belong to this invoice's student").
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
				"invoice_id": inv.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	if inv.Currency != p.Currency {
		return nil, ierr.NewError("payment currency does not match invoice").
			WithHintf("Payment must be made in %s", inv.Currency).
			WithReportableDetails(map[string]any{
				"payment_currency": p.Currency,
				"invoice_currency": inv.Currency,
			}).
			Mark(ierr.ErrValidation)
	}

	if p.SubscriptionID == nil {
		p.SubscriptionID = inv.SubscriptionID
	}

	resp := &dto.ProcessPaymentResponse{}

	if inv.InvoiceStatus.IsEditable() {
		if p.DiscountCode != nil && inv.DiscountEntryByCode(*p.DiscountCode) == nil {
			if err := s.attachDiscount(ctx, inv, p); err != nil {
				return nil, err
			}
		}

		redemption, err := s.invoices.redeemDiscounts(ctx, inv, p.StudentID, p.DiscountCode, now)
		if err != nil {
			return nil, err
		}
		resp.DiscountRedemption = redemption

		if err := inv.RecomputeWithTaxRates(); err != nil {
			return nil, err
		}
	}

	if _, err := inv.ApplyPayment(p.Amount, p.ReceivedAt); err != nil {
		return nil, err
	}

	if err := s.invoices.save(ctx, inv); err != nil {
		return nil, err
	}
	resp.Invoice = dto.NewInvoiceResponse(inv, now)

	if p.SubscriptionID != nil && p.Amount.IsPositive() {
		sub, err := s.SubRepo.Get(ctx, *p.SubscriptionID)
		if err != nil {
			return nil, err
		}

		next, err := s.subscriptions.recordPayment(ctx, sub, dto.RecordSubscriptionPaymentRequest{Amount: p.Amount})
		if err != nil {
			return nil, err
		}
		resp.Subscription = dto.NewSubscriptionResponse(next)
		resp.SubscriptionStatus = next.SubscriptionStatus
	}

	p.MarkSucceeded(now)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.PaymentRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	resp.Payment = p
	return resp, nil
}

// attachDiscount adds the code carried by the payment to the invoice. A
// code that is unknown or rejected does not fail the payment.
func (s *billingService) attachDiscount(ctx context.Context, inv *invoice.Invoice, p *payment.Payment) error {
	result, err := s.invoices.applyDiscount(ctx, inv, dto.ApplyInvoiceDiscountRequest{
		Code:   *p.DiscountCode,
		UserID: p.StudentID,
	})
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("payment carries unknown discount code",
				"payment_id", p.ID,
				"discount_code", *p.DiscountCode,
			)
			return nil
		}
		return err
	}

	if !result.Valid {
		s.Logger.Infow("payment discount not applied",
			"payment_id", p.ID,
			"discount_code", *p.DiscountCode,
			"reason", result.Reason,
		)
	}
	return nil
}

// recordFailure stores a payment that can never succeed so that a
// redelivery is answered as a duplicate
func (s *billingService) recordFailure(ctx context.Context, p *payment.Payment, cause error, now time.Time) {
	p.MarkFailed(now, cause)

	s.Logger.Errorw("payment failed",
		"payment_id", p.ID,
		"invoice_id", p.InvoiceID,
		"error", cause,
	)

	if err := s.PaymentRepo.Create(ctx, p); err != nil {
		s.Logger.Errorw("failed to record failed payment",
			"payment_id", p.ID,
			"error", err,
		)
		return
	}

	s.publish(ctx, types.BillingEventPaymentFailed, &dto.ProcessPaymentResponse{Payment: p}, now)
}

func (s *billingService) publish(ctx context.Context, eventType types.BillingEventType, resp *dto.ProcessPaymentResponse, now time.Time) {
	if s.Publisher == nil {
		return
	}

	event := dto.NewBillingEvent(ctx, eventType, resp, now)
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	if err != nil {
		s.Logger.Errorw("failed to marshal billing event",
			"event_type", eventType,
			"payment_id", event.PaymentID,
			"error", err,
		)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("tenant_id", event.TenantID)
	msg.Metadata.Set("event_type", eventType.String())
	msg.Metadata.Set("payment_id", event.PaymentID)

	topic := "billing_events"
	if s.Config != nil {
		topic = s.Config.Billing.EventsTopic
	}

	err = s.Publisher.Publish(ctx, topic, msg)
	s.Metrics.EventPublished(eventType.String(), err)
	if err != nil {
		s.Logger.Errorw("failed to publish billing event",
			"event_id", event.ID,
			"event_type", eventType,
			"payment_id", event.PaymentID,
			"error", err,
		)
	}
}
