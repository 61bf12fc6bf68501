package consumer

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/edulane/billing/internal/api/dto"
	"github.com/edulane/billing/internal/cache"
	"github.com/edulane/billing/internal/config"
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/pubsub"
	"github.com/edulane/billing/internal/pubsub/router"
	"github.com/edulane/billing/internal/sentry"
	"github.com/edulane/billing/internal/service"
	"github.com/edulane/billing/internal/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

const (
	MetadataTenantID = "tenant_id"
	MetadataUserID   = "user_id"

	paymentHandlerName = "payment_consumer"
)

// PaymentConsumer feeds payment events from the payment topic into the
// billing service
type PaymentConsumer struct {
	billing service.BillingService
	config  *config.Configuration
	logger  *logger.Logger
	sentry  *sentry.Service
}

func NewPaymentConsumer(billing service.BillingService, cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) *PaymentConsumer {
	return &PaymentConsumer{
		billing: billing,
		config:  cfg,
		logger:  logger,
		sentry:  sentry,
	}
}

// Register subscribes the consumer to the payment topic
func (c *PaymentConsumer) Register(r *router.Router, subscriber pubsub.Subscriber) {
	r.AddNoPublishHandler(
		paymentHandlerName,
		c.config.Billing.PaymentTopic,
		subscriber,
		c.Handle,
	)
}

// Handle processes one payment message. Only errors worth redelivering are
// returned: lost concurrency races and database failures. Anything else is
// logged and the message is acked, the failure having been recorded on the
// payment when it got that far.
func (c *PaymentConsumer) Handle(msg *message.Message) error {
	tenantID := metadataOr(msg, MetadataTenantID, types.DefaultTenantID)
	userID := metadataOr(msg, MetadataUserID, types.DefaultUserID)

	ctx := msg.Context()
	ctx = types.SetTenantID(ctx, tenantID)
	ctx = types.SetUserID(ctx, userID)
	ctx = types.SetRequestID(ctx, msg.UUID)
	ctx = cache.WithRequestCache(ctx)

	var req dto.ProcessPaymentRequest
	if err := jsoniter.Unmarshal(msg.Payload, &req); err != nil {
		c.logger.Errorw("dropping undecodable payment event",
			"message_uuid", msg.UUID,
			"tenant_id", tenantID,
			"error", err,
		)
		c.sentry.CaptureExceptionWithTags(err, map[string]string{
			"message_uuid": msg.UUID,
			"tenant_id":    tenantID,
		})
		return nil
	}

	resp, err := c.billing.ProcessPayment(ctx, req)
	if err != nil {
		if ierr.IsRetryable(err) || ierr.IsDatabase(err) {
			return err
		}
		c.logger.Errorw("payment event rejected",
			"message_uuid", msg.UUID,
			"tenant_id", tenantID,
			"payment_id", req.PaymentID,
			"invoice_id", req.InvoiceID,
			"error", err,
		)
		c.sentry.CaptureExceptionWithTags(err, map[string]string{
			"message_uuid": msg.UUID,
			"tenant_id":    tenantID,
			"payment_id":   req.PaymentID,
			"invoice_id":   req.InvoiceID,
		})
		return nil
	}

	c.logger.Infow("payment event processed",
		"message_uuid", msg.UUID,
		"tenant_id", tenantID,
		"payment_id", req.PaymentID,
		"payment_status", resp.Payment.PaymentStatus,
		"duplicate", resp.Duplicate,
		"subscription_status", resp.SubscriptionStatus,
	)
	return nil
}

func metadataOr(msg *message.Message, key, fallback string) string {
	value := msg.Metadata.Get(key)
	return lo.Ternary(value != "", value, fallback)
}
