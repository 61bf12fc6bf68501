package service

import (
	"time"

	"github.com/edulane/billing/internal/config"
	"github.com/edulane/billing/internal/domain/discount"
	"github.com/edulane/billing/internal/domain/invoice"
	"github.com/edulane/billing/internal/domain/payment"
	"github.com/edulane/billing/internal/domain/subscription"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/metrics"
	"github.com/edulane/billing/internal/postgres"
	"github.com/edulane/billing/internal/pubsub"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	DiscountRepo discount.Repository
	SubRepo      subscription.Repository
	InvoiceRepo  invoice.Repository
	PaymentRepo  payment.Repository

	// Publisher receives billing events, nil disables publishing
	Publisher pubsub.Publisher

	// Metrics may be nil
	Metrics *metrics.Metrics

	// Locks serializes usage commits per discount code within the process
	Locks *KeyedMutex

	// Clock returns the current time, defaults to time.Now in UTC
	Clock func() time.Time
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	discountRepo discount.Repository,
	subRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	paymentRepo payment.Repository,
	publisher pubsub.Publisher,
	metrics *metrics.Metrics,
) ServiceParams {
	return ServiceParams{
		Logger:       logger,
		Config:       config,
		DB:           db,
		DiscountRepo: discountRepo,
		SubRepo:      subRepo,
		InvoiceRepo:  invoiceRepo,
		PaymentRepo:  paymentRepo,
		Publisher:    publisher,
		Metrics:      metrics,
		Locks:        NewKeyedMutex(),
	}
}

func (p ServiceParams) now() time.Time {
	if p.Clock != nil {
		return p.Clock().UTC()
	}
	return time.Now().UTC()
}

var defaultLocks = NewKeyedMutex()

func (p ServiceParams) locks() *KeyedMutex {
	if p.Locks != nil {
		return p.Locks
	}
	return defaultLocks
}
