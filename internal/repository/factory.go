package repository

import (
	"github.com/edulane/billing/internal/domain/discount"
	"github.com/edulane/billing/internal/domain/invoice"
	"github.com/edulane/billing/internal/domain/payment"
	"github.com/edulane/billing/internal/domain/subscription"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/postgres"
	postgresRepo "github.com/edulane/billing/internal/repository/postgres"
	"go.uber.org/fx"
)

func NewDiscountRepository(db *postgres.DB, logger *logger.Logger) discount.Repository {
	return postgresRepo.NewDiscountRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return postgresRepo.NewPaymentRepository(db, logger)
}

// Module provides every repository backed by postgres
func Module() fx.Option {
	return fx.Provide(
		NewDiscountRepository,
		NewSubscriptionRepository,
		NewInvoiceRepository,
		NewPaymentRepository,
	)
}
