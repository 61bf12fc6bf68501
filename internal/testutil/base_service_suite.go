package testutil

import (
	"context"
	"time"

	"github.com/edulane/billing/internal/cache"
	"github.com/edulane/billing/internal/config"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/pubsub"
	"github.com/edulane/billing/internal/pubsub/memory"
	"github.com/edulane/billing/internal/types"
	"github.com/edulane/billing/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds the in-memory repositories used by service tests
type Stores struct {
	DiscountRepo     *InMemoryDiscountStore
	SubscriptionRepo *InMemorySubscriptionStore
	InvoiceRepo      *InMemoryInvoiceStore
	PaymentRepo      *InMemoryPaymentStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	stores Stores
	pubsub pubsub.PubSub
	db     *MockPostgresClient
	logger *logger.Logger
	config *config.Configuration
	now    time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	s.logger = logger.NewNopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = SetupContext()
	s.ctx = cache.WithRequestCache(s.ctx)
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		DiscountRepo:     NewInMemoryDiscountStore(),
		SubscriptionRepo: NewInMemorySubscriptionStore(),
		InvoiceRepo:      NewInMemoryInvoiceStore(),
		PaymentRepo:      NewInMemoryPaymentStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.pubsub = memory.NewPubSub(s.logger)
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.DiscountRepo.Clear()
	s.stores.SubscriptionRepo.Clear()
	s.stores.InvoiceRepo.Clear()
	s.stores.PaymentRepo.Clear()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPubSub returns the in-memory pubsub billing events are published to
func (s *BaseServiceTestSuite) GetPubSub() pubsub.PubSub {
	return s.pubsub
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the fixed test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// SetNow moves the fixed test time
func (s *BaseServiceTestSuite) SetNow(now time.Time) {
	s.now = now.UTC()
}

// Clock returns a clock reading the suite's current test time
func (s *BaseServiceTestSuite) Clock() func() time.Time {
	return func() time.Time { return s.now }
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
