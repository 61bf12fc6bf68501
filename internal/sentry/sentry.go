package sentry

import (
	"context"
	"time"

	"github.com/edulane/billing/internal/config"
	"github.com/edulane/billing/internal/logger"
	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"
)

const flushTimeout = 2 * time.Second

// Service reports errors to Sentry. Every method is a no-op when Sentry is
// disabled in the configuration or the service is nil.
type Service struct {
	cfg    config.SentryConfig
	logger *logger.Logger
}

// Module provides fx options for Sentry
func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewSentryService),
		fx.Invoke(RegisterHooks),
	)
}

// RegisterHooks initializes the Sentry client on start and flushes queued
// events on stop
func RegisterHooks(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Init()
		},
		OnStop: func(ctx context.Context) error {
			svc.Flush()
			return nil
		},
	})
}

// NewSentryService creates a new Sentry service
func NewSentryService(cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		cfg:    cfg.Sentry,
		logger: logger,
	}
}

func (s *Service) enabled() bool {
	return s != nil && s.cfg.Enabled
}

// Init configures the global Sentry client
func (s *Service) Init() error {
	if !s.enabled() {
		if s != nil {
			s.logger.Info("Sentry is disabled")
		}
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              s.cfg.DSN,
		Environment:      s.cfg.Environment,
		EnableTracing:    s.cfg.SampleRate > 0,
		TracesSampleRate: s.cfg.SampleRate,
	})
	if err != nil {
		s.logger.Errorw("failed to initialize Sentry", "error", err)
		return err
	}

	s.logger.Infow("Sentry initialized",
		"environment", s.cfg.Environment,
		"sample_rate", s.cfg.SampleRate,
	)
	return nil
}

// CaptureException captures an error in Sentry
func (s *Service) CaptureException(err error) {
	s.CaptureExceptionWithTags(err, nil)
}

// CaptureExceptionWithTags captures err with tags set on its own scope
func (s *Service) CaptureExceptionWithTags(err error, tags map[string]string) {
	if !s.enabled() || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// AddBreadcrumb adds a breadcrumb to the current scope
func (s *Service) AddBreadcrumb(category, message string, data map[string]interface{}) {
	if !s.enabled() {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
		Data:     data,
	})
}

// Flush waits for queued events to be sent
func (s *Service) Flush() bool {
	if !s.enabled() {
		return true
	}
	s.logger.Info("flushing Sentry events")
	return sentry.Flush(flushTimeout)
}
