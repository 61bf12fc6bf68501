package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/edulane/billing/internal/config"
	"github.com/edulane/billing/internal/consumer"
	"github.com/edulane/billing/internal/logger"
	"github.com/edulane/billing/internal/metrics"
	"github.com/edulane/billing/internal/postgres"
	"github.com/edulane/billing/internal/pubsub"
	"github.com/edulane/billing/internal/pubsub/kafka"
	"github.com/edulane/billing/internal/pubsub/memory"
	pubsubRouter "github.com/edulane/billing/internal/pubsub/router"
	"github.com/edulane/billing/internal/repository"
	"github.com/edulane/billing/internal/sentry"
	"github.com/edulane/billing/internal/service"
	"github.com/edulane/billing/internal/types"
	"github.com/edulane/billing/internal/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// Initialize Fx application
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Metrics
			provideRegistry,
			provideMetrics,

			// PubSub
			providePubSub,
			providePublisher,
			pubsubRouter.NewRouter,
		),

		// Sentry
		sentry.Module(),

		// Postgres
		postgres.Module(),

		// Repositories
		repository.Module(),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewDiscountService,
			service.NewSubscriptionService,
			service.NewInvoiceService,
			service.NewBillingService,

			consumer.NewPaymentConsumer,
		),
		fx.Invoke(
			startMetricsServer,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func startMetricsServer(lc fx.Lifecycle, cfg *config.Configuration, reg *prometheus.Registry, log *logger.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting metrics server", "address", srv.Addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("metrics server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	var (
		ps  pubsub.PubSub
		err error
	)

	switch cfg.PubSub.Driver {
	case types.PubSubDriverKafka:
		ps, err = kafka.NewPubSub(cfg, log)
		if err != nil {
			return nil, err
		}
	default:
		ps = memory.NewPubSub(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, nil
}

func providePublisher(ps pubsub.PubSub) pubsub.Publisher {
	return ps
}

func startServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Configuration,
	db *postgres.DB,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	paymentConsumer *consumer.PaymentConsumer,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		// local runs keep the schema current so a fresh database just works
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return db.Migrate(ctx, false, os.Stdout)
			},
		})
		startMessageRouter(lc, shutdowner, router, ps, paymentConsumer, log)
	case types.ModeConsumer:
		startMessageRouter(lc, shutdowner, router, ps, paymentConsumer, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startMessageRouter(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	router *pubsubRouter.Router,
	subscriber pubsub.Subscriber,
	paymentConsumer *consumer.PaymentConsumer,
	log *logger.Logger,
) {
	paymentConsumer.Register(router, subscriber)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting message router...")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					log.Errorw("message router stopped", "error", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down message router...")
			return router.Close()
		},
	})
}
