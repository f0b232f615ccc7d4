// cmd/server/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/bookings"
	"github.com/codr1/courtbook/internal/api/courts"
	"github.com/codr1/courtbook/internal/api/dashboard"
	"github.com/codr1/courtbook/internal/availability"
	"github.com/codr1/courtbook/internal/catalog"
	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/email"
	"github.com/codr1/courtbook/internal/events"
	"github.com/codr1/courtbook/internal/ledger"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/payments"
	"github.com/codr1/courtbook/internal/ratelimit"
	"github.com/codr1/courtbook/internal/recurrence"
	"github.com/codr1/courtbook/internal/scheduler"
	"github.com/codr1/courtbook/internal/stats"
)

const redisPingTimeout = 5 * time.Second

// app owns the long-lived collaborators the HTTP handlers are bound to.
type app struct {
	db         *db.DB
	registry   *prometheus.Registry
	dispatcher *events.Dispatcher
	redis      *redis.Client
	limiter    *ratelimit.Limiter
	scheduler  bool
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{db: database}
	a.limiter = ratelimit.New(&ratelimit.Config{
		Window:     cfg.RateLimit.Window,
		MaxPerUser: cfg.RateLimit.MaxPerUser,
		MaxPerIP:   cfg.RateLimit.MaxPerIP,
	})

	var bookingMetrics *metrics.BookingMetrics
	if cfg.Features.EnableMetrics {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		bookingMetrics = metrics.NewBookingMetrics(a.registry)
	}

	cat := catalog.New(database, catalog.Defaults{
		SlotMinutes: cfg.Booking.SlotMinutes,
		Policy:      defaultPolicy(cfg.Booking.DefaultPolicy),
	})

	handlers, err := eventHandlers(ctx, cfg, cat)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = events.NewDispatcher(events.Options{Metrics: bookingMetrics}, handlers...)
	a.dispatcher.Start()

	bookingLedger := ledger.New(database, cat, ledger.Options{
		Emitter: a.dispatcher,
		Metrics: bookingMetrics,
	})
	expander := recurrence.NewExpander(bookingLedger, recurrence.Options{
		Workers:        cfg.Booking.RecurrenceWorkers,
		MaxOccurrences: cfg.Booking.MaxOccurrences,
		Metrics:        bookingMetrics,
	})

	cache, err := a.rollupCache(ctx, cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	aggregator := stats.NewAggregator(cat, database.Queries, cache)
	bookingLedger.OnCommit(aggregator.Invalidate)

	bookings.InitHandlers(bookingLedger, expander, cat)
	courts.InitHandlers(availability.NewIndex(cat, bookingLedger), cat)
	dashboard.InitHandlers(aggregator, cat)

	if cfg.Features.EnableScheduler {
		if err := a.startScheduler(cfg.Booking, bookingLedger, cat); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func defaultPolicy(p config.PolicyConfig) models.CancellationPolicy {
	return models.CancellationPolicy{
		MinNoticeHours:    p.MinNoticeHours,
		BlockInsideWindow: p.BlockInsideWindow,
		FeeCents:          p.FeeCents,
		FeePercent:        p.FeePercent,
	}
}

// eventHandlers builds the side-effect consumers. Email is only wired when a
// sender is configured; payments fall back to the log when no queue is set.
func eventHandlers(ctx context.Context, cfg *config.Config, cat *catalog.Catalog) ([]events.Handler, error) {
	var handlers []events.Handler

	if cfg.Notifications.Sender != "" {
		ses, err := email.NewSESClient(ctx, cfg.Notifications)
		if err != nil {
			return nil, fmt.Errorf("init ses client: %w", err)
		}
		handlers = append(handlers, email.NewNotifier(ses, cat, email.NotifierOptions{}))
	} else {
		log.Warn().Msg("No notification sender configured; booking emails disabled")
	}

	var publisher payments.Publisher = payments.LogPublisher{}
	if cfg.Payments.QueueURL != "" {
		client, err := payments.NewSQSClient(ctx, cfg.Payments.Region)
		if err != nil {
			return nil, fmt.Errorf("init sqs client: %w", err)
		}
		sqsPublisher, err := payments.NewSQSPublisher(client, cfg.Payments.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("init payments publisher: %w", err)
		}
		publisher = sqsPublisher
	}
	handlers = append(handlers, payments.NewHandler(publisher))
	return handlers, nil
}

func (a *app) rollupCache(ctx context.Context, cfg config.CacheConfig) (stats.RollupCache, error) {
	if cfg.RedisAddr == "" {
		return stats.NewMemoryCache(cfg.TTL), nil
	}
	a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.Password})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.TTL).Msg("Stats rollups cached in redis")
	return stats.NewRedisCache(a.redis, cfg.TTL), nil
}

func (a *app) startScheduler(cfg config.BookingConfig, l *ledger.Ledger, cat *catalog.Catalog) error {
	if err := scheduler.Init(); err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	svc, err := scheduler.ServiceInstance()
	if err != nil {
		return err
	}
	jobs, err := scheduler.NewJobs(l, cat, a.dispatcher, scheduler.JobsOptions{
		ReminderLead: time.Duration(cfg.ReminderHours) * time.Hour,
		ReminderCron: cfg.ReminderCron,
	})
	if err != nil {
		return err
	}
	if err := scheduler.RegisterBookingJobs(svc, jobs, cfg.LifecycleCron, cfg.ReminderCron); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}
	a.scheduler = true
	return nil
}

// Close stops background work before releasing the stores it writes to.
func (a *app) Close() {
	var errs []error
	if a.scheduler {
		errs = append(errs, scheduler.Stop())
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("Error releasing application resources")
	}
}
