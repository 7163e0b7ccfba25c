package main

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/config"
	"github.com/sells-group/countrysync/internal/country"
	"github.com/sells-group/countrysync/internal/events"
	"github.com/sells-group/countrysync/internal/fetcher"
	"github.com/sells-group/countrysync/internal/metrics"
	"github.com/sells-group/countrysync/internal/notify"
	"github.com/sells-group/countrysync/internal/reconcile"
	"github.com/sells-group/countrysync/internal/resilience"
	"github.com/sells-group/countrysync/internal/store"
)

// openStore connects to the configured backend and applies migrations.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// openBus returns the Redis bus when redis.url is set and an in-process
// bus otherwise. The in-process bus only reaches consumers in the same
// process.
func openBus(ctx context.Context, c *config.Config) (events.Bus, error) {
	if c.Redis.URL == "" {
		zap.L().Info("redis.url not set, using in-process event bus")
		return events.NewMemoryBus(), nil
	}
	return events.DialRedisBus(ctx, events.RedisConfig{
		URL:         c.Redis.URL,
		Channel:     c.Redis.Channel,
		PoolSize:    c.Redis.PoolSize,
		DialTimeout: c.Redis.DialTimeout(),
	})
}

var (
	metricsOnce sync.Once
	appMetrics  *metrics.Metrics
)

// newMetrics registers the collectors once per process with the default
// registry, which also carries the Go and process collectors.
func newMetrics() (*metrics.Metrics, prometheus.Gatherer) {
	metricsOnce.Do(func() { appMetrics = metrics.New(prometheus.DefaultRegisterer) })
	return appMetrics, prometheus.DefaultGatherer
}

func newEngine(c *config.Config, st store.Store, m *metrics.Metrics) *reconcile.Engine {
	f := fetcher.New(fetcher.Options{
		HTTP: fetcher.HTTPOptions{
			UserAgent:  c.Source.UserAgent,
			Timeout:    c.Source.Timeout(),
			MaxRetries: c.Source.MaxRetries,
			RatePerSec: c.Source.RatePerSec,
		},
		FTP: fetcher.FTPOptions{Timeout: c.Source.Timeout()},
	})
	return reconcile.NewEngine(st, f, reconcile.Config{
		SourceURL: c.Source.URL,
		Timeout:   c.Source.Timeout(),
	}, m)
}

func newService(st store.Store, pub events.Publisher, m *metrics.Metrics) *country.Service {
	return country.NewService(st, pub, m)
}

func newConsumer(c *config.Config, sub events.Subscriber, m *metrics.Metrics) *notify.Consumer {
	sender := notify.NewSender(notify.SMTPConfig{
		Host:     c.Email.SMTPHost,
		Port:     c.Email.SMTPPort,
		User:     c.Email.SMTPUser,
		Password: c.Email.SMTPPass,
		Timeout:  c.Email.Timeout(),
	})
	if _, nop := sender.(notify.NopSender); !nop {
		sender = notify.NewResilientSender(sender, resilience.DefaultRetryConfig(), resilience.CircuitBreakerConfig{}, m)
	}
	return notify.NewConsumer(sub, sender, notify.ConsumerConfig{
		Brand:           c.Email.Brand,
		From:            c.Email.From,
		Recipients:      c.Email.Recipients,
		ShutdownTimeout: c.Notify.ShutdownTimeout(),
	}, m)
}
