package notify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/events"
	"github.com/sells-group/countrysync/internal/metrics"
	"github.com/sells-group/countrysync/internal/model"
)

// ConsumerConfig configures the notification consumer.
type ConsumerConfig struct {
	Brand      string
	From       string
	Recipients []string
	// ShutdownTimeout bounds how long a stop waits for the delivery in
	// progress before abandoning it. Default: 5s.
	ShutdownTimeout time.Duration
}

// Consumer turns change events into emails, one event at a time.
type Consumer struct {
	sub     events.Subscriber
	sender  Sender
	cfg     ConsumerConfig
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewConsumer creates a consumer. m may be nil.
func NewConsumer(sub events.Subscriber, sender Sender, cfg ConsumerConfig, m *metrics.Metrics) *Consumer {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Consumer{
		sub:     sub,
		sender:  sender,
		cfg:     cfg,
		metrics: m,
		log:     zap.L().With(zap.String("component", "notify")),
	}
}

// Run subscribes and handles events in arrival order until ctx is done.
// On stop it waits up to ShutdownTimeout for the current delivery, then
// releases the subscription. A subscription that ends while ctx is still
// live is reported as an error.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.sub.Subscribe(ctx)
	if err != nil {
		return eris.Wrap(err, "notify: subscribe")
	}
	defer sub.Close() //nolint:errcheck

	c.log.Info("notify: listening for events", zap.Strings("recipients", c.cfg.Recipients))

	// Deliveries outlive ctx so that a stop can let the current one finish.
	deliverCtx, abandon := context.WithCancel(context.WithoutCancel(ctx))
	defer abandon()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.Events() {
			if ctx.Err() != nil {
				return
			}
			c.Handle(deliverCtx, ev)
		}
	}()

	select {
	case <-done:
		if ctx.Err() == nil {
			return eris.New("notify: subscription closed")
		}
		return nil
	case <-ctx.Done():
	}

	_ = sub.Close()
	timer := time.NewTimer(c.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.log.Warn("notify: abandoning in-flight delivery on shutdown",
			zap.Duration("waited", c.cfg.ShutdownTimeout))
		abandon()
	}
	c.log.Info("notify: stopped")
	return nil
}

// Handle delivers the notification for one event. Failures are logged and
// counted, never returned.
func (c *Consumer) Handle(ctx context.Context, ev model.ChangeEvent) {
	if ev.Kind != model.EventCountryAdded {
		c.log.Debug("notify: ignoring event", zap.String("event", string(ev.Kind)))
		c.metrics.IncNotification("skipped")
		return
	}
	if len(c.cfg.Recipients) == 0 {
		c.log.Warn("notify: no recipients configured", zap.String("id", ev.RecordID))
		c.metrics.IncNotification("skipped")
		return
	}

	msg := FormatCountryAdded(c.cfg.Brand, ev)
	msg.From = c.cfg.From
	msg.To = c.cfg.Recipients

	if err := c.sender.Send(ctx, msg); err != nil {
		c.log.Error("notify: delivery failed",
			zap.String("id", ev.RecordID),
			zap.String("name", ev.RecordName),
			zap.Error(err),
		)
		c.metrics.IncNotification("failed")
		return
	}
	c.log.Info("notify: notification sent",
		zap.String("id", ev.RecordID),
		zap.String("subject", msg.Subject),
	)
	c.metrics.IncNotification("sent")
}
