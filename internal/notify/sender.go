package notify

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/metrics"
	"github.com/sells-group/countrysync/internal/resilience"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NopSender accepts every message without sending it. It is used when no
// SMTP host is configured.
type NopSender struct{}

// Send logs the message and reports success.
func (NopSender) Send(_ context.Context, msg Message) error {
	zap.L().Warn("notify: smtp host not configured, skipping send",
		zap.String("subject", msg.Subject),
		zap.Strings("to", msg.To),
	)
	return nil
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// Timeout bounds dial plus the whole SMTP session. Default: 15s.
	Timeout time.Duration
}

// SMTPSender sends mail through one relay, upgrading with STARTTLS when the
// server offers it and authenticating with PLAIN when a user is set.
type SMTPSender struct {
	cfg       SMTPConfig
	tlsConfig *tls.Config
	now       func() time.Time
}

// NewSMTPSender returns a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPSender{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		now:       time.Now,
	}
}

// NewSender returns an SMTPSender, or NopSender when cfg.Host is empty.
func NewSender(cfg SMTPConfig) Sender {
	if cfg.Host == "" {
		return NopSender{}
	}
	return NewSMTPSender(cfg)
}

// Send delivers msg to every recipient in one session.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return eris.New("smtp: no recipients")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return eris.Wrapf(err, "smtp: dial %s", addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return eris.Wrap(err, "smtp: greeting")
	}
	defer c.Close() //nolint:errcheck

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tlsConfig); err != nil {
			return eris.Wrap(err, "smtp: starttls")
		}
	}
	if s.cfg.User != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return eris.New("smtp: server does not offer AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
			return eris.Wrap(err, "smtp: auth")
		}
	}

	if err := c.Mail(msg.From); err != nil {
		return eris.Wrap(err, "smtp: mail from")
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return eris.Wrapf(err, "smtp: rcpt %s", rcpt)
		}
	}
	w, err := c.Data()
	if err != nil {
		return eris.Wrap(err, "smtp: data")
	}
	if _, err := w.Write(msg.Bytes(s.now())); err != nil {
		return eris.Wrap(err, "smtp: write body")
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "smtp: end data")
	}
	return eris.Wrap(c.Quit(), "smtp: quit")
}

// ResilientSender retries transient failures of next and stops calling it
// while the relay keeps failing.
type ResilientSender struct {
	next    Sender
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewResilientSender wraps next. The breaker state is exported through m.
func NewResilientSender(next Sender, retry resilience.RetryConfig, cb resilience.CircuitBreakerConfig, m *metrics.Metrics) *ResilientSender {
	userHook := cb.OnStateChange
	cb.OnStateChange = func(from, to resilience.CircuitState) {
		m.SetNotifierCircuit(int(to))
		zap.L().Warn("notify: smtp circuit state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if userHook != nil {
			userHook(from, to)
		}
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("smtp", "send")
	}
	return &ResilientSender{
		next:    next,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(cb),
	}
}

// Send runs one breaker-guarded delivery with retries.
func (r *ResilientSender) Send(ctx context.Context, msg Message) error {
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, r.retry, func(ctx context.Context) error {
			return r.next.Send(ctx, msg)
		})
	})
}
