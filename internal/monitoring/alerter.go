package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSyncFailures AlertType = "sync_failures"
	AlertStaleData    AlertType = "stale_data"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	if a.cfg.FailureThreshold > 0 && snap.ConsecutiveFailures >= a.cfg.FailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSyncFailures,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d consecutive reconciliation runs failed (threshold %d)",
				snap.ConsecutiveFailures, a.cfg.FailureThreshold,
			),
			Details: map[string]any{
				"consecutive_failures": snap.ConsecutiveFailures,
				"threshold":            a.cfg.FailureThreshold,
				"last_error":           snap.LastError,
			},
			Timestamp: now,
		})
	}

	// A dataset that never synced is covered by the failure alert.
	if a.cfg.StaleAfterHours > 0 && snap.LastSuccessAt != nil {
		age := now.Sub(*snap.LastSuccessAt)
		if age > time.Duration(a.cfg.StaleAfterHours)*time.Hour {
			alerts = append(alerts, Alert{
				Type:     AlertStaleData,
				Severity: "medium",
				Message: fmt.Sprintf(
					"last successful sync was %s ago (threshold %dh)",
					age.Round(time.Minute), a.cfg.StaleAfterHours,
				),
				Details: map[string]any{
					"last_success_at": snap.LastSuccessAt.UTC().Format(time.RFC3339),
					"stale_after_h":   a.cfg.StaleAfterHours,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
