// Package monitoring watches the sync log and posts webhook alerts when
// reconciliation keeps failing or the dataset goes stale.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/countrysync/internal/model"
)

// collectLimit bounds how many sync log rows one snapshot reads.
const collectLimit = 500

// Snapshot holds a point-in-time view of reconciliation health.
type Snapshot struct {
	// Runs started within the lookback window.
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
	Running  int `json:"running"`

	// ConsecutiveFailures counts failed runs since the newest success,
	// ignoring runs still in progress.
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SyncLister reads the sync log, newest first.
type SyncLister interface {
	ListSyncs(ctx context.Context, limit int) ([]model.SyncEntry, error)
}

// Collector builds snapshots from the sync log.
type Collector struct {
	syncs SyncLister
	now   func() time.Time
}

// NewCollector creates a collector over the given sync log.
func NewCollector(syncs SyncLister) *Collector {
	return &Collector{syncs: syncs, now: time.Now}
}

// Collect summarizes the sync log over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	entries, err := c.syncs.ListSyncs(ctx, collectLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list syncs")
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	streak := true
	for _, e := range entries {
		if !e.StartedAt.Before(cutoff) {
			snap.Total++
			switch e.Status {
			case model.SyncStatusComplete:
				snap.Complete++
			case model.SyncStatusFailed:
				snap.Failed++
			case model.SyncStatusRunning:
				snap.Running++
			}
		}

		switch e.Status {
		case model.SyncStatusFailed:
			if streak {
				snap.ConsecutiveFailures++
				if snap.LastError == "" {
					snap.LastError = e.Error
				}
			}
		case model.SyncStatusComplete:
			streak = false
			if snap.LastSuccessAt == nil {
				done := e.StartedAt
				if e.CompletedAt != nil {
					done = *e.CompletedAt
				}
				snap.LastSuccessAt = &done
			}
		}
	}
	return snap, nil
}
