// Package reconcile fetches the external country dataset and merges it into
// the record store under the provenance rules: new codes are inserted as
// external records, external records take every present incoming field, and
// manual records are never modified.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/fetcher"
	"github.com/sells-group/countrysync/internal/metrics"
	"github.com/sells-group/countrysync/internal/model"
	"github.com/sells-group/countrysync/internal/store"
)

// FetchError reports that the external source could not be read: transport
// failure, non-2xx status or a payload that is not a JSON array.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return "fetch " + e.URL + ": " + e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// Config configures the engine.
type Config struct {
	SourceURL string
	// Timeout bounds the whole fetch. Default: 30s.
	Timeout time.Duration
}

// Result describes one Run.
type Result struct {
	SyncID    int64  `json:"sync_id"`
	Processed int64  `json:"processed"`
	Skipped   int    `json:"skipped"`
	Outcome   string `json:"outcome"`
}

// Engine runs reconciliation passes. It holds no state between runs, so
// overlapping runs are safe as long as the store's upsert is.
type Engine struct {
	store   store.Store
	fetcher fetcher.Fetcher
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEngine creates an engine. m may be nil.
func NewEngine(s store.Store, f fetcher.Fetcher, cfg Config, m *metrics.Metrics) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Engine{store: s, fetcher: f, cfg: cfg, metrics: m, now: time.Now}
}

// Run performs one full pass: fetch, reconcile and record the outcome in
// the sync log. A FetchError is absorbed and reported as zero processed
// records; persistence errors are returned.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	log := zap.L().With(zap.String("component", "reconcile"), zap.String("source", e.cfg.SourceURL))
	start := e.now()

	syncID, err := e.store.StartSync(ctx, e.cfg.SourceURL)
	if err != nil {
		return Result{}, eris.Wrap(err, "reconcile: start sync log")
	}
	res := Result{SyncID: syncID}

	raws, err := e.Fetch(ctx)
	if err != nil {
		log.Warn("reconcile: fetch failed, store left unchanged", zap.Int64("sync_id", syncID), zap.Error(err))
		e.fail(ctx, syncID, err)
		e.metrics.ObserveSync(metrics.SyncFetchFailed, 0, e.now().Sub(start))
		res.Outcome = metrics.SyncFetchFailed
		return res, nil
	}

	processed, skipped, err := e.reconcile(ctx, raws)
	res.Skipped = skipped
	if err != nil {
		log.Error("reconcile: batch rolled back", zap.Int64("sync_id", syncID), zap.Error(err))
		e.fail(ctx, syncID, err)
		e.metrics.ObserveSync(metrics.SyncFailed, 0, e.now().Sub(start))
		res.Outcome = metrics.SyncFailed
		return res, err
	}

	if err := e.store.CompleteSync(ctx, syncID, processed); err != nil {
		return res, eris.Wrap(err, "reconcile: complete sync log")
	}
	res.Processed = processed
	res.Outcome = metrics.SyncComplete
	e.metrics.ObserveSync(metrics.SyncComplete, processed, e.now().Sub(start))

	log.Info("reconcile: run complete",
		zap.Int64("sync_id", syncID),
		zap.Int64("processed", processed),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return res, nil
}

// Fetch downloads the source and splits it into raw array elements. Every
// failure is a *FetchError.
func (e *Engine) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := e.fetcher.Download(ctx, e.cfg.SourceURL)
	if err != nil {
		return nil, &FetchError{URL: e.cfg.SourceURL, Err: err}
	}
	defer body.Close() //nolint:errcheck

	raws, err := fetcher.ReadArray(ctx, body, fetcher.DefaultMaxArrayItems)
	if err != nil {
		return nil, &FetchError{URL: e.cfg.SourceURL, Err: err}
	}
	return raws, nil
}

// Reconcile merges an already fetched batch and returns the number of
// records with a usable code, manual ones included. All writes commit
// together or not at all.
func (e *Engine) Reconcile(ctx context.Context, raws []json.RawMessage) (int64, error) {
	processed, _, err := e.reconcile(ctx, raws)
	return processed, err
}

func (e *Engine) reconcile(ctx context.Context, raws []json.RawMessage) (int64, int, error) {
	records, skipped := Parse(raws)
	if len(records) == 0 {
		return 0, skipped, nil
	}
	if _, err := e.store.UpsertExternal(ctx, records, e.now().UTC()); err != nil {
		return 0, skipped, eris.Wrap(err, "reconcile: upsert batch")
	}
	return int64(len(records)), skipped, nil
}

// Parse validates raw elements, dropping the ones without a usable code.
// Elements that are not JSON objects are dropped too.
func Parse(raws []json.RawMessage) ([]model.ExternalCountry, int) {
	records := make([]model.ExternalCountry, 0, len(raws))
	skipped := 0
	for i, raw := range raws {
		rec, err := model.ParseExternalCountry(raw)
		if err != nil {
			skipped++
			if !errors.Is(err, model.ErrMissingCode) {
				zap.L().Debug("reconcile: skipping malformed element", zap.Int("index", i), zap.Error(err))
			}
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func (e *Engine) fail(ctx context.Context, syncID int64, cause error) {
	if err := e.store.FailSync(context.WithoutCancel(ctx), syncID, cause); err != nil {
		zap.L().Error("reconcile: record sync failure", zap.Int64("sync_id", syncID), zap.Error(err))
	}
}
