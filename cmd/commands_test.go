package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/config"
	"github.com/sells-group/countrysync/internal/events"
	"github.com/sells-group/countrysync/internal/geospatial"
	"github.com/sells-group/countrysync/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func ptr[T any](v T) *T { return &v }

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:  config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cmd.db")},
		Source: config.SourceConfig{URL: "http://127.0.0.1:1/countries", TimeoutSecs: 1, MaxRetries: 1},
	}
}

func TestReadSeed(t *testing.T) {
	doc := `
- alpha2_code: nl
  name: Newland
  latitude: 52.1
  longitude: 5.3
  currencies:
    - code: EUR
- alpha2_code: MK
  name: Mockland
  population: 2000000
`
	inputs, err := readSeed(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "nl", inputs[0].Alpha2Code)
	assert.InDelta(t, 52.1, *inputs[0].Latitude, 1e-9)
	assert.NotNil(t, inputs[0].Currencies)
	assert.Equal(t, int64(2000000), *inputs[1].Population)

	empty, err := readSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = readSeed(strings.NewReader("alpha2_code: [broken"))
	assert.Error(t, err)
}

func TestSeedCountries(t *testing.T) {
	ctx := context.Background()
	c := sqliteConfig(t)
	st, err := openStore(ctx, c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	bus := events.NewMemoryBus()
	defer bus.Close() //nolint:errcheck
	svc := newService(st, bus, nil)

	added, skipped, err := seedCountries(ctx, svc, []model.CountryInput{
		{Alpha2Code: "NL", Name: "Newland"},
		{Alpha2Code: "nl", Name: "Newland Again"},
		{Alpha2Code: "MK", Name: "Mockland"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, skipped)

	_, _, err = seedCountries(ctx, svc, []model.CountryInput{{Name: "No Code"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestSyncFetchFailureExitsCleanly(t *testing.T) {
	ctx := context.Background()
	c := sqliteConfig(t)
	st, err := openStore(ctx, c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	res, err := newEngine(c, st, nil).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)

	entries, err := st.ListSyncs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var out bytes.Buffer
	formatSyncEntries(&out, entries)
	assert.Contains(t, out.String(), "failed")
}

func TestFormatSyncEntries(t *testing.T) {
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	done := started.Add(90 * time.Second)
	var out bytes.Buffer
	formatSyncEntries(&out, []model.SyncEntry{
		{ID: 2, Status: model.SyncStatusComplete, StartedAt: started, CompletedAt: &done, Processed: 250},
		{ID: 1, Status: model.SyncStatusFailed, StartedAt: started, Error: strings.Repeat("x", 100)},
	})
	s := out.String()
	assert.Contains(t, s, "2026-05-01 10:00")
	assert.Contains(t, s, "1m30s")
	assert.Contains(t, s, "250")
	assert.Contains(t, s, "...")
}

func TestFormatNearby(t *testing.T) {
	var out bytes.Buffer
	formatNearby(&out, []geospatial.Result{{
		Country:    model.Country{Alpha2Code: "MK", Name: ptr("Mockland"), Source: model.ProvenanceExternal},
		DistanceKm: 12.345,
	}})
	assert.Contains(t, out.String(), "MK")
	assert.Contains(t, out.String(), "Mockland")
	assert.Contains(t, out.String(), "12.3")
}

func TestOpenBus_InProcessWithoutRedis(t *testing.T) {
	bus, err := openBus(context.Background(), &config.Config{})
	require.NoError(t, err)
	defer bus.Close() //nolint:errcheck
	assert.IsType(t, &events.MemoryBus{}, bus)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "mysql"}})
	assert.Error(t, err)
}
