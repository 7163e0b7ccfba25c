// Package store persists country records and the sync log. Postgres is the
// production backend; SQLite serves local runs and tests.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/countrysync/internal/model"
)

// ErrDuplicateCode is returned by CreateManual when a record with the same
// alpha2Code already exists.
var ErrDuplicateCode = eris.New("store: country code already exists")

// MaxListLimit caps a single List page.
const MaxListLimit = 250

// Store defines the persistence interface for country records.
//
// Lookups return (nil, nil) when nothing matches.
type Store interface {
	// Countries
	GetByCode(ctx context.Context, code string) (*model.Country, error)
	GetByName(ctx context.Context, name string) (*model.Country, error)
	List(ctx context.Context, limit, offset int) ([]model.Country, error)
	ListWithCoordinates(ctx context.Context) ([]model.Country, error)
	Count(ctx context.Context) (int64, error)
	CreateManual(ctx context.Context, c model.Country) (*model.Country, error)

	// UpsertExternal applies one reconciliation batch atomically: new codes
	// are inserted as external records, existing external records take every
	// present field, and manual records are left untouched. Records sharing
	// a code are merged in slice order first.
	UpsertExternal(ctx context.Context, records []model.ExternalCountry, syncedAt time.Time) (int64, error)

	// Sync log
	StartSync(ctx context.Context, source string) (int64, error)
	CompleteSync(ctx context.Context, id int64, processed int64) error
	FailSync(ctx context.Context, id int64, syncErr error) error
	ListSyncs(ctx context.Context, limit int) ([]model.SyncEntry, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// countryColumns is the column order shared by every SELECT and scanCountry.
const countryColumns = `id, alpha2_code, name, alpha3_code, capital, region, subregion,
	population, area_km2, latitude, longitude, timezones, currencies, languages,
	flag_url, source, created_at, updated_at, synced_at`

// clampPage normalizes List arguments. Callers validate negatives before
// they reach the store; here they collapse to the defaults.
func clampPage(limit, offset int) (int, int) {
	if limit < 0 {
		limit = 0
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// nameKeyPtr derives the lookup key stored next to a name.
func nameKeyPtr(name *string) *string {
	if name == nil {
		return nil
	}
	return model.StrPtr(model.NameKey(*name))
}

// jsonText renders an optional JSON document for a TEXT or JSONB column.
func jsonText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// timezonesText encodes a timezone list as a JSON array, nil when empty.
func timezonesText(tz []string) (any, error) {
	if len(tz) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tz)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode timezones")
	}
	return string(b), nil
}

func decodeTimezones(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tz []string
	if err := json.Unmarshal(raw, &tz); err != nil {
		return nil, eris.Wrap(err, "store: decode timezones")
	}
	return tz, nil
}

func rawOrNil(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCountry(row scannable) (*model.Country, error) {
	var (
		c                               model.Country
		source                          string
		timezones, currencies, language []byte
	)
	if err := row.Scan(
		&c.ID, &c.Alpha2Code, &c.Name, &c.Alpha3Code, &c.Capital, &c.Region, &c.Subregion,
		&c.Population, &c.AreaKm2, &c.Latitude, &c.Longitude, &timezones, &currencies, &language,
		&c.FlagURL, &source, &c.CreatedAt, &c.UpdatedAt, &c.SyncedAt,
	); err != nil {
		return nil, err
	}

	prov, err := model.ParseProvenance(source)
	if err != nil {
		return nil, err
	}
	c.Source = prov

	if c.Timezones, err = decodeTimezones(timezones); err != nil {
		return nil, err
	}
	c.Currencies = rawOrNil(currencies)
	c.Languages = rawOrNil(language)
	return &c, nil
}

func scanSyncEntry(row scannable) (model.SyncEntry, error) {
	var (
		e      model.SyncEntry
		status string
		errMsg *string
	)
	if err := row.Scan(&e.ID, &e.Source, &status, &e.StartedAt, &e.CompletedAt, &e.Processed, &errMsg); err != nil {
		return e, err
	}
	e.Status = model.SyncStatus(status)
	if errMsg != nil {
		e.Error = *errMsg
	}
	return e, nil
}

// externalRow lays out one external record in insertColumns order.
func externalRow(r model.ExternalCountry, id string, now time.Time) ([]any, error) {
	tz, err := timezonesText(r.Timezones)
	if err != nil {
		return nil, err
	}
	return []any{
		id, r.Alpha2Code, r.Name, nameKeyPtr(r.Name), r.Alpha3Code, r.Capital, r.Region, r.Subregion,
		r.Population, r.AreaKm2, r.Latitude, r.Longitude, tz, jsonText(r.Currencies), jsonText(r.Languages),
		r.FlagURL, string(model.ProvenanceExternal), now, now, now,
	}, nil
}

// manualRow lays out a manual record in insertColumns order.
func manualRow(c *model.Country) ([]any, error) {
	tz, err := timezonesText(c.Timezones)
	if err != nil {
		return nil, err
	}
	return []any{
		c.ID, c.Alpha2Code, c.Name, nameKeyPtr(c.Name), c.Alpha3Code, c.Capital, c.Region, c.Subregion,
		c.Population, c.AreaKm2, c.Latitude, c.Longitude, tz, jsonText(c.Currencies), jsonText(c.Languages),
		c.FlagURL, string(c.Source), c.CreatedAt, c.UpdatedAt, c.SyncedAt,
	}, nil
}

// insertColumns is the write-side column order, including name_key.
var insertColumns = []string{
	"id", "alpha2_code", "name", "name_key", "alpha3_code", "capital", "region", "subregion",
	"population", "area_km2", "latitude", "longitude", "timezones", "currencies", "languages",
	"flag_url", "source", "created_at", "updated_at", "synced_at",
}

// mergeColumns take the incoming value when present on an external update.
var mergeColumns = []string{
	"name", "name_key", "alpha3_code", "capital", "region", "subregion",
	"population", "area_km2", "latitude", "longitude", "timezones", "currencies", "languages",
	"flag_url",
}

// stampColumns are always refreshed on an external update.
var stampColumns = []string{"updated_at", "synced_at"}

// newManual fills in the fields the store owns for a manual insert.
func newManual(c model.Country, now time.Time) *model.Country {
	c.ID = uuid.New().String()
	c.Source = model.ProvenanceManual
	c.CreatedAt = now
	c.UpdatedAt = now
	c.SyncedAt = nil
	return &c
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
