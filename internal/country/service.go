// Package country is the query and manual-add surface over the record
// store. The HTTP API and the CLI both go through Service.
package country

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/events"
	"github.com/sells-group/countrysync/internal/geospatial"
	"github.com/sells-group/countrysync/internal/metrics"
	"github.com/sells-group/countrysync/internal/model"
	"github.com/sells-group/countrysync/internal/store"
)

// ErrValidation is the sentinel behind every ValidationError.
var ErrValidation = errors.New("invalid input")

// ValidationError rejects caller input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Query defaults.
const (
	DefaultListLimit    = 10
	DefaultNearbyRadius = 500.0
	DefaultNearbyLimit  = 10
)

// publishTimeout bounds the best-effort event publish after a manual add.
const publishTimeout = 5 * time.Second

// Service implements the country queries and manual adds.
type Service struct {
	store   store.Store
	pub     events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a Service. pub and m may be nil.
func NewService(s store.Store, pub events.Publisher, m *metrics.Metrics) *Service {
	return &Service{store: s, pub: pub, metrics: m, now: time.Now}
}

// FindByCode looks a record up by its two-letter code, in any case.
// It returns nil when nothing matches.
func (s *Service) FindByCode(ctx context.Context, code string) (*model.Country, error) {
	code = model.NormalizeCode(code)
	if !model.IsAlphaCode(code, 2) {
		return nil, nil
	}
	c, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, eris.Wrapf(err, "country: find by code %s", code)
	}
	return c, nil
}

// FindByName matches the display name case-insensitively.
func (s *Service) FindByName(ctx context.Context, name string) (*model.Country, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	c, err := s.store.GetByName(ctx, name)
	if err != nil {
		return nil, eris.Wrap(err, "country: find by name")
	}
	return c, nil
}

// List returns one page ordered by name. Limits above store.MaxListLimit
// are capped.
func (s *Service) List(ctx context.Context, limit, offset int) ([]model.Country, error) {
	if limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	if offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}
	limit = min(limit, store.MaxListLimit)
	out, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "country: list")
	}
	return out, nil
}

// Nearby returns records within radiusKm of (lat, lon), nearest first.
func (s *Service) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]geospatial.Result, error) {
	origin := geospatial.Point{Lat: lat, Lon: lon}
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return nil, invalid("coordinates", "must be numbers")
	}
	if err := origin.Validate(); err != nil {
		return nil, invalid("coordinates", err.Error())
	}
	if math.IsNaN(radiusKm) || radiusKm < 0 {
		return nil, invalid("radius_km", "must not be negative")
	}
	if limit <= 0 {
		return []geospatial.Result{}, nil
	}

	records, err := s.store.ListWithCoordinates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "country: load located records")
	}
	return geospatial.Nearby(records, origin, radiusKm, limit), nil
}

// AddManual validates in, stores it with manual provenance and publishes a
// country_added event. A failed publish is logged and does not fail the add.
func (s *Service) AddManual(ctx context.Context, in model.CountryInput) (*model.Country, error) {
	c, err := Validate(in)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreateManual(ctx, c)
	if err != nil {
		return nil, eris.Wrapf(err, "country: add %s", c.Alpha2Code)
	}
	s.metrics.IncManualAdd()
	zap.L().Info("country: manual record added",
		zap.String("id", created.ID),
		zap.String("alpha2_code", created.Alpha2Code),
	)

	s.publish(ctx, created)
	return created, nil
}

func (s *Service) publish(ctx context.Context, c *model.Country) {
	if s.pub == nil {
		return
	}
	log := zap.L().With(zap.String("component", "country"), zap.String("id", c.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("country: publish panicked", zap.Any("panic", r))
			s.metrics.IncPublished(false)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.pub.Publish(ctx, model.NewCountryAdded(c, s.now())); err != nil {
		log.Warn("country: publish failed, record kept", zap.Error(err))
		s.metrics.IncPublished(false)
		return
	}
	s.metrics.IncPublished(true)
}

// Validate checks a manual-add payload and converts it to a record.
func Validate(in model.CountryInput) (model.Country, error) {
	var c model.Country

	c.Alpha2Code = model.NormalizeCode(in.Alpha2Code)
	if c.Alpha2Code == "" {
		return c, invalid("alpha2_code", "is required")
	}
	if !model.IsAlphaCode(c.Alpha2Code, 2) {
		return c, invalid("alpha2_code", "must be two letters")
	}

	name := model.NormalizeName(in.Name)
	if name == "" {
		return c, invalid("name", "is required")
	}
	c.Name = &name

	if a3 := model.NormalizeCode(in.Alpha3Code); a3 != "" {
		if !model.IsAlphaCode(a3, 3) {
			return c, invalid("alpha3_code", "must be three letters")
		}
		c.Alpha3Code = &a3
	}

	c.Capital = model.StrPtr(strings.TrimSpace(in.Capital))
	c.Region = model.StrPtr(strings.TrimSpace(in.Region))
	c.Subregion = model.StrPtr(strings.TrimSpace(in.Subregion))
	c.FlagURL = model.StrPtr(strings.TrimSpace(in.FlagURL))

	if in.Population != nil && *in.Population < 0 {
		return c, invalid("population", "must not be negative")
	}
	c.Population = in.Population

	if in.AreaKm2 != nil && (math.IsNaN(*in.AreaKm2) || math.IsInf(*in.AreaKm2, 0) || *in.AreaKm2 < 0) {
		return c, invalid("area_km2", "must not be negative")
	}
	c.AreaKm2 = in.AreaKm2

	if (in.Latitude == nil) != (in.Longitude == nil) {
		return c, invalid("coordinates", "latitude and longitude must be given together")
	}
	if in.Latitude != nil {
		p := geospatial.Point{Lat: *in.Latitude, Lon: *in.Longitude}
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
			return c, invalid("coordinates", "must be numbers")
		}
		if err := p.Validate(); err != nil {
			return c, invalid("coordinates", err.Error())
		}
		c.Latitude, c.Longitude = in.Latitude, in.Longitude
	}

	for _, tz := range in.Timezones {
		if tz = strings.TrimSpace(tz); tz != "" {
			c.Timezones = append(c.Timezones, tz)
		}
	}

	var err error
	if c.Currencies, err = collection("currencies", in.Currencies); err != nil {
		return c, err
	}
	if c.Languages, err = collection("languages", in.Languages); err != nil {
		return c, err
	}
	return c, nil
}

// collection encodes a currencies or languages value. Only arrays and
// objects are accepted; empty ones are stored as unknown.
func collection(field string, v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	default:
		return nil, invalid(field, "must be a list or an object")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, invalid(field, "is not representable as JSON")
	}
	return b, nil
}
