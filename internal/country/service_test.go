package country

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/events"
	"github.com/sells-group/countrysync/internal/metrics"
	"github.com/sells-group/countrysync/internal/model"
	"github.com/sells-group/countrysync/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func ptr[T any](v T) *T { return &v }

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "country.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, model.ChangeEvent) error {
	f.calls++
	return errors.New("redis unavailable")
}

type panickingPublisher struct{}

func (panickingPublisher) Publish(context.Context, model.ChangeEvent) error {
	panic("nil client")
}

func TestService_AddManual_PublishesEvent(t *testing.T) {
	st := newStore(t)
	bus := events.NewMemoryBus()
	defer bus.Close() //nolint:errcheck

	ctx := context.Background()
	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(st, bus, m)

	c, err := svc.AddManual(ctx, model.CountryInput{Alpha2Code: " nl ", Name: "Newland"})
	require.NoError(t, err)
	assert.Equal(t, "NL", c.Alpha2Code)
	assert.Equal(t, model.ProvenanceManual, c.Source)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, model.EventCountryAdded, ev.Kind)
		assert.Equal(t, c.ID, ev.RecordID)
		assert.Equal(t, "Newland", ev.RecordName)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}

	found, err := svc.FindByCode(ctx, "nl")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.ProvenanceManual, found.Source)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ManualAdds))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("ok")))
}

func TestService_AddManual_PublishFailureIsAbsorbed(t *testing.T) {
	st := newStore(t)
	pub := &failingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(st, pub, m)

	c, err := svc.AddManual(context.Background(), model.CountryInput{Alpha2Code: "MK", Name: "Mockland"})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)

	stored, err := st.GetByCode(context.Background(), "MK")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, c.ID, stored.ID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("error")))
}

func TestService_AddManual_PublishPanicIsAbsorbed(t *testing.T) {
	svc := NewService(newStore(t), panickingPublisher{}, nil)
	_, err := svc.AddManual(context.Background(), model.CountryInput{Alpha2Code: "PP", Name: "Panicland"})
	require.NoError(t, err)
}

func TestService_AddManual_DuplicateDoesNotPublish(t *testing.T) {
	st := newStore(t)
	pub := &failingPublisher{}
	svc := NewService(st, pub, nil)
	ctx := context.Background()

	_, err := svc.AddManual(ctx, model.CountryInput{Alpha2Code: "DD", Name: "Dupe"})
	require.NoError(t, err)
	_, err = svc.AddManual(ctx, model.CountryInput{Alpha2Code: "dd", Name: "Dupe Again"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicateCode)
	assert.Equal(t, 1, pub.calls)
}

func TestService_AddManual_ValidationRejectsBeforeWrite(t *testing.T) {
	st := newStore(t)
	pub := &failingPublisher{}
	svc := NewService(st, pub, nil)

	_, err := svc.AddManual(context.Background(), model.CountryInput{Name: "No Code"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "alpha2_code", ve.Field)
	assert.ErrorIs(t, err, ErrValidation)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, pub.calls)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		in    model.CountryInput
		field string
	}{
		{"missing code", model.CountryInput{Name: "X"}, "alpha2_code"},
		{"long code", model.CountryInput{Alpha2Code: "NLD", Name: "X"}, "alpha2_code"},
		{"digit code", model.CountryInput{Alpha2Code: "N1", Name: "X"}, "alpha2_code"},
		{"blank name", model.CountryInput{Alpha2Code: "NL", Name: "  "}, "name"},
		{"bad alpha3", model.CountryInput{Alpha2Code: "NL", Name: "X", Alpha3Code: "NL"}, "alpha3_code"},
		{"negative population", model.CountryInput{Alpha2Code: "NL", Name: "X", Population: ptr(int64(-1))}, "population"},
		{"negative area", model.CountryInput{Alpha2Code: "NL", Name: "X", AreaKm2: ptr(-2.0)}, "area_km2"},
		{"lat without lon", model.CountryInput{Alpha2Code: "NL", Name: "X", Latitude: ptr(1.0)}, "coordinates"},
		{"lat out of range", model.CountryInput{Alpha2Code: "NL", Name: "X", Latitude: ptr(91.0), Longitude: ptr(0.0)}, "coordinates"},
		{"currencies scalar", model.CountryInput{Alpha2Code: "NL", Name: "X", Currencies: "EUR"}, "currencies"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	c, err := Validate(model.CountryInput{
		Alpha2Code: "ci",
		Name:       " Côte d'Ivoire ",
		Alpha3Code: "civ",
		Capital:    " ",
		Latitude:   ptr(7.5),
		Longitude:  ptr(-5.5),
		Timezones:  []string{"UTC", " "},
		Currencies: []any{map[string]any{"code": "XOF"}},
		Languages:  map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, "CI", c.Alpha2Code)
	assert.Equal(t, "Côte d'Ivoire", *c.Name)
	assert.Equal(t, "CIV", *c.Alpha3Code)
	assert.Nil(t, c.Capital)
	assert.Equal(t, []string{"UTC"}, c.Timezones)
	assert.JSONEq(t, `[{"code":"XOF"}]`, string(c.Currencies))
	assert.Nil(t, c.Languages)
}

func TestService_Queries(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	_, err := st.UpsertExternal(ctx, []model.ExternalCountry{
		{Alpha2Code: "AA", Name: ptr("Alpha"), Latitude: ptr(0.0), Longitude: ptr(0.0)},
		{Alpha2Code: "BB", Name: ptr("Beta"), Latitude: ptr(0.0), Longitude: ptr(1.0)},
		{Alpha2Code: "CC", Name: ptr("Gamma")},
	}, time.Now())
	require.NoError(t, err)

	svc := NewService(st, nil, nil)

	got, err := svc.FindByName(ctx, "BETA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "BB", got.Alpha2Code)

	missing, err := svc.FindByCode(ctx, "zz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	bogus, err := svc.FindByCode(ctx, "toolong")
	require.NoError(t, err)
	assert.Nil(t, bogus)

	blank, err := svc.FindByName(ctx, " ")
	require.NoError(t, err)
	assert.Nil(t, blank)

	page, err := svc.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "BB", page[0].Alpha2Code)
	assert.Equal(t, "CC", page[1].Alpha2Code)

	_, err = svc.List(ctx, -1, 0)
	assert.ErrorIs(t, err, ErrValidation)

	near, err := svc.Nearby(ctx, 0, 0, 200, 10)
	require.NoError(t, err)
	require.Len(t, near, 2)
	assert.Equal(t, "AA", near[0].Country.Alpha2Code)
	assert.InDelta(t, 111.19, near[1].DistanceKm, 0.01)

	none, err := svc.Nearby(ctx, 0, 0, 200, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.Nearby(ctx, 100, 0, 10, 10)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Nearby(ctx, 0, 0, -1, 10)
	assert.ErrorIs(t, err, ErrValidation)
}
