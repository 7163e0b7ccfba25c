package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvenance(t *testing.T) {
	t.Parallel()

	assert.True(t, ProvenanceExternal.Overwritable())
	assert.False(t, ProvenanceManual.Overwritable())

	p, err := ParseProvenance("manual")
	require.NoError(t, err)
	assert.Equal(t, ProvenanceManual, p)

	_, err = ParseProvenance("imported")
	assert.Error(t, err)
}

func TestIsAlphaCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		n    int
		want bool
	}{
		{"NL", 2, true},
		{"nl", 2, false},
		{"NLD", 3, true},
		{"N1", 2, false},
		{"", 2, false},
		{"NLD", 2, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAlphaCode(tt.code, tt.n), tt.code)
	}
}

func TestNameKey_CaseInsensitive(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NameKey("Mockland"), NameKey("  MOCKLAND"))
	assert.Equal(t, NameKey("Åland Islands"), NameKey("åLAND ISLANDS"))
	assert.NotEqual(t, NameKey("Mockland"), NameKey("Newland"))
}

func TestCountry_HasCoordinates(t *testing.T) {
	t.Parallel()

	lat, lng := 10.0, 20.0
	assert.True(t, (&Country{Latitude: &lat, Longitude: &lng}).HasCoordinates())
	assert.False(t, (&Country{Latitude: &lat}).HasCoordinates())
	assert.False(t, (&Country{}).HasCoordinates())
}

func TestChangeEvent_RoundTrip(t *testing.T) {
	t.Parallel()

	name := "Newland"
	c := &Country{ID: "3f1c", Alpha2Code: "NL", Name: &name}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	body, err := NewCountryAdded(c, now).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"country_added","id":"3f1c","name":"Newland","emitted_at":"2026-03-01T12:00:00Z"}`, string(body))

	ev, err := DecodeChangeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventCountryAdded, ev.Kind)
	assert.Equal(t, "Newland", ev.RecordName)
}

func TestDecodeChangeEvent_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeChangeEvent([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeChangeEvent([]byte(`{"id":"1"}`))
	assert.Error(t, err)

	ev, err := DecodeChangeEvent([]byte(`{"event":"country_added","id":"1","name":"X"}`))
	require.NoError(t, err)
	assert.True(t, ev.EmittedAt.IsZero())
}
