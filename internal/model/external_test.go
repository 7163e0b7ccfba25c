package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExternalCountry_Full(t *testing.T) {
	raw := json.RawMessage(`{
		"name": "Mockland",
		"alpha2Code": "mk",
		"alpha3Code": "mkl",
		"capital": "Mockville",
		"region": "Europe",
		"subregion": "Southern Europe",
		"population": 2077132,
		"area": 25713.5,
		"latlng": [41.83, 22.0],
		"timezones": ["UTC+01:00"],
		"currencies": [{"code": "MKD", "name": "Denar"}],
		"languages": [ {"iso639_1": "mk"} ],
		"flag": "https://flags.example/mk.svg"
	}`)

	ec, err := ParseExternalCountry(raw)
	require.NoError(t, err)

	assert.Equal(t, "MK", ec.Alpha2Code)
	require.NotNil(t, ec.Name)
	assert.Equal(t, "Mockland", *ec.Name)
	require.NotNil(t, ec.Alpha3Code)
	assert.Equal(t, "MKL", *ec.Alpha3Code)
	assert.Equal(t, int64(2077132), *ec.Population)
	assert.InDelta(t, 25713.5, *ec.AreaKm2, 1e-9)
	assert.InDelta(t, 41.83, *ec.Latitude, 1e-9)
	assert.InDelta(t, 22.0, *ec.Longitude, 1e-9)
	assert.Equal(t, []string{"UTC+01:00"}, ec.Timezones)
	assert.JSONEq(t, `[{"code":"MKD","name":"Denar"}]`, string(ec.Currencies))
	assert.Equal(t, `[{"iso639_1":"mk"}]`, string(ec.Languages))
	assert.Equal(t, "https://flags.example/mk.svg", *ec.FlagURL)
}

func TestParseExternalCountry_MissingCode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"absent", `{"name": "Nowhere"}`},
		{"null", `{"alpha2Code": null}`},
		{"empty", `{"alpha2Code": ""}`},
		{"blank", `{"alpha2Code": "  "}`},
		{"wrong type", `{"alpha2Code": 12}`},
		{"too long", `{"alpha2Code": "ABC"}`},
		{"digits", `{"alpha2Code": "1A"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExternalCountry(json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, ErrMissingCode)
		})
	}
}

func TestParseExternalCountry_NotAnObject(t *testing.T) {
	_, err := ParseExternalCountry(json.RawMessage(`["MK"]`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingCode)
}

func TestParseExternalCountry_WrongTypesDropped(t *testing.T) {
	raw := json.RawMessage(`{
		"alpha2Code": "XX",
		"name": 42,
		"population": "lots",
		"area": -5,
		"latlng": [95, 200],
		"timezones": "UTC",
		"currencies": "EUR",
		"languages": {},
		"flag": ""
	}`)

	ec, err := ParseExternalCountry(raw)
	require.NoError(t, err)
	assert.Equal(t, "XX", ec.Alpha2Code)
	assert.Nil(t, ec.Name)
	assert.Nil(t, ec.Population)
	assert.Nil(t, ec.AreaKm2)
	assert.Nil(t, ec.Latitude)
	assert.Nil(t, ec.Longitude)
	assert.Nil(t, ec.Timezones)
	assert.Nil(t, ec.Currencies)
	assert.Nil(t, ec.Languages)
	assert.Nil(t, ec.FlagURL)
}

func TestParseExternalCountry_ZeroIsPresent(t *testing.T) {
	ec, err := ParseExternalCountry(json.RawMessage(`{"alpha2Code":"EQ","population":0,"latlng":[0,0]}`))
	require.NoError(t, err)
	require.NotNil(t, ec.Population)
	assert.Equal(t, int64(0), *ec.Population)
	require.NotNil(t, ec.Latitude)
	require.NotNil(t, ec.Longitude)
	assert.Zero(t, *ec.Latitude)
	assert.Zero(t, *ec.Longitude)
}

func TestParseExternalCountry_PopulationOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		pop  string
	}{
		{"two to the 63", "9223372036854775808"},
		{"max int64 literal", "9223372036854775807"},
		{"huge", "1e300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec, err := ParseExternalCountry(json.RawMessage(`{"alpha2Code":"XX","population":` + tt.pop + `}`))
			require.NoError(t, err)
			assert.Nil(t, ec.Population)
		})
	}

	ec, err := ParseExternalCountry(json.RawMessage(`{"alpha2Code":"XX","population":9007199254740992}`))
	require.NoError(t, err)
	require.NotNil(t, ec.Population)
	assert.Equal(t, int64(9007199254740992), *ec.Population)
}

func TestParseExternalCountry_ShortLatLng(t *testing.T) {
	ec, err := ParseExternalCountry(json.RawMessage(`{"alpha2Code":"HL","latlng":[12.5]}`))
	require.NoError(t, err)
	require.NotNil(t, ec.Latitude)
	assert.Nil(t, ec.Longitude)
}

func TestParseExternalCountry_NormalizesName(t *testing.T) {
	// o followed by a combining circumflex composes to the precomposed form.
	ec, err := ParseExternalCountry(json.RawMessage(`{"alpha2Code":"CI","name":"  Co\u0302te d'Ivoire "}`))
	require.NoError(t, err)
	assert.Equal(t, "C\u00f4te d'Ivoire", *ec.Name)
}

func TestExternalCountry_Merge(t *testing.T) {
	old := "Old"
	newName := "New"
	capital := "Capital"
	pop := int64(10)
	lat := 1.5

	first := ExternalCountry{Alpha2Code: "AA", Name: &old, Capital: &capital, Population: &pop, Timezones: []string{"UTC"}}
	second := ExternalCountry{Alpha2Code: "AA", Name: &newName, Latitude: &lat}

	merged := first.Merge(second)
	assert.Equal(t, "New", *merged.Name)
	assert.Equal(t, "Capital", *merged.Capital)
	assert.Equal(t, int64(10), *merged.Population)
	assert.Equal(t, 1.5, *merged.Latitude)
	assert.Nil(t, merged.Longitude)
	assert.Equal(t, []string{"UTC"}, merged.Timezones)
}

func TestDedupeByCode(t *testing.T) {
	a1, a2 := "First", "Second"
	capital := "Cap"

	in := []ExternalCountry{
		{Alpha2Code: "AA", Name: &a1, Capital: &capital},
		{Alpha2Code: "BB"},
		{Alpha2Code: "AA", Name: &a2},
	}
	out := DedupeByCode(in)
	require.Len(t, out, 2)
	assert.Equal(t, "AA", out[0].Alpha2Code)
	assert.Equal(t, "Second", *out[0].Name)
	assert.Equal(t, "Cap", *out[0].Capital)
	assert.Equal(t, "BB", out[1].Alpha2Code)
}
