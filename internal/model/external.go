package model

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
)

// ErrMissingCode is returned when an external record carries no usable
// alpha2Code. Such records are skipped, never fatal to a batch.
var ErrMissingCode = eris.New("external record has no usable alpha2Code")

// ExternalCountry is one record from the external source after structural
// validation. Only Alpha2Code is guaranteed; nil fields were absent, null,
// empty, or of the wrong type upstream.
type ExternalCountry struct {
	Alpha2Code string
	Name       *string
	Alpha3Code *string
	Capital    *string
	Region     *string
	Subregion  *string
	Population *int64
	AreaKm2    *float64
	Latitude   *float64
	Longitude  *float64
	Timezones  []string
	Currencies json.RawMessage
	Languages  json.RawMessage
	FlagURL    *string
}

// ParseExternalCountry validates one raw element of the source array.
// Fields with an unexpected JSON type are dropped rather than failing the
// record; a missing or malformed alpha2Code returns ErrMissingCode.
func ParseExternalCountry(raw json.RawMessage) (ExternalCountry, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ExternalCountry{}, eris.Wrap(err, "external: decode object")
	}

	code := ""
	if s := rawString(obj["alpha2Code"]); s != nil {
		code = NormalizeCode(*s)
	}
	if !IsAlphaCode(code, 2) {
		return ExternalCountry{}, ErrMissingCode
	}

	ec := ExternalCountry{
		Alpha2Code: code,
		Capital:    rawString(obj["capital"]),
		Region:     rawString(obj["region"]),
		Subregion:  rawString(obj["subregion"]),
		Population: rawCount(obj["population"]),
		AreaKm2:    rawNonNegative(obj["area"]),
		Timezones:  rawStrings(obj["timezones"]),
		Currencies: rawCollection(obj["currencies"]),
		Languages:  rawCollection(obj["languages"]),
		FlagURL:    rawString(obj["flag"]),
	}
	if name := rawString(obj["name"]); name != nil {
		ec.Name = StrPtr(NormalizeName(*name))
	}
	if a3 := rawString(obj["alpha3Code"]); a3 != nil {
		if c := NormalizeCode(*a3); IsAlphaCode(c, 3) {
			ec.Alpha3Code = &c
		}
	}
	ec.Latitude, ec.Longitude = rawLatLng(obj["latlng"])
	return ec, nil
}

// Merge returns r with every field that is present in next replaced by
// next's value. Absent fields in next keep r's value.
func (r ExternalCountry) Merge(next ExternalCountry) ExternalCountry {
	out := r
	out.Name = coalesce(next.Name, r.Name)
	out.Alpha3Code = coalesce(next.Alpha3Code, r.Alpha3Code)
	out.Capital = coalesce(next.Capital, r.Capital)
	out.Region = coalesce(next.Region, r.Region)
	out.Subregion = coalesce(next.Subregion, r.Subregion)
	out.Population = coalesce(next.Population, r.Population)
	out.AreaKm2 = coalesce(next.AreaKm2, r.AreaKm2)
	out.Latitude = coalesce(next.Latitude, r.Latitude)
	out.Longitude = coalesce(next.Longitude, r.Longitude)
	out.FlagURL = coalesce(next.FlagURL, r.FlagURL)
	if next.Timezones != nil {
		out.Timezones = next.Timezones
	}
	if next.Currencies != nil {
		out.Currencies = next.Currencies
	}
	if next.Languages != nil {
		out.Languages = next.Languages
	}
	return out
}

func coalesce[T any](preferred, fallback *T) *T {
	if preferred != nil {
		return preferred
	}
	return fallback
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func rawString(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return StrPtr(s)
}

func rawFloat(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func rawNonNegative(raw json.RawMessage) *float64 {
	f := rawFloat(raw)
	if f == nil || *f < 0 {
		return nil
	}
	return f
}

func rawCount(raw json.RawMessage) *int64 {
	f := rawNonNegative(raw)
	if f == nil {
		return nil
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	r := math.Round(*f)
	if r >= 0x1p63 {
		return nil
	}
	n := int64(r)
	return &n
}

func rawLatLng(raw json.RawMessage) (lat, lng *float64) {
	if isNull(raw) {
		return nil, nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, nil
	}
	if len(pair) > 0 {
		if f := rawFloat(pair[0]); f != nil && *f >= -90 && *f <= 90 {
			lat = f
		}
	}
	if len(pair) > 1 {
		if f := rawFloat(pair[1]); f != nil && *f >= -180 && *f <= 180 {
			lng = f
		}
	}
	return lat, lng
}

func rawStrings(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := rawString(item); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// rawCollection keeps a non-empty JSON array or object verbatim (compacted).
// Currency and language shapes differ between source revisions, so they are
// stored as documents rather than typed columns.
func rawCollection(raw json.RawMessage) json.RawMessage {
	if isNull(raw) {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '[' && trimmed[0] != '{') {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil
	}
	if s := buf.String(); s == "[]" || s == "{}" {
		return nil
	}
	return json.RawMessage(buf.Bytes())
}

// DedupeByCode folds records sharing an alpha2Code into one, merging in
// slice order so later records win on fields they carry. The result keeps
// the position of each code's first occurrence.
func DedupeByCode(records []ExternalCountry) []ExternalCountry {
	idx := make(map[string]int, len(records))
	out := make([]ExternalCountry, 0, len(records))
	for _, r := range records {
		if i, ok := idx[r.Alpha2Code]; ok {
			out[i] = out[i].Merge(r)
			continue
		}
		idx[r.Alpha2Code] = len(out)
		out = append(out, r)
	}
	return out
}
