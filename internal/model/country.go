package model

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Country is the canonical country record owned by the record store.
type Country struct {
	ID         string          `json:"id"`
	Alpha2Code string          `json:"alpha2_code"`
	Name       *string         `json:"name"`
	Alpha3Code *string         `json:"alpha3_code"`
	Capital    *string         `json:"capital"`
	Region     *string         `json:"region"`
	Subregion  *string         `json:"subregion"`
	Population *int64          `json:"population"`
	AreaKm2    *float64        `json:"area_km2"`
	Latitude   *float64        `json:"latitude"`
	Longitude  *float64        `json:"longitude"`
	Timezones  []string        `json:"timezones"`
	Currencies json.RawMessage `json:"currencies"`
	Languages  json.RawMessage `json:"languages"`
	FlagURL    *string         `json:"flag_url"`
	Source     Provenance      `json:"source"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	SyncedAt   *time.Time      `json:"synced_at,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (c *Country) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// DisplayName returns the name or the code when the name is unknown.
func (c *Country) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Alpha2Code
}

// NormalizeCode trims and upper-cases a country code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsAlphaCode reports whether code is exactly n ASCII letters A-Z.
func IsAlphaCode(code string, n int) bool {
	if len(code) != n {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// NormalizeName trims a display name and composes it to NFC so that
// visually identical names stored from different sources compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// NameKey returns the case-folded lookup key for a display name.
// Both stores persist it so case-insensitive lookups behave the same
// regardless of the database's collation support.
func NameKey(name string) string {
	// A Caser is stateful, so each call gets its own.
	return cases.Fold().String(NormalizeName(name))
}

// StrPtr returns nil for an empty string, otherwise a pointer to s.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
