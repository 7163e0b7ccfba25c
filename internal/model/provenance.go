package model

import "github.com/rotisserie/eris"

// Provenance records who owns a country record's field values.
// Reconciliation may only overwrite records it owns.
type Provenance string

const (
	ProvenanceExternal Provenance = "external" // created/refreshed by reconciliation
	ProvenanceManual   Provenance = "manual"   // entered by an operator; never overwritten
)

// Valid reports whether p is a known provenance tag.
func (p Provenance) Valid() bool {
	return p == ProvenanceExternal || p == ProvenanceManual
}

// Overwritable reports whether reconciliation may replace field values
// of a record carrying this provenance.
func (p Provenance) Overwritable() bool {
	return p == ProvenanceExternal
}

// ParseProvenance converts a stored source column into a Provenance.
func ParseProvenance(s string) (Provenance, error) {
	p := Provenance(s)
	if !p.Valid() {
		return "", eris.Errorf("unknown provenance: %q (valid: external, manual)", s)
	}
	return p, nil
}
