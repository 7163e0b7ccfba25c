package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// DefaultMaxArrayItems bounds ReadArray when the caller passes no limit.
// The country source carries a few hundred elements.
const DefaultMaxArrayItems = 10000

// ErrTooManyItems is returned when a source array exceeds the item limit.
var ErrTooManyItems = eris.New("json: array exceeds item limit")

// ReadArray splits a top-level JSON array into its raw elements without
// interpreting them. The whole document must be one array: a different
// top-level value, a truncated body or trailing data is an error, and
// nothing is returned unless every element decodes.
func ReadArray(ctx context.Context, r io.Reader, maxItems int) ([]json.RawMessage, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxArrayItems
	}
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil, eris.New("json: empty document")
	case err != nil:
		return nil, eris.Wrap(err, "json: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Errorf("json: expected '[', got %v", tok)
	}

	items := []json.RawMessage{}
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "json: context cancelled")
		}
		if len(items) == maxItems {
			return nil, eris.Wrapf(ErrTooManyItems, "json: more than %d elements", maxItems)
		}
		var item json.RawMessage
		if err := dec.Decode(&item); err != nil {
			return nil, eris.Wrapf(err, "json: decode element %d", len(items))
		}
		items = append(items, item)
	}

	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "json: read closing token")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, eris.New("json: trailing data after array")
	}
	return items, nil
}
