package regsync

import (
	"context"
	"sort"
)

// RawRecord is one source row before column resolution and coercion.
// Keys are the source file's or API's own header spellings; the column
// resolver maps them to canonical field names per batch, because the
// same field can appear under different headers in different years.
type RawRecord map[string]string

// Get returns the raw value for a header, distinguishing a missing
// column from an empty value.
func (r RawRecord) Get(header string) (string, bool) {
	v, ok := r[header]
	return v, ok
}

// Page is one fixed-size slice of raw records at a known offset.
type Page struct {
	Offset  int
	Records []RawRecord
}

// Headers returns the union of header names seen in the page, sorted
// for determinism. Column resolution runs fresh against every batch's
// headers rather than assuming they stay constant across a run.
func (p *Page) Headers() []string {
	seen := make(map[string]struct{})
	for _, rec := range p.Records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	headers := make([]string, 0, len(seen))
	for k := range seen {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return headers
}

// PagedSource is a record source readable in fixed-size pages.
//
// Count is a cheap probe used to size the run and decide termination.
// Fetch returns the records at [offset, offset+limit); a result shorter
// than limit marks the final page.
type PagedSource interface {
	Count(ctx context.Context) (int, error)
	Fetch(ctx context.Context, offset, limit int) ([]RawRecord, error)
}
