// Package searchindex reads and writes the search index data file that
// Documenter publishes next to a rendered documentation site
// (search_index.js). The file is a single JavaScript assignment whose value
// is {"docs": [...]}, one record per indexable location.
//
// A Dataset is immutable once built. It is safe for concurrent use.
package searchindex

import "fmt"

// Dataset is an ordered, read-only sequence of records
type Dataset struct {
	records []Record
}

// New builds a Dataset from records, rejecting unknown categories.
// The slice is copied; later changes to it do not affect the Dataset.
func New(records []Record) (*Dataset, error) {
	for i, rec := range records {
		if !rec.Category.Valid() {
			return nil, &RecordError{Index: i, Field: "category", Reason: fmt.Sprintf("unknown category %q", rec.Category)}
		}
	}
	owned := make([]Record, len(records))
	copy(owned, records)
	return &Dataset{records: owned}, nil
}

// Load returns every record in generation order.
// Each call returns a fresh copy, so callers may modify the result freely.
func (d *Dataset) Load() []Record {
	if d == nil {
		return nil
	}
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Len returns the number of records
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Categories counts records per category
func (d *Dataset) Categories() map[Category]int {
	counts := make(map[Category]int)
	if d == nil {
		return counts
	}
	for _, rec := range d.records {
		counts[rec.Category]++
	}
	return counts
}
