package searchindex

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAssignment = errors.New("search index is neither a variable assignment nor a JSON object")
	ErrMalformedJSON     = errors.New("malformed search index JSON")
	ErrMissingDocs       = errors.New(`search index has no "docs" array`)
)

// RecordError describes a structural problem in a single record
type RecordError struct {
	Index  int
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Field, e.Reason)
}
