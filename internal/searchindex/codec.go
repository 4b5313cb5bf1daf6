package searchindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// VariableName is the global the generator assigns the index to
const VariableName = "documenterSearchIndex"

const (
	jsPrefix = "var " + VariableName + " = "
	docsOpen = `{"docs":` + "\n["
	docsEnd  = "]\n}\n"
)

var assignmentRegex = regexp.MustCompile(`^(?:var|let|const)\s+[A-Za-z_$][\w$]*\s*=\s*`)

// Parse decodes a search index from either the JavaScript assignment
// form or bare JSON.
func Parse(data []byte) (*Dataset, error) {
	body, err := StripAssignment(data)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	rawDocs, ok := top["docs"]
	if !ok {
		return nil, ErrMissingDocs
	}
	if len(top) != 1 {
		return nil, fmt.Errorf("%w: unexpected top-level keys %v", ErrMalformedJSON, extraKeys(top, "docs"))
	}

	var rawRecords []json.RawMessage
	if err := json.Unmarshal(rawDocs, &rawRecords); err != nil || rawRecords == nil {
		return nil, fmt.Errorf("%w: docs is not an array", ErrMissingDocs)
	}

	records := make([]Record, 0, len(rawRecords))
	for i, raw := range rawRecords {
		rec, err := decodeRecord(i, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return &Dataset{records: records}, nil
}

// Read parses a search index from r
func Read(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read search index: %w", err)
	}
	return Parse(data)
}

// ParseFile parses the search index stored at path
func ParseFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search index %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search index %s: %w", path, err)
	}
	return ds, nil
}

// StripAssignment returns the JSON payload of a search index file.
// Bare JSON objects are returned unchanged apart from surrounding whitespace.
func StripAssignment(data []byte) ([]byte, error) {
	body := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	body = bytes.TrimSpace(body)

	if !bytes.HasPrefix(body, []byte("{")) {
		loc := assignmentRegex.FindIndex(body)
		if loc == nil {
			return nil, ErrMissingAssignment
		}
		body = body[loc[1]:]
	}

	body = bytes.TrimRight(body, " \t\r\n;")
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedJSON)
	}
	return body, nil
}

func decodeRecord(i int, raw json.RawMessage) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Record{}, &RecordError{Index: i, Reason: "not a JSON object"}
	}

	values := make(map[string]string, len(recordFields))
	for _, name := range recordFields {
		value, ok := fields[name]
		if !ok {
			return Record{}, &RecordError{Index: i, Field: name, Reason: "missing"}
		}
		// json.Unmarshal accepts null into a string, so check the token first
		if !bytes.HasPrefix(bytes.TrimSpace(value), []byte(`"`)) {
			return Record{}, &RecordError{Index: i, Field: name, Reason: "not a string"}
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return Record{}, &RecordError{Index: i, Field: name, Reason: "not a string"}
		}
		values[name] = s
	}

	if extra := extraKeys(fields, recordFields...); len(extra) > 0 {
		return Record{}, &RecordError{Index: i, Field: extra[0], Reason: "unknown field"}
	}

	rec := Record{
		Location: values["location"],
		Page:     values["page"],
		Title:    values["title"],
		Text:     values["text"],
		Category: Category(values["category"]),
	}
	if !rec.Category.Valid() {
		return Record{}, &RecordError{Index: i, Field: "category", Reason: fmt.Sprintf("unknown category %q", rec.Category)}
	}
	return rec, nil
}

// extraKeys returns the sorted keys of m not listed in allowed
func extraKeys(m map[string]json.RawMessage, allowed ...string) []string {
	var extra []string
	for key := range m {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}

// MarshalJS renders the dataset in the generator's layout:
//
//	var documenterSearchIndex = {"docs":
//	[{...},{...}]
//	}
//
// Records are compact JSON without HTML escaping, so a file produced by the
// generator round-trips byte for byte.
func (d *Dataset) MarshalJS() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(jsPrefix)
	buf.WriteString(docsOpen)
	if err := d.writeRecords(&buf); err != nil {
		return nil, err
	}
	buf.WriteString(docsEnd)
	return buf.Bytes(), nil
}

// MarshalJSON renders the bare {"docs":[...]} form
func (d *Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"docs":[`)
	if err := d.writeRecords(&buf); err != nil {
		return nil, err
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// WriteFile writes the dataset to path in the generator's layout
func (d *Dataset) WriteFile(path string) error {
	data, err := d.MarshalJS()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write search index %s: %w", path, err)
	}
	return nil
}

func (d *Dataset) writeRecords(buf *bytes.Buffer) error {
	if d == nil {
		return nil
	}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	for i, rec := range d.records {
		if i > 0 {
			buf.WriteByte(',')
		}
		start := buf.Len()
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		// Encode terminates every value with a newline
		buf.Truncate(buf.Len() - 1)
		if encoded := buf.Bytes()[start:]; bytes.Contains(encoded, lineSepEscape) || bytes.Contains(encoded, paraSepEscape) {
			raw := unescapeSeparators(encoded)
			buf.Truncate(start)
			buf.Write(raw)
		}
	}
	return nil
}

var (
	lineSepEscape = []byte(`\u2028`)
	paraSepEscape = []byte(`\u2029`)
)

// unescapeSeparators writes U+2028 and U+2029 back as raw characters.
// encoding/json always escapes them; the generator does not.
func unescapeSeparators(encoded []byte) []byte {
	out := make([]byte, 0, len(encoded))
	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		if c != '\\' || i+1 >= len(encoded) {
			out = append(out, c)
			continue
		}
		switch rest := encoded[i:]; {
		case bytes.HasPrefix(rest, lineSepEscape):
			out = append(out, "\u2028"...)
			i += len(lineSepEscape) - 1
			continue
		case bytes.HasPrefix(rest, paraSepEscape):
			out = append(out, "\u2029"...)
			i += len(paraSepEscape) - 1
			continue
		}
		// any other escape, including an escaped backslash, is kept as is
		out = append(out, c, encoded[i+1])
		i++
	}
	return out
}

// IsJS reports whether data looks like the JavaScript assignment form
func IsJS(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return assignmentRegex.MatchString(trimmed)
}
