package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docmcp/documenter-mcp-server/internal/searchindex"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ValidateSearchIndexInput defines input for validate_search_index tool
type ValidateSearchIndexInput struct {
	Index string `json:"index,omitempty" jsonschema:"search_index.js content, bare JSON, or a path to either (optional, defaults to the loaded search index file)"`
}

// ValidateSearchIndexOutput defines output for validate_search_index tool
type ValidateSearchIndexOutput struct {
	Valid              bool                          `json:"valid"`
	Records            int                           `json:"records"`
	Errors             []searchindex.ValidationError `json:"errors,omitempty"`
	RoundTripIdentical bool                          `json:"round_trip_identical"`
	Categories         map[string]int                `json:"categories,omitempty"`
	Summary            string                        `json:"summary"`
}

// isFilePath determines if a string is a file path rather than index content
func isFilePath(s string) bool {
	if s == "" || strings.Contains(s, "\n") {
		return false
	}

	// Content starts with { (JSON) or a variable declaration (JavaScript)
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || searchindex.IsJS([]byte(trimmed)) {
		return false
	}

	// Unix absolute path
	if strings.HasPrefix(s, "/") {
		return true
	}

	// Relative path
	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return true
	}

	// Windows absolute path (C:\, D:\, etc.)
	if len(s) >= 3 && s[1] == ':' && (s[2] == '\\' || s[2] == '/') {
		return true
	}

	return strings.HasSuffix(s, ".js") || strings.HasSuffix(s, ".json")
}

// readValidationInput resolves the tool input to the bytes to validate
func readValidationInput(index string) ([]byte, string, error) {
	if index == "" {
		path := filepath.Join(dataDir, indexFile)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read search index %s: %w", path, err)
		}
		return data, path, nil
	}

	if isFilePath(index) {
		data, err := os.ReadFile(index)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read search index %s: %w", index, err)
		}
		return data, index, nil
	}

	return []byte(index), "inline content", nil
}

// roundTrip re-serializes ds in the same form as data and reports whether
// the bytes are identical
func roundTrip(data []byte, ds *searchindex.Dataset) (bool, error) {
	var out []byte
	var err error
	if searchindex.IsJS(data) {
		out, err = ds.MarshalJS()
	} else {
		out, err = ds.MarshalJSON()
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(out, data), nil
}

// ValidateSearchIndex validates a search index against the schema and the
// record rules, and checks that it re-serializes to the same bytes
func ValidateSearchIndex(ctx context.Context, req *mcp.CallToolRequest, input ValidateSearchIndexInput) (*mcp.CallToolResult, ValidateSearchIndexOutput, error) {
	data, source, err := readValidationInput(input.Index)
	if err != nil {
		return nil, ValidateSearchIndexOutput{}, err
	}

	result, err := searchindex.Validate(data)
	if err != nil {
		return nil, ValidateSearchIndexOutput{}, fmt.Errorf("validation failed: %w", err)
	}

	output := ValidateSearchIndexOutput{
		Valid:   result.Valid,
		Records: result.Records,
		Errors:  result.Errors,
		Summary: fmt.Sprintf("%s: %s", source, result.Summary),
	}
	if !result.Valid {
		return nil, output, nil
	}

	ds, err := searchindex.Parse(data)
	if err != nil {
		// Schema accepts it but the decoder does not
		output.Valid = false
		output.Errors = append(output.Errors, searchindex.ValidationError{
			Path:    "$",
			Message: err.Error(),
			Code:    "DECODE_ERROR",
		})
		output.Summary = fmt.Sprintf("%s: search index could not be decoded: %v", source, err)
		return nil, output, nil
	}

	output.Categories = make(map[string]int)
	for cat, n := range ds.Categories() {
		output.Categories[string(cat)] = n
	}

	output.RoundTripIdentical, err = roundTrip(data, ds)
	if err != nil {
		return nil, output, fmt.Errorf("failed to re-serialize search index: %w", err)
	}
	if !output.RoundTripIdentical {
		output.Summary += "; re-serialized output differs from the input (formatting is not canonical)"
	}

	return nil, output, nil
}

// RegisterValidationTools registers the validate_search_index tool
func RegisterValidationTools(server *mcp.Server) error {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "validate_search_index",
			Description: "Validate a Documenter search_index.js (or its bare JSON payload) and check that it round-trips byte for byte. Pass content or a file path; defaults to the loaded search index file.",
		},
		ValidateSearchIndex,
	)
	return nil
}
