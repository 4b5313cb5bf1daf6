package searchindex

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://documenter-mcp.local/schema/search_index.json"

var (
	compiledSchema *jsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

// ValidationError is a single schema violation
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult is the outcome of Validate
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Records int               `json:"records"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Summary string            `json:"summary"`
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("embedded schema is invalid: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Validate checks data (JavaScript or bare JSON form) against the search
// index schema. A non-nil error means validation could not run at all;
// schema violations are reported in the result.
func Validate(data []byte) (*ValidationResult, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{}

	body, err := StripAssignment(data)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "$",
			Message: err.Error(),
			Code:    "INVALID_WRAPPER",
		})
		result.Summary = "Search index is not a recognised search_index.js or JSON document"
		return result, nil
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "$",
			Message: err.Error(),
			Code:    "JSON_PARSE_ERROR",
		})
		result.Summary = "Search index payload is not valid JSON"
		return result, nil
	}

	if obj, ok := instance.(map[string]any); ok {
		if docs, ok := obj["docs"].([]any); ok {
			result.Records = len(docs)
		}
	}

	if err := schema.Validate(instance); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			result.Errors = flattenValidationErrors(validationErr, message.NewPrinter(language.English))
		} else {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "$",
				Message: err.Error(),
				Code:    "SCHEMA_VALIDATION_ERROR",
			})
		}
		result.Summary = fmt.Sprintf("Search index failed schema validation with %d error(s)", len(result.Errors))
		return result, nil
	}

	result.Valid = true
	result.Summary = fmt.Sprintf("Search index is valid (%d records)", result.Records)
	return result, nil
}

// flattenValidationErrors reports only leaf causes; inner nodes repeat them
func flattenValidationErrors(validationErr *jsonschema.ValidationError, printer *message.Printer) []ValidationError {
	if len(validationErr.Causes) > 0 {
		var errs []ValidationError
		for _, cause := range validationErr.Causes {
			errs = append(errs, flattenValidationErrors(cause, printer)...)
		}
		return errs
	}

	path := "$"
	if len(validationErr.InstanceLocation) > 0 {
		path = "$." + strings.Join(validationErr.InstanceLocation, ".")
	}

	msg := validationErr.Error()
	if validationErr.ErrorKind != nil {
		msg = validationErr.ErrorKind.LocalizedString(printer)
	}

	return []ValidationError{{
		Path:    path,
		Message: msg,
		Code:    "SCHEMA_VALIDATION_ERROR",
	}}
}
