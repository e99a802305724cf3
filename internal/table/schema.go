package table

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/columns.json
var columnsSchemaJSON []byte

const columnsSchemaURL = "https://noah-analytics.github.io/schema/columns.json"

var (
	columnsSchemaOnce sync.Once
	columnsSchema     *jsonschema.Schema
	columnsSchemaErr  error
)

// SchemaError is one violation found while validating column definitions
type SchemaError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// InvalidColumnsError lists every schema violation of a column document
type InvalidColumnsError struct {
	Errors []SchemaError
}

func (e *InvalidColumnsError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		msgs[i] = se.Path + ": " + se.Message
	}
	return "invalid column definitions: " + strings.Join(msgs, "; ")
}

func compiledColumnsSchema() (*jsonschema.Schema, error) {
	columnsSchemaOnce.Do(func() {
		var doc interface{}
		if err := json.Unmarshal(columnsSchemaJSON, &doc); err != nil {
			columnsSchemaErr = fmt.Errorf("failed to parse column schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(columnsSchemaURL, doc); err != nil {
			columnsSchemaErr = fmt.Errorf("failed to add column schema: %w", err)
			return
		}
		columnsSchema, columnsSchemaErr = compiler.Compile(columnsSchemaURL)
	})
	return columnsSchema, columnsSchemaErr
}

// LoadColumns decodes and validates a JSON array of column definitions.
// Column ids must be unique and must not shadow a reserved query parameter.
func LoadColumns(data []byte) ([]ColumnDef, error) {
	schema, err := compiledColumnsSchema()
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, &InvalidColumnsError{Errors: schemaErrors(verr)}
		}
		return nil, err
	}

	var cols []ColumnDef
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, fmt.Errorf("failed to decode column definitions: %w", err)
	}

	seen := make(map[string]bool, len(cols))
	var problems []SchemaError
	for i, c := range cols {
		path := fmt.Sprintf("$.%d.id", i)
		if seen[c.ID] {
			problems = append(problems, SchemaError{Path: path, Message: fmt.Sprintf("duplicate column id %q", c.ID)})
		}
		if reservedParams[c.ID] {
			problems = append(problems, SchemaError{Path: path, Message: fmt.Sprintf("column id %q is a reserved query parameter", c.ID)})
		}
		seen[c.ID] = true
	}
	if len(problems) > 0 {
		return nil, &InvalidColumnsError{Errors: problems}
	}
	return cols, nil
}

// schemaErrors flattens a validation error tree, keeping only the leaves
func schemaErrors(verr *jsonschema.ValidationError) []SchemaError {
	if len(verr.Causes) == 0 {
		path := "$"
		if len(verr.InstanceLocation) > 0 {
			path = "$." + strings.Join(verr.InstanceLocation, ".")
		}
		return []SchemaError{{Path: path, Message: verr.Error()}}
	}

	var out []SchemaError
	for _, cause := range verr.Causes {
		out = append(out, schemaErrors(cause)...)
	}
	return out
}
