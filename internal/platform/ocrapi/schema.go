package ocrapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed status.schema.json
var statusSchemaJSON []byte

const statusSchemaURL = "status.schema.json"

var (
	statusSchemaOnce sync.Once
	statusSchema     *jsonschema.Schema
	statusSchemaErr  error
)

// compileStatusSchema compiles the embedded status schema once per process.
func compileStatusSchema() (*jsonschema.Schema, error) {
	statusSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(statusSchemaURL, bytes.NewReader(statusSchemaJSON)); err != nil {
			statusSchemaErr = fmt.Errorf("add status schema: %w", err)
			return
		}
		schema, err := compiler.Compile(statusSchemaURL)
		if err != nil {
			statusSchemaErr = fmt.Errorf("compile status schema: %w", err)
			return
		}
		statusSchema = schema
	})
	return statusSchema, statusSchemaErr
}

// validateDocument checks that raw is JSON matching schema.
func validateDocument(schema *jsonschema.Schema, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
