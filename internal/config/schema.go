package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "config.schema.json"

//go:embed config.schema.json
var schemaData []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Schema returns the compiled JSON schema of the configuration file.
func Schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaData)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateJSON checks a JSON config document against the schema. Unknown
// keys are rejected here, which plain decoding would silently ignore.
func ValidateJSON(data []byte) error {
	schema, err := Schema()
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
