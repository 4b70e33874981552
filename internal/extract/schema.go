package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildRecordSchema returns the JSON schema for one side's answer: a non-empty
// object, optionally with required keys.
func BuildRecordSchema(required []string) map[string]any {
	schema := map[string]any{
		"type":          "object",
		"minProperties": 1,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(name string, required []string) (*jsonschema.Schema, error) {
	b, err := json.Marshal(BuildRecordSchema(required))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	url := "record-" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
