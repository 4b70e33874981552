// Package extract turns the model's raw answer for one card side into a
// models.Record. Model output is untrusted: anything but exactly one JSON
// object is rejected with models.ErrMalformedOutput.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/cardex/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Parser parses and validates model answers against per-side schemas.
type Parser struct {
	strictKeys bool
	fields     map[models.Side][]string
	schemas    map[models.Side]*jsonschema.Schema
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithStrictKeys requires every field named by the side's query to be present.
func WithStrictKeys(strict bool) ParserOption {
	return func(p *Parser) { p.strictKeys = strict }
}

// NewParser compiles one schema per query. Model keys that are close to a
// query field name (case, spacing, a typo) are renamed to that field.
func NewParser(queries []models.Query, opts ...ParserOption) (*Parser, error) {
	p := &Parser{
		fields:  make(map[models.Side][]string),
		schemas: make(map[models.Side]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, q := range queries {
		p.fields[q.Side] = q.Fields
		var required []string
		if p.strictKeys {
			required = q.Fields
		}
		schema, err := compileSchema(string(q.Side), required)
		if err != nil {
			return nil, err
		}
		p.schemas[q.Side] = schema
	}
	return p, nil
}

// Parse strips Markdown fences, decodes exactly one JSON object, renames
// near-miss keys, validates against the side's schema and flattens nested
// objects as parent.child.
func (p *Parser) Parse(side models.Side, raw string) (models.Record, error) {
	body := StripFences(raw)
	if body == "" {
		return models.Record{}, malformed("empty answer")
	}
	if err := checkSingleObject(body); err != nil {
		return models.Record{}, err
	}

	rename := func(key string) string { return key }
	if known := p.fields[side]; len(known) > 0 {
		rename = func(key string) string { return canonicalKey(key, known) }
	}
	fields, top, err := flattenObject([]byte(body), "", rename)
	if err != nil {
		return models.Record{}, malformed(err.Error())
	}
	if err := p.validate(side, top); err != nil {
		return models.Record{}, err
	}
	return models.Record{Side: side, Fields: dedupe(fields)}, nil
}

func (p *Parser) validate(side models.Side, top []string) error {
	schema, ok := p.schemas[side]
	if !ok {
		var err error
		schema, err = compileSchema(string(side), nil)
		if err != nil {
			return err
		}
	}
	// Validation sees the top-level keys only.
	doc := make(map[string]any, len(top))
	for _, k := range top {
		doc[k] = true
	}
	if err := schema.Validate(doc); err != nil {
		return malformed(err.Error())
	}
	return nil
}

// StripFences trims whitespace and a surrounding ```/```json code fence.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func checkSingleObject(body string) error {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return malformed("invalid JSON: " + err.Error())
	}
	if _, ok := v.(map[string]any); !ok {
		return malformed(fmt.Sprintf("expected a JSON object, got %s", jsonKind(v)))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return malformed("trailing data after JSON object")
	}
	return nil
}

// flattenObject walks the object in source order. rename applies to the
// object's own keys; the renamed keys are returned as top.
func flattenObject(raw []byte, prefix string, rename func(string) string) (fields []models.Field, top []string, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		name := rename(strings.TrimSpace(tok.(string)))
		top = append(top, name)
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, err
		}
		val = bytes.TrimSpace(val)
		if len(val) > 0 && val[0] == '{' {
			nested, _, err := flattenObject(val, key, strings.TrimSpace)
			if err != nil {
				return nil, nil, err
			}
			fields = append(fields, nested...)
			continue
		}
		s, err := scalarText(val)
		if err != nil {
			return nil, nil, err
		}
		fields = append(fields, models.Field{Key: key, Value: s})
	}
	return fields, top, nil
}

// scalarText renders strings as-is, null as "", anything else as compact JSON.
func scalarText(val json.RawMessage) (string, error) {
	switch {
	case bytes.Equal(val, []byte("null")):
		return "", nil
	case len(val) > 0 && val[0] == '"':
		var s string
		if err := json.Unmarshal(val, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, val); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

// dedupe keeps the first position of a repeated key with its last value.
func dedupe(fields []models.Field) []models.Field {
	pos := make(map[string]int, len(fields))
	out := make([]models.Field, 0, len(fields))
	for _, f := range fields {
		if i, ok := pos[f.Key]; ok {
			out[i].Value = f.Value
			continue
		}
		pos[f.Key] = len(out)
		out = append(out, f)
	}
	return out
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func malformed(detail string) error {
	return fmt.Errorf("%w: %s", models.ErrMalformedOutput, detail)
}
