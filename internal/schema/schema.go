// Package schema validates invocation envelopes and operation payloads
// against embedded JSON Schemas (Draft 2020-12).
package schema

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

//go:embed schemas/*.json
var files embed.FS

// Envelope names the schema of the invocation envelope itself.
const Envelope = "envelope"

const baseURL = "https://swapgraph.local/schemas/"

// Validator holds one compiled schema per operation.
//
// Thread-safety: safe for concurrent use after New returns.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	entries, err := fs.ReadDir(files, "schemas")
	if err != nil {
		return nil, fmt.Errorf("schema: read embedded schemas: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		data, err := files.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", e.Name(), err)
		}
		if err := c.AddResource(baseURL+e.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("schema: load %s: %w", e.Name(), err)
		}
		names = append(names, name)
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(baseURL + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

// Operations lists the operations with a payload schema, sorted.
func (v *Validator) Operations() []string {
	ops := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		if name != Envelope {
			ops = append(ops, name)
		}
	}
	sort.Strings(ops)
	return ops
}

// Has reports whether op has a schema.
func (v *Validator) Has(op string) bool {
	_, ok := v.schemas[op]
	return ok
}

// Validate checks a decoded JSON value (as produced by DecodeJSON) against
// the schema for op.
func (v *Validator) Validate(op string, doc any) error {
	s, ok := v.schemas[op]
	if !ok {
		return swaperr.Validation(swaperr.ReasonUnknownOperation, "unknown operation %q", op).
			WithDetail("operation", op)
	}
	if err := s.Validate(doc); err != nil {
		return validationError(op, err)
	}
	return nil
}

// ValidateJSON decodes data and validates it against the schema for op.
func (v *Validator) ValidateJSON(op string, data []byte) error {
	doc, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	return v.Validate(op, doc)
}

// DecodeJSON decodes data into the generic form the validator expects,
// keeping numbers as json.Number.
func DecodeJSON(data []byte) (any, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, swaperr.Validation(swaperr.ReasonInvalidPayload, "malformed JSON: %v", err)
	}
	return doc, nil
}

// validationError reports the most specific schema violation.
func validationError(op string, err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return swaperr.Validation(swaperr.ReasonInvalidPayload, "%s: %v", op, err)
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := leaf.InstanceLocation
	if field == "" {
		field = "/"
	}
	return swaperr.Validation(swaperr.ReasonInvalidPayload, "%s: %s: %s", op, field, leaf.Message).
		WithDetail("field", field)
}
