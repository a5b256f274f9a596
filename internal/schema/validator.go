// internal/schema/validator.go
// Package schema provides JSON schema validation for stored payload envelopes.
// It ensures an envelope is well-formed before it is encoded and written
// on-chain; the append-only log cannot be repaired after the fact.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SupportedEnvelopes lists the payload kinds that can be validated.
var SupportedEnvelopes = map[string]bool{
	"wish": true, // Wish board entries
	"seal": true, // Legacy time-locked seals
}

// wishSchema constrains the wish envelope written on-chain. Counters must be
// zero at creation time; live values come from contract accessors, not the
// payload.
const wishSchema = `{
  "type": "object",
  "required": ["type", "content", "creator", "createdAt"],
  "properties": {
    "type": {"const": "wish"},
    "nickname": {"type": "string", "maxLength": 64},
    "content": {"type": "string", "minLength": 1, "maxLength": 2048},
    "fileIds": {"type": "array", "items": {"type": "string"}},
    "creator": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "createdAt": {"type": "integer", "minimum": 0},
    "likes": {"type": "integer", "const": 0},
    "donations": {"type": "integer", "const": 0}
  }
}`

// sealSchema constrains the legacy seal envelope. Seals carry no type
// discriminator on-chain; the kind is chosen by the caller.
const sealSchema = `{
  "type": "object",
  "required": ["content", "unlockTime", "creator", "createdAt"],
  "properties": {
    "content": {"type": "string", "minLength": 1},
    "unlockTime": {"type": "integer", "minimum": 0},
    "mediaIds": {"type": "array", "items": {"type": "string"}},
    "creator": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "createdAt": {"type": "integer", "minimum": 0}
  }
}`

// Validator validates envelopes against their JSON schemas before encode.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator creates a new schema validator with all supported envelope
// schemas compiled.
func NewValidator() (*Validator, error) {
	v := &Validator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
	if err := v.loadSchema("wish", wishSchema); err != nil {
		return nil, fmt.Errorf("failed to load wish schema: %w", err)
	}
	if err := v.loadSchema("seal", sealSchema); err != nil {
		return nil, fmt.Errorf("failed to load seal schema: %w", err)
	}
	return v, nil
}

// loadSchema compiles a single schema and stores it under its envelope kind.
func (v *Validator) loadSchema(kind, schemaJSON string) error {
	loader := gojsonschema.NewStringLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", kind, err)
	}
	v.schemas[kind] = schema
	return nil
}

// Validate checks an envelope value against the schema for the given kind.
// The value may be any JSON-marshalable shape; typically a codec.Envelope.
func (v *Validator) Validate(kind string, envelope interface{}) error {
	if !SupportedEnvelopes[kind] {
		return fmt.Errorf("unsupported envelope kind: %s", kind)
	}

	schema, exists := v.schemas[kind]
	if !exists {
		return fmt.Errorf("schema not found for kind: %s", kind)
	}

	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(envelopeJSON))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
