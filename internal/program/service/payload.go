package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	dErrors "cardgate/pkg/domain-errors"
)

const payloadSchemaURL = "https://cardgate.schemas.local/program/payload.schema.json"

// payloadSchema accepts any JSON object or array; scalar payloads cannot hold
// sector data.
const payloadSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": ["object", "array"]
}`

// PayloadValidator checks program payloads against a compiled JSON Schema.
type PayloadValidator struct {
	schema *jsonschema.Schema
}

// NewPayloadValidator compiles the default payload schema.
func NewPayloadValidator() (*PayloadValidator, error) {
	return NewPayloadValidatorWithSchema(payloadSchema)
}

// NewPayloadValidatorWithSchema compiles a custom schema, e.g. one that pins the
// sector layout of a specific card type.
func NewPayloadValidatorWithSchema(schema string) (*PayloadValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(payloadSchemaURL, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("payload schema load failed: %w", err)
	}
	compiled, err := c.Compile(payloadSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("payload schema compile failed: %w", err)
	}
	return &PayloadValidator{schema: compiled}, nil
}

// Validate returns a validation error when raw is not well-formed JSON or
// does not satisfy the schema.
func (v *PayloadValidator) Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return dErrors.New(dErrors.CodeValidation, "payload is not valid JSON")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeValidation, "payload must be a single JSON document")
	}
	if err := v.schema.Validate(doc); err != nil {
		return dErrors.New(dErrors.CodeValidation, "payload must be a JSON object or array")
	}
	return nil
}
