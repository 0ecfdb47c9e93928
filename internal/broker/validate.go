package broker

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Schema names for messages that are not page requests
const (
	schemaApprovalReply = "approval_reply"
	schemaPopupEvent    = "popup_event"
)

// Validator checks raw envelopes against the JSON schema for their type
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to read schemas: %w", err)
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(entries))}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".schema.json")
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}

		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		schemaURL := fmt.Sprintf("https://dapp-broker.schemas.local/%s.schema.json", name)
		if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
		}
		compiled, err := c.Compile(schemaURL)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[name] = compiled
	}
	return v, nil
}

// Known reports whether a schema exists for name
func (v *Validator) Known(name string) bool {
	_, ok := v.schemas[name]
	return ok
}

// Validate checks raw against the schema registered under name
func (v *Validator) Validate(name string, raw []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("no schema for %q", name)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return schema.Validate(doc)
}
