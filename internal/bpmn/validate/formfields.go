// Package validate checks inbound payloads against a JSON schema. The HTTP
// layer runs userTask form submissions through it before they reach the
// correlation bus, so a malformed submission surfaces as a request-time
// validation error instead of silently setting bogus context variables.
// ValidateJSON checks raw JSON bodies against a raw schema; the webhook
// handlers do not call it.
//
// The compile-then-validate shape (json.Unmarshal the schema and the
// payload into `any`, then jsonschema.Compiler.AddResource/Compile/Validate)
// is grounded on the teacher's registry/service.go
// validatePayloadJSONAgainstSchema helper, which validates tool-call
// payloads the same way.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// FieldSpec describes one userTask.formFields entry (spec §4.5's userTask
// row leaves the exact formFields shape unspecified; this is the minimal
// shape original_source's form renderer expects: a type, an optional
// required flag, and for "select" fields an enumeration of allowed values).
type FieldSpec struct {
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Enum     []string `json:"enum,omitempty"`
}

// SchemaFromFormFields compiles a userTask's formFields declaration
// (map[string]FieldSpec-shaped map[string]any, as stored on
// model.Element.Properties) into a JSON schema validating a submitted
// values map.
func SchemaFromFormFields(formFields map[string]any) (*jsonschema.Schema, error) {
	properties := make(map[string]any, len(formFields))
	var required []string

	for name, raw := range formFields {
		spec, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		prop := map[string]any{}
		if t, ok := spec["type"].(string); ok && t != "" {
			prop["type"] = t
		}
		if enum, ok := spec["enum"].([]any); ok && len(enum) > 0 {
			prop["enum"] = enum
		}
		properties[name] = prop
		if req, ok := spec["required"].(bool); ok && req {
			required = append(required, name)
		}
	}

	schemaDoc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schemaDoc["required"] = required
	}

	return compile(schemaDoc)
}

// ValidateFormSubmission validates values (a userTask.complete message's
// form payload) against formFields, returning a descriptive error on the
// first violation.
func ValidateFormSubmission(formFields map[string]any, values map[string]any) error {
	if len(formFields) == 0 {
		return nil
	}
	schema, err := SchemaFromFormFields(formFields)
	if err != nil {
		return err
	}
	return schema.Validate(values)
}

func compile(schemaDoc map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("validate: add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("validate: compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSON validates raw JSON payload bytes against a raw JSON schema,
// for webhook bodies and any other inbound payload that isn't already
// decoded into a map (mirrors the teacher's
// validatePayloadJSONAgainstSchema signature directly).
func ValidateJSON(payload, schemaBytes []byte) error {
	if len(schemaBytes) == 0 {
		return nil
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("validate: unmarshal schema: %w", err)
	}
	var payloadDoc any
	if err := json.Unmarshal(payload, &payloadDoc); err != nil {
		return fmt.Errorf("validate: unmarshal payload: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("validate: add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("validate: compile schema: %w", err)
	}
	return schema.Validate(payloadDoc)
}
