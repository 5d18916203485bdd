package internal

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/formflow"
)

const jsonSchemaDialect = "https://json-schema.org/draft/2020-12/schema"

// BuildJSONSchema describes the submission payload of a form as a JSON
// Schema document. Declared rules are carried over where JSON Schema has an
// equivalent keyword.
func BuildJSONSchema(form *formflow.FormSchema) (*jsonschema.Schema, error) {
	properties := make(map[string]any)
	required := []string{}
	for _, f := range form.InputFields() {
		properties[f.Name] = describeField(f)
		if f.IsRequired() && f.Conditional == nil {
			required = append(required, f.Name)
		}
	}

	schemaMap := map[string]any{
		"$schema":              jsonSchemaDialect,
		"$id":                  "urn:formflow:form:" + form.ID,
		"title":                form.Title,
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if form.Description != "" {
		schemaMap["description"] = form.Description
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}
	return toSchema(schemaMap)
}

func describeField(f formflow.FieldDefinition) map[string]any {
	prop := map[string]any{"title": f.Label}
	if f.HelpText != "" {
		prop["description"] = f.HelpText
	}

	optionValues := make([]any, 0, len(f.Options))
	for _, opt := range f.Options {
		optionValues = append(optionValues, opt.Value)
	}

	switch f.Type {
	case formflow.FieldTypeNumber:
		prop["type"] = "number"
	case formflow.FieldTypeEmail:
		prop["type"] = "string"
		prop["format"] = "email"
	case formflow.FieldTypeDate:
		prop["type"] = "string"
		prop["format"] = "date"
	case formflow.FieldTypeSelect, formflow.FieldTypeRadio:
		prop["type"] = "string"
		if len(optionValues) > 0 {
			prop["enum"] = optionValues
		}
	case formflow.FieldTypeCheckbox:
		if len(optionValues) > 0 {
			prop["type"] = "array"
			prop["items"] = map[string]any{"type": "string", "enum": optionValues}
		} else {
			prop["type"] = "boolean"
		}
	default:
		prop["type"] = "string"
	}

	for _, rule := range f.Validation {
		applyRuleKeyword(prop, rule)
	}
	return prop
}

func applyRuleKeyword(prop map[string]any, rule formflow.ValidationRule) {
	isArray := prop["type"] == "array"
	switch rule.Type {
	case formflow.RuleMin, formflow.RuleMax:
		bound, ok := toFloat(rule.Value)
		if !ok {
			return
		}
		switch {
		case isArray && rule.Type == formflow.RuleMin:
			prop["minItems"] = int(bound)
		case isArray:
			prop["maxItems"] = int(bound)
		case rule.Type == formflow.RuleMin:
			prop["minimum"] = bound
		default:
			prop["maximum"] = bound
		}
	case formflow.RuleMinLength, formflow.RuleMaxLength:
		n, ok := lengthBound(rule)
		if !ok || prop["type"] != "string" {
			return
		}
		if rule.Type == formflow.RuleMinLength {
			prop["minLength"] = n
		} else {
			prop["maxLength"] = n
		}
	case formflow.RulePattern:
		if p, ok := rule.Value.(string); ok && p != "" && prop["type"] == "string" {
			prop["pattern"] = p
		}
	case formflow.RuleEmail:
		if prop["type"] == "string" {
			prop["format"] = "email"
		}
	}
}

// structuralSchema accepts any submission whose values have a plausible
// shape for their field. Content rules are left to the Validator.
func structuralSchema(form *formflow.FormSchema) map[string]any {
	properties := make(map[string]any)
	for _, f := range form.InputFields() {
		switch f.Type {
		case formflow.FieldTypeNumber:
			properties[f.Name] = map[string]any{"type": []any{"number", "string", "null"}}
		case formflow.FieldTypeCheckbox:
			properties[f.Name] = map[string]any{
				"type":  []any{"array", "boolean", "string", "null"},
				"items": map[string]any{"type": []any{"string", "number", "boolean"}},
			}
		default:
			properties[f.Name] = map[string]any{"type": []any{"string", "null"}}
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
}

// ValidateStructure checks the shape of a JSON submission payload: unknown
// keys and values of the wrong JSON type are rejected.
func ValidateStructure(form *formflow.FormSchema, values map[string]any) error {
	schema, err := toSchema(structuralSchema(form))
	if err != nil {
		return formflow.NewInternalError("failed to build structural schema", err)
	}

	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return formflow.NewInternalError("failed to resolve JSON schema", err)
	}

	if values == nil {
		values = map[string]any{}
	}
	if err := resolved.Validate(values); err != nil {
		return formflow.NewValidationError("", "submission does not match the form structure").
			WithForm(form.ID).
			WithCause(err)
	}
	return nil
}

func toSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	var schema jsonschema.Schema
	schemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
	}
	return &schema, nil
}
