package internal

import (
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestToFloat(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		expect float64
		ok     bool
	}{
		{name: "float64", input: 3.14, expect: 3.14, ok: true},
		{name: "int", input: 42, expect: 42, ok: true},
		{name: "numeric string", input: " 7 ", expect: 7, ok: true},
		{name: "scientific string", input: "1e3", expect: 1000, ok: true},
		{name: "json number", input: json.Number("2.5"), expect: 2.5, ok: true},
		{name: "non-numeric", input: "abc", ok: false},
		{name: "bool", input: true, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toFloat(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.expect, got, 1e-9)
			}
		})
	}
}

func TestIsEmptyValue(t *testing.T) {
	assert.True(t, isEmptyValue(nil))
	assert.True(t, isEmptyValue("   "))
	assert.True(t, isEmptyValue([]any{}))
	assert.True(t, isEmptyValue([]string{}))
	assert.False(t, isEmptyValue("a"))
	assert.False(t, isEmptyValue(float64(0)))
	assert.False(t, isEmptyValue(false))
	assert.False(t, isEmptyValue([]any{"x"}))
}

func TestDisplayValue(t *testing.T) {
	assert.Equal(t, "a, b", displayValue([]any{"a", "b"}))
	assert.Equal(t, "a, b", displayValue([]string{"a", "b"}))
	assert.Equal(t, "12.5", displayValue(12.5))
	assert.Equal(t, "true", displayValue(true))
	assert.Equal(t, "", displayValue(nil))
	assert.Equal(t, "Jo, Doe", displayValue("Jo, Doe"))
}

func TestCloneValues(t *testing.T) {
	src := map[string]any{"tags": []any{"a"}, "name": "Jo"}
	dst := cloneValues(src)
	dst["tags"].([]any)[0] = "changed"
	dst["name"] = "Al"

	assert.Equal(t, "a", src["tags"].([]any)[0])
	assert.Equal(t, "Jo", src["name"])
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "trim quotes and spaces", input: `  "a" . "b" .. "c"  `, expected: pgx.Identifier{"a", "b", "c"}.Sanitize()},
		{name: "mixed quoted and plain", input: `foo."Bar baz"`, expected: pgx.Identifier{"foo", "Bar baz"}.Sanitize()},
		{name: "all empty parts fallback", input: "...", expected: pgx.Identifier{"..."}.Sanitize()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeIdentifier(tt.input))
		})
	}
}
