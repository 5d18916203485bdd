package formflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeCondition_UnmarshalAndEvaluate(t *testing.T) {
	jsonFilter := `
{
    "l": "and",
    "c": [
        {
            "a": "guests",
            "v": "gt:1"
        },
        {
            "l": "or",
            "c": [
                {
                    "a": "ticket",
                    "v": "vip"
                },
                {
                    "a": "company",
                    "v": "starts_with:A"
                }
            ]
        }
    ]
}
`

	var root CompositeCondition
	if err := json.Unmarshal([]byte(jsonFilter), &root); err != nil {
		t.Fatalf("failed to unmarshal composite condition: %v", err)
	}

	if root.Logic != LogicAnd {
		t.Fatalf("expected root logic to be 'and', got %s", root.Logic)
	}

	cases := []struct {
		values map[string]any
		want   bool
	}{
		{map[string]any{"guests": "2", "ticket": "vip"}, true},
		{map[string]any{"guests": float64(3), "company": "Acme"}, true},
		{map[string]any{"guests": "1", "ticket": "vip"}, false},
		{map[string]any{"guests": "5", "ticket": "standard", "company": "Bolt"}, false},
		{map[string]any{}, false},
	}

	for _, c := range cases {
		got, err := root.Evaluate(c.values)
		if err != nil {
			t.Fatalf("unexpected evaluation error for %v: %v", c.values, err)
		}
		if got != c.want {
			t.Fatalf("unexpected result for %v: expected %v got %v", c.values, c.want, got)
		}
	}
}

func TestCompositeCondition_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"group without logic", `{"c":[{"a":"ticket","v":"vip"}]}`, `needs "l"`},
		{"unsupported logic", `{"l":"xor","c":[]}`, "unknown logic: xor"},
		{"child without field", `{"l":"or","c":[{"a":"ticket","v":"vip"},{"v":"yes"}]}`, `condition 1: condition must have "l" or "a"`},
		{"child without value", `{"l":"and","c":[{"a":"attending"}]}`, `field condition on attending needs a value`},
		{"malformed", `{"l":`, "unexpected end of JSON input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c CompositeCondition
			err := json.Unmarshal([]byte(tt.json), &c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompositeCondition_EmptyGroups(t *testing.T) {
	var and, or CompositeCondition
	require.NoError(t, json.Unmarshal([]byte(`{"l":"and","c":[]}`), &and))
	require.NoError(t, json.Unmarshal([]byte(`{"l":"or"}`), &or))
	assert.Nil(t, and.Conditions)
	assert.False(t, and.IsLeaf())

	ok, err := and.Evaluate(nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = or.Evaluate(nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFieldCondition_Decode(t *testing.T) {
	cond, err := unmarshalCondition([]byte(`{"a":"attending","v":"yes"}`))
	require.NoError(t, err)
	require.IsType(t, &FieldCondition{}, cond)
	assert.Equal(t, &FieldCondition{Field: "attending", Value: "yes"}, cond)
	assert.True(t, cond.IsLeaf())

	var fc FieldCondition
	err = json.Unmarshal([]byte(`{"v":"yes"}`), &fc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `needs a field name`)
}

func TestFieldCondition_Evaluate(t *testing.T) {
	values := map[string]any{
		"ticket":  "vip",
		"guests":  "3",
		"age":     float64(42),
		"topics":  []any{"go", "rust"},
		"blank":   "  ",
		"agree":   true,
		"arrival": "10:30",
	}

	tests := []struct {
		name  string
		field string
		value string
		want  bool
	}{
		{"bare value equals", "ticket", "vip", true},
		{"explicit equals", "ticket", "equals:vip", true},
		{"not equals", "ticket", "not_equals:vip", false},
		{"gt numeric string", "guests", "gt:2", true},
		{"gte float", "age", "gte:42", true},
		{"lt", "age", "lt:40", false},
		{"lte", "guests", "lte:3", true},
		{"starts with", "ticket", "starts_with:v", true},
		{"contains", "ticket", "contains:ip", true},
		{"list membership", "topics", "rust", true},
		{"list not equals", "topics", "not_equals:go", false},
		{"empty on blank string", "blank", "empty", true},
		{"empty on missing", "missing", "empty", true},
		{"not empty", "ticket", "not_empty", true},
		{"boolean true", "agree", "true", true},
		{"colon inside plain value", "arrival", "10:30", true},
		{"numeric compare on missing", "missing", "gt:1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &FieldCondition{Field: tt.field, Value: tt.value}
			got, err := fc.Evaluate(values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldCondition_EvaluateInvalidOperand(t *testing.T) {
	fc := &FieldCondition{Field: "guests", Value: "gt:many"}
	_, err := fc.Evaluate(map[string]any{"guests": "3"})
	assert.Error(t, err)

	fc = &FieldCondition{Field: "guests", Value: "gt:"}
	_, err = fc.Evaluate(map[string]any{"guests": "3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no operand")
}

func TestConditionalLogic_Visible(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		values map[string]any
		want   bool
	}{
		{
			name:   "show when matched",
			json:   `{"action":"show","when":{"a":"ticket","v":"vip"}}`,
			values: map[string]any{"ticket": "vip"},
			want:   true,
		},
		{
			name:   "show hidden when not matched",
			json:   `{"action":"show","when":{"a":"ticket","v":"vip"}}`,
			values: map[string]any{"ticket": "standard"},
			want:   false,
		},
		{
			name:   "hide when matched",
			json:   `{"action":"hide","when":{"a":"attending","v":"no"}}`,
			values: map[string]any{"attending": "no"},
			want:   false,
		},
		{
			name:   "action defaults to show",
			json:   `{"when":{"a":"ticket","v":"not_empty"}}`,
			values: map[string]any{"ticket": "x"},
			want:   true,
		},
		{
			name:   "evaluation error leaves field visible",
			json:   `{"action":"show","when":{"a":"guests","v":"gt:abc"}}`,
			values: map[string]any{"guests": "3"},
			want:   true,
		},
		{
			name:   "no condition is visible",
			json:   `{"action":"hide"}`,
			values: nil,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logic ConditionalLogic
			require.NoError(t, json.Unmarshal([]byte(tt.json), &logic))
			assert.Equal(t, tt.want, logic.Visible(tt.values))
		})
	}
}

func TestConditionalLogic_UnknownAction(t *testing.T) {
	var logic ConditionalLogic
	err := json.Unmarshal([]byte(`{"action":"toggle","when":{"a":"x","v":"1"}}`), &logic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown conditional action")
}

func TestConditionalLogic_NilIsVisible(t *testing.T) {
	var logic *ConditionalLogic
	assert.True(t, logic.Visible(map[string]any{}))
}
