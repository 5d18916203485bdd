package formflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// ConditionalAction decides what a satisfied condition does to a field.
type ConditionalAction string

const (
	ActionShow ConditionalAction = "show"
	ActionHide ConditionalAction = "hide"
)

// Condition is a node of a condition tree evaluated against form values.
type Condition interface {
	IsLeaf() bool
	Evaluate(values map[string]any) (bool, error)
}

// ConditionalLogic toggles a field's visibility based on other field values.
type ConditionalLogic struct {
	Action ConditionalAction `json:"action"`
	When   Condition         `json:"when"`
}

// Visible reports whether a field guarded by this logic is displayed.
// Evaluation errors leave the field visible.
func (l *ConditionalLogic) Visible(values map[string]any) bool {
	if l == nil || l.When == nil {
		return true
	}
	matched, err := l.When.Evaluate(values)
	if err != nil {
		return true
	}
	if l.Action == ActionHide {
		return !matched
	}
	return matched
}

func (l *ConditionalLogic) UnmarshalJSON(data []byte) error {
	var alias struct {
		Action ConditionalAction `json:"action"`
		When   json.RawMessage   `json:"when"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	switch alias.Action {
	case "":
		l.Action = ActionShow
	case ActionShow, ActionHide:
		l.Action = alias.Action
	default:
		return fmt.Errorf("unknown conditional action: %s", alias.Action)
	}

	if len(alias.When) == 0 || string(alias.When) == "null" {
		l.When = nil
		return nil
	}

	cond, err := unmarshalCondition(alias.When)
	if err != nil {
		return err
	}
	l.When = cond
	return nil
}

// CompositeCondition combines child conditions with and/or logic.
type CompositeCondition struct {
	Logic      Logic       `json:"l"`
	Conditions []Condition `json:"c"`
}

func (c *CompositeCondition) IsLeaf() bool { return false }

// Evaluate returns true for an empty "and" and false for an empty "or".
func (c *CompositeCondition) Evaluate(values map[string]any) (bool, error) {
	switch c.Logic {
	case LogicAnd:
		for _, child := range c.Conditions {
			ok, err := child.Evaluate(values)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case LogicOr:
		for _, child := range c.Conditions {
			ok, err := child.Evaluate(values)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown logic: %s", c.Logic)
	}
}

func (c *CompositeCondition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Logic    Logic             `json:"l"`
		Children []json.RawMessage `json:"c"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Logic {
	case LogicAnd, LogicOr:
	case "":
		return fmt.Errorf("condition group needs \"l\" set to and/or")
	default:
		return fmt.Errorf("unknown logic: %s", raw.Logic)
	}

	children, err := decodeConditions(raw.Children)
	if err != nil {
		return err
	}
	c.Logic, c.Conditions = raw.Logic, children
	return nil
}

func decodeConditions(raws []json.RawMessage) ([]Condition, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	out := make([]Condition, len(raws))
	for i, raw := range raws {
		cond, err := unmarshalCondition(raw)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		out[i] = cond
	}
	return out, nil
}

// FieldCondition compares the value of one field. Value has the form
// "<op>:<operand>"; a bare operand means equals.
type FieldCondition struct {
	Field string `json:"a"`
	Value string `json:"v"`
}

func (fc *FieldCondition) IsLeaf() bool { return true }

func (fc *FieldCondition) UnmarshalJSON(data []byte) error {
	type plain FieldCondition
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Field == "":
		return fmt.Errorf("field condition needs a field name in \"a\"")
	case raw.Value == "":
		return fmt.Errorf("field condition on %s needs a value in \"v\"", raw.Field)
	}
	*fc = FieldCondition(raw)
	return nil
}

func (fc *FieldCondition) parseOp() (op string, operand string, err error) {
	switch fc.Value {
	case "empty", "not_empty":
		return fc.Value, "", nil
	}

	parts := strings.SplitN(fc.Value, ":", 2)
	if len(parts) == 1 {
		return "equals", fc.Value, nil
	}

	op, operand = parts[0], parts[1]
	switch op {
	case "equals", "not_equals", "gt", "gte", "lt", "lte", "starts_with", "contains":
	default:
		// a colon inside a plain value, e.g. "10:30"
		return "equals", fc.Value, nil
	}
	if operand == "" {
		return "", "", fmt.Errorf("condition value %q has an operator but no operand", fc.Value)
	}
	return op, operand, nil
}

func (fc *FieldCondition) Evaluate(values map[string]any) (bool, error) {
	op, operand, err := fc.parseOp()
	if err != nil {
		return false, err
	}

	actual := values[fc.Field]
	candidates := stringValues(actual)

	switch op {
	case "empty":
		return len(candidates) == 0, nil
	case "not_empty":
		return len(candidates) > 0, nil
	case "equals":
		return anyMatch(candidates, func(s string) bool { return s == operand }), nil
	case "not_equals":
		return !anyMatch(candidates, func(s string) bool { return s == operand }), nil
	case "starts_with":
		return anyMatch(candidates, func(s string) bool { return strings.HasPrefix(s, operand) }), nil
	case "contains":
		return anyMatch(candidates, func(s string) bool { return strings.Contains(s, operand) }), nil
	}

	want, err := strconv.ParseFloat(operand, 64)
	if err != nil {
		return false, fmt.Errorf("invalid numeric operand for '%s': %s", fc.Field, operand)
	}
	return anyMatch(candidates, func(s string) bool {
		got, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return false
		}
		switch op {
		case "gt":
			return got > want
		case "gte":
			return got >= want
		case "lt":
			return got < want
		default:
			return got <= want
		}
	}), nil
}

func anyMatch(values []string, fn func(string) bool) bool {
	for _, v := range values {
		if fn(v) {
			return true
		}
	}
	return false
}

// stringValues flattens a form value into its non-empty string forms.
func stringValues(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{val}
	case []string:
		out := make([]string, 0, len(val))
		for _, s := range val {
			out = append(out, stringValues(s)...)
		}
		return out
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, stringValues(item)...)
		}
		return out
	case bool:
		if !val {
			return nil
		}
		return []string{"true"}
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}
	case int:
		return []string{strconv.Itoa(val)}
	case int64:
		return []string{strconv.FormatInt(val, 10)}
	default:
		return []string{fmt.Sprint(val)}
	}
}

// unmarshalCondition decodes a group when "l" is present and a field
// condition when "a" is present.
func unmarshalCondition(data []byte) (Condition, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}

	var cond Condition
	switch {
	case keys["l"] != nil:
		cond = &CompositeCondition{}
	case keys["a"] != nil:
		cond = &FieldCondition{}
	default:
		return nil, fmt.Errorf("condition must have \"l\" or \"a\"")
	}
	if err := json.Unmarshal(data, cond); err != nil {
		return nil, err
	}
	return cond, nil
}
