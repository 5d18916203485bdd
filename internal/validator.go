package internal

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lychee-technology/formflow"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const dateLayout = "2006-01-02"

// rule label used for failures that come from the field type rather than a declared rule
const typeRuleLabel = "type"

// CustomPredicate reports whether value satisfies a named custom rule.
type CustomPredicate func(value any) bool

type ruleCheck func(v *Validator, rule formflow.ValidationRule, value any) (ok bool, defaultMessage string)

// Validator evaluates validation rules against field values. All rules of a
// field run; every failing rule contributes one message.
type Validator struct {
	mu       sync.RWMutex
	custom   map[string]CustomPredicate
	patterns sync.Map // pattern -> *regexp.Regexp or error
	checks   map[formflow.RuleType]ruleCheck
}

func NewValidator() *Validator {
	return &Validator{
		custom: make(map[string]CustomPredicate),
		checks: map[formflow.RuleType]ruleCheck{
			formflow.RuleRequired:  checkRequired,
			formflow.RuleMin:       checkMin,
			formflow.RuleMax:       checkMax,
			formflow.RuleMinLength: checkMinLength,
			formflow.RuleMaxLength: checkMaxLength,
			formflow.RulePattern:   checkPattern,
			formflow.RuleEmail:     checkEmail,
			formflow.RuleCustom:    checkCustom,
		},
	}
}

// RegisterCustom makes a predicate available to rules of type custom.
func (v *Validator) RegisterCustom(name string, fn CustomPredicate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if fn == nil {
		delete(v.custom, name)
		return
	}
	v.custom[name] = fn
}

func (v *Validator) ValidateField(value any, rules []formflow.ValidationRule) formflow.ValidationResult {
	errs := v.applyRules(value, rules)
	return formflow.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// ValidateDefinition applies the field's declared rules followed by the
// rules implied by its type.
func (v *Validator) ValidateDefinition(field formflow.FieldDefinition, value any) formflow.ValidationResult {
	if !field.Type.IsInput() {
		return formflow.ValidationResult{IsValid: true, Errors: []string{}}
	}

	errs := v.applyRules(value, field.Validation)
	if !isEmptyValue(value) {
		if msg, ok := checkFieldType(field, value); !ok {
			ValidationFailures.WithLabelValues(typeRuleLabel).Inc()
			errs = append(errs, msg)
		}
	}
	return formflow.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// ValidateSubmission validates every visible input field of schema.
func (v *Validator) ValidateSubmission(schema *formflow.FormSchema, values map[string]any) formflow.FormValidationResult {
	result := formflow.FormValidationResult{Valid: true, Errors: make(map[string][]string)}
	if schema == nil {
		return result
	}
	for _, field := range schema.InputFields() {
		if !field.Conditional.Visible(values) {
			continue
		}
		r := v.ValidateDefinition(field, values[field.Name])
		if !r.IsValid {
			result.Valid = false
			result.Errors[field.Name] = r.Errors
		}
	}
	return result
}

func (v *Validator) applyRules(value any, rules []formflow.ValidationRule) []string {
	errs := []string{}
	empty := isEmptyValue(value)
	for _, rule := range rules {
		// a rule that can never be evaluated fails even on empty values
		msg := v.ruleDefect(rule)
		if msg == "" {
			if rule.Type != formflow.RuleRequired && empty {
				continue
			}
			var ok bool
			if ok, msg = v.checks[rule.Type](v, rule, value); ok {
				continue
			}
		}
		ValidationFailures.WithLabelValues(string(rule.Type)).Inc()
		if rule.Message != "" {
			msg = rule.Message
		}
		errs = append(errs, msg)
	}
	return errs
}

// ruleDefect returns the failure message for a rule whose type or argument
// makes it unevaluable, and "" for a usable rule.
func (v *Validator) ruleDefect(rule formflow.ValidationRule) string {
	if _, known := v.checks[rule.Type]; !known {
		return "Unsupported validation rule"
	}
	switch rule.Type {
	case formflow.RulePattern:
		pattern, ok := rule.Value.(string)
		if !ok || pattern == "" {
			return defectMessages[rule.Type]
		}
		if _, err := v.compile(pattern); err != nil {
			return defectMessages[rule.Type]
		}
	case formflow.RuleCustom:
		name, _ := rule.Value.(string)
		v.mu.RLock()
		_, found := v.custom[name]
		v.mu.RUnlock()
		if !found {
			return defectMessages[rule.Type]
		}
	default:
		if RuleArgumentError(rule) != nil {
			return defectMessages[rule.Type]
		}
	}
	return ""
}

var defectMessages = map[formflow.RuleType]string{
	formflow.RuleMin:       "Invalid minimum constraint",
	formflow.RuleMax:       "Invalid maximum constraint",
	formflow.RuleMinLength: "Invalid minimum length constraint",
	formflow.RuleMaxLength: "Invalid maximum length constraint",
	formflow.RulePattern:   "Invalid format",
	formflow.RuleCustom:    "Invalid value",
}

// RuleArgumentError reports a rule whose type is unknown or whose value does
// not fit its type. Custom predicate names are not resolved.
func RuleArgumentError(rule formflow.ValidationRule) error {
	switch rule.Type {
	case formflow.RuleRequired, formflow.RuleEmail:
		return nil
	case formflow.RuleMin, formflow.RuleMax:
		if _, ok := toFloat(rule.Value); !ok {
			return fmt.Errorf("%s rule needs a numeric value, got %v", rule.Type, rule.Value)
		}
	case formflow.RuleMinLength, formflow.RuleMaxLength:
		if _, ok := lengthBound(rule); !ok {
			return fmt.Errorf("%s rule needs a non-negative integer, got %v", rule.Type, rule.Value)
		}
	case formflow.RulePattern:
		pattern, ok := rule.Value.(string)
		if !ok || pattern == "" {
			return fmt.Errorf("pattern rule needs a regular expression")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	case formflow.RuleCustom:
		if name, ok := rule.Value.(string); !ok || name == "" {
			return fmt.Errorf("custom rule needs a predicate name")
		}
	default:
		return fmt.Errorf("unknown validation rule %q", rule.Type)
	}
	return nil
}

func checkRequired(_ *Validator, _ formflow.ValidationRule, value any) (bool, string) {
	const msg = "This field is required"
	if b, ok := value.(bool); ok {
		return b, msg
	}
	return !isEmptyValue(value), msg
}

// magnitude is the number compared by min/max: the element count for lists,
// the numeric value otherwise.
func magnitude(value any) (float64, bool) {
	if l, ok := listValue(value); ok {
		return float64(len(l)), true
	}
	return toFloat(value)
}

func checkMin(_ *Validator, rule formflow.ValidationRule, value any) (bool, string) {
	bound, ok := toFloat(rule.Value)
	if !ok {
		return false, "Invalid minimum constraint"
	}
	msg := fmt.Sprintf("Value must be at least %s", scalarString(bound))
	if _, isList := listValue(value); isList {
		msg = fmt.Sprintf("Select at least %s options", scalarString(bound))
	}
	got, ok := magnitude(value)
	return ok && got >= bound, msg
}

func checkMax(_ *Validator, rule formflow.ValidationRule, value any) (bool, string) {
	bound, ok := toFloat(rule.Value)
	if !ok {
		return false, "Invalid maximum constraint"
	}
	msg := fmt.Sprintf("Value must be at most %s", scalarString(bound))
	if _, isList := listValue(value); isList {
		msg = fmt.Sprintf("Select at most %s options", scalarString(bound))
	}
	got, ok := magnitude(value)
	return ok && got <= bound, msg
}

func lengthBound(rule formflow.ValidationRule) (int, bool) {
	f, ok := toFloat(rule.Value)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func checkMinLength(_ *Validator, rule formflow.ValidationRule, value any) (bool, string) {
	n, ok := lengthBound(rule)
	if !ok {
		return false, "Invalid minimum length constraint"
	}
	return utf8.RuneCountInString(displayValue(value)) >= n, fmt.Sprintf("Must be at least %d characters", n)
}

func checkMaxLength(_ *Validator, rule formflow.ValidationRule, value any) (bool, string) {
	n, ok := lengthBound(rule)
	if !ok {
		return false, "Invalid maximum length constraint"
	}
	return utf8.RuneCountInString(displayValue(value)) <= n, fmt.Sprintf("Must be at most %d characters", n)
}

func checkPattern(v *Validator, rule formflow.ValidationRule, value any) (bool, string) {
	const msg = "Invalid format"
	pattern, ok := rule.Value.(string)
	if !ok || pattern == "" {
		return false, msg
	}
	re, err := v.compile(pattern)
	if err != nil {
		return false, msg
	}
	return re.MatchString(displayValue(value)), msg
}

func (v *Validator) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := v.patterns.Load(pattern); ok {
		switch c := cached.(type) {
		case *regexp.Regexp:
			return c, nil
		case error:
			return nil, c
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		v.patterns.Store(pattern, err)
		return nil, err
	}
	v.patterns.Store(pattern, re)
	return re, nil
}

func checkEmail(_ *Validator, _ formflow.ValidationRule, value any) (bool, string) {
	s, ok := value.(string)
	return ok && emailPattern.MatchString(strings.TrimSpace(s)), "Please enter a valid email address"
}

func checkCustom(v *Validator, rule formflow.ValidationRule, value any) (bool, string) {
	const msg = "Invalid value"
	name, ok := rule.Value.(string)
	if !ok {
		return false, msg
	}
	v.mu.RLock()
	fn, found := v.custom[name]
	v.mu.RUnlock()
	if !found {
		return false, msg
	}
	return fn(value), msg
}

// checkFieldType applies the constraint implied by the field's type to a
// non-empty value.
func checkFieldType(field formflow.FieldDefinition, value any) (string, bool) {
	switch field.Type {
	case formflow.FieldTypeEmail:
		ok, msg := checkEmail(nil, formflow.ValidationRule{}, value)
		return msg, ok
	case formflow.FieldTypeNumber:
		_, ok := toFloat(value)
		return "Please enter a valid number", ok
	case formflow.FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return "Please enter a valid date (YYYY-MM-DD)", false
		}
		_, err := time.Parse(dateLayout, s)
		return "Please enter a valid date (YYYY-MM-DD)", err == nil
	case formflow.FieldTypeSelect, formflow.FieldTypeRadio:
		if len(field.Options) == 0 {
			return "", true
		}
		s, ok := value.(string)
		return "Please select a valid option", ok && field.HasOption(s)
	case formflow.FieldTypeCheckbox:
		if _, ok := value.(bool); ok {
			return "", true
		}
		if len(field.Options) == 0 {
			return "", true
		}
		const msg = "Please select valid options"
		if s, ok := value.(string); ok {
			return msg, field.HasOption(s)
		}
		items, ok := listValue(value)
		if !ok {
			return msg, false
		}
		for _, item := range items {
			if !field.HasOption(item) {
				return msg, false
			}
		}
		return msg, true
	default:
		return "", true
	}
}
