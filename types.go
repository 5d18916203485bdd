package formflow

import (
	"time"
)

// FieldType tags the kind of a form field.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeEmail     FieldType = "email"
	FieldTypeNumber    FieldType = "number"
	FieldTypeTextarea  FieldType = "textarea"
	FieldTypeSelect    FieldType = "select"
	FieldTypeRadio     FieldType = "radio"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeFile      FieldType = "file"
	FieldTypeDate      FieldType = "date"
	FieldTypeDivider   FieldType = "divider"
	FieldTypeHeading   FieldType = "heading"
	FieldTypeParagraph FieldType = "paragraph"
)

// IsInput reports whether fields of this type carry a value.
// Decorative types are rendered but never validated or exported.
func (t FieldType) IsInput() bool {
	switch t {
	case FieldTypeDivider, FieldTypeHeading, FieldTypeParagraph:
		return false
	default:
		return true
	}
}

// IsKnown reports whether t is one of the supported field types.
func (t FieldType) IsKnown() bool {
	switch t {
	case FieldTypeText, FieldTypeEmail, FieldTypeNumber, FieldTypeTextarea,
		FieldTypeSelect, FieldTypeRadio, FieldTypeCheckbox, FieldTypeFile,
		FieldTypeDate, FieldTypeDivider, FieldTypeHeading, FieldTypeParagraph:
		return true
	default:
		return false
	}
}

// HasOptions reports whether values of this type are picked from FieldDefinition.Options.
func (t FieldType) HasOptions() bool {
	return t == FieldTypeSelect || t == FieldTypeRadio || t == FieldTypeCheckbox
}

// RuleType defines supported validation rules
type RuleType string

const (
	RuleRequired  RuleType = "required"
	RuleMin       RuleType = "min"
	RuleMax       RuleType = "max"
	RuleMinLength RuleType = "minLength"
	RuleMaxLength RuleType = "maxLength"
	RulePattern   RuleType = "pattern"
	RuleEmail     RuleType = "email"
	RuleCustom    RuleType = "custom"
)

// ValidationRule is a single constraint attached to a field.
// Value carries the rule argument: a bound for min/max, a regexp for
// pattern, or the registered predicate name for custom.
type ValidationRule struct {
	Type    RuleType `json:"type"`
	Value   any      `json:"value,omitempty"`
	Message string   `json:"message,omitempty"`
}

type FieldOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FieldDefinition describes one field of a form.
type FieldDefinition struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        FieldType         `json:"type"`
	Label       string            `json:"label"`
	Placeholder string            `json:"placeholder,omitempty"`
	HelpText    string            `json:"helpText,omitempty"`
	Options     []FieldOption     `json:"options,omitempty"`
	Validation  []ValidationRule  `json:"validation,omitempty"`
	Conditional *ConditionalLogic `json:"conditional,omitempty"`
}

// IsRequired reports whether the field carries a required rule.
func (f FieldDefinition) IsRequired() bool {
	for _, r := range f.Validation {
		if r.Type == RuleRequired {
			return true
		}
	}
	return false
}

// HasOption reports whether value is one of the field's option values.
func (f FieldDefinition) HasOption(value string) bool {
	for _, opt := range f.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

type FormSettings struct {
	SubmitText               string `json:"submitText,omitempty"`
	ConfirmationMessage      string `json:"confirmationMessage,omitempty"`
	AllowMultipleSubmissions bool   `json:"allowMultipleSubmissions"`
	RequireAuth              bool   `json:"requireAuth"`
}

const (
	DefaultSubmitText          = "Submit"
	DefaultConfirmationMessage = "Thank you for your submission!"
)

// FormSchema is the declarative description of a form.
// It is replaced as a whole on every save.
type FormSchema struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Fields      []FieldDefinition `json:"fields"`
	Settings    FormSettings      `json:"settings"`
	CreatedAt   time.Time         `json:"createdAt,omitzero"`
	UpdatedAt   time.Time         `json:"updatedAt,omitzero"`
}

// InputFields returns the value-carrying fields in schema order.
func (s *FormSchema) InputFields() []FieldDefinition {
	fields := make([]FieldDefinition, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Type.IsInput() {
			fields = append(fields, f)
		}
	}
	return fields
}

// Field looks up an input field by name.
func (s *FormSchema) Field(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Name == name && f.Type.IsInput() {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Submission is one stored set of values entered against a form.
type Submission struct {
	ID          string         `json:"id"`
	FormID      string         `json:"formId"`
	Data        map[string]any `json:"data"`
	SubmittedAt time.Time      `json:"submittedAt,omitzero"`
}

// ExportBundle carries a form together with its submissions.
type ExportBundle struct {
	Form             *FormSchema  `json:"form"`
	Submissions      []Submission `json:"submissions"`
	ExportedAt       time.Time    `json:"exportedAt"`
	TotalSubmissions int          `json:"totalSubmissions"`
}

// ValidationResult is the outcome of validating one value against its rules.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// FormValidationResult aggregates per-field errors keyed by field name.
type FormValidationResult struct {
	Valid  bool                `json:"valid"`
	Errors map[string][]string `json:"errors"`
}

// FirstError returns the first message recorded for the field, or "".
func (r FormValidationResult) FirstError(name string) string {
	if msgs := r.Errors[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// SubmissionSummary is an aggregate view of a form's submissions.
type SubmissionSummary struct {
	FormID           string                    `json:"formId"`
	TotalSubmissions int                       `json:"totalSubmissions"`
	PerDay           []DailyCount              `json:"perDay"`
	Fields           map[string]FieldBreakdown `json:"fields"`
}

type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type FieldBreakdown struct {
	Answered int          `json:"answered"`
	Values   []ValueCount `json:"values"`
}

type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
