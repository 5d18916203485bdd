package internal

import (
	"context"
	"sync"

	"github.com/lychee-technology/formflow"
)

// SubmitFunc receives the values of a valid form. The session performs no
// I/O of its own; storing or sending the values is left to this callback.
type SubmitFunc func(ctx context.Context, values map[string]any) error

// FormSession holds the interaction state of one form being filled in:
// current values, field errors, touched fields and the submission gate.
type FormSession struct {
	schema    *formflow.FormSchema
	validator *Validator

	mu         sync.Mutex
	values     map[string]any
	errors     map[string][]string
	touched    map[string]bool
	submitting bool
	submitted  bool
}

func NewFormSession(schema *formflow.FormSchema, validator *Validator, initial map[string]any) *FormSession {
	if validator == nil {
		validator = NewValidator()
	}
	return &FormSession{
		schema:    schema,
		validator: validator,
		values:    cloneValues(initial),
		errors:    make(map[string][]string),
		touched:   make(map[string]bool),
	}
}

func (s *FormSession) Schema() *formflow.FormSchema {
	return s.schema
}

// Change sets the value of an input field and clears its previous error.
// Names that are not input fields of the schema are ignored.
func (s *FormSession) Change(name string, value any) bool {
	if _, ok := s.schema.Field(name); !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	delete(s.errors, name)
	return true
}

// Blur marks the field as touched and validates that field only.
func (s *FormSession) Blur(name string) []string {
	field, ok := s.schema.Field(name)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[name] = true
	if !field.Conditional.Visible(s.values) {
		delete(s.errors, name)
		return nil
	}
	res := s.validator.ValidateDefinition(field, s.values[name])
	if res.IsValid {
		delete(s.errors, name)
		return nil
	}
	s.errors[name] = res.Errors
	return res.Errors
}

// Submit validates the whole form and, when it is valid, hands a copy of
// the values to fn. While fn runs further submits fail with
// SUBMISSION_IN_PROGRESS. An invalid form returns its validation result and
// a nil error without calling fn.
func (s *FormSession) Submit(ctx context.Context, fn SubmitFunc) (formflow.FormValidationResult, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return formflow.FormValidationResult{}, formflow.NewSubmissionInProgressError(s.schema.ID)
	}

	for _, f := range s.schema.InputFields() {
		s.touched[f.Name] = true
	}
	result := s.validator.ValidateSubmission(s.schema, s.values)
	s.errors = make(map[string][]string, len(result.Errors))
	for name, errs := range result.Errors {
		s.errors[name] = errs
	}
	if !result.Valid {
		s.mu.Unlock()
		return result, nil
	}

	s.submitting = true
	values := VisibleValues(s.schema, s.values)
	s.mu.Unlock()

	err := fn(ctx, values)

	s.mu.Lock()
	s.submitting = false
	if err == nil {
		s.submitted = true
	}
	s.mu.Unlock()
	return result, err
}

// VisibleValues copies the values of schema's visible input fields. Values of
// hidden or unknown fields are dropped.
func VisibleValues(schema *formflow.FormSchema, values map[string]any) map[string]any {
	out := make(map[string]any)
	for _, f := range schema.InputFields() {
		v, ok := values[f.Name]
		if !ok || !f.Conditional.Visible(values) {
			continue
		}
		out[f.Name] = v
	}
	return cloneValues(out)
}

// Visible evaluates the field's conditional logic against current values.
func (s *FormSession) Visible(field formflow.FieldDefinition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return field.Conditional.Visible(s.values)
}

func (s *FormSession) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneValues(s.values)
}

func (s *FormSession) Value(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

// Errors returns the current error messages of a field, touched or not.
func (s *FormSession) Errors(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors[name]...)
}

// VisibleError returns the first error of a touched field, or "".
func (s *FormSession) VisibleError(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.touched[name] || len(s.errors[name]) == 0 {
		return ""
	}
	return s.errors[name][0]
}

func (s *FormSession) Touched(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched[name]
}

func (s *FormSession) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

func (s *FormSession) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}
