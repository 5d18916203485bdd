package formflow

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeExport     ErrorType = "export"
	ErrorTypeImport     ErrorType = "import"
	ErrorTypeInternal   ErrorType = "internal"
)

// FormflowError is the error type returned by stores, validators and composers.
type FormflowError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	FormID  string         `json:"formId,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FormflowError) Error() string {
	if e.FormID != "" && e.Field != "" {
		return fmt.Sprintf("[%s:%s] form %s field '%s': %s", e.Type, e.Code, e.FormID, e.Field, e.Message)
	}
	if e.FormID != "" {
		return fmt.Sprintf("[%s:%s] form %s: %s", e.Type, e.Code, e.FormID, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *FormflowError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to a FormflowError
func (e *FormflowError) WithDetails(details map[string]any) *FormflowError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to a FormflowError
func (e *FormflowError) WithDetail(key string, value any) *FormflowError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a FormflowError
func (e *FormflowError) WithCause(cause error) *FormflowError {
	e.Cause = cause
	return e
}

// WithField adds field context to a FormflowError
func (e *FormflowError) WithField(field string) *FormflowError {
	e.Field = field
	return e
}

// WithForm adds form context to a FormflowError
func (e *FormflowError) WithForm(formID string) *FormflowError {
	e.FormID = formID
	return e
}

const (
	ErrCodeFormNotFound         = "FORM_NOT_FOUND"
	ErrCodeSubmissionNotFound   = "SUBMISSION_NOT_FOUND"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeDuplicateFieldName   = "DUPLICATE_FIELD_NAME"
	ErrCodeStorageWriteFailed   = "STORAGE_WRITE_FAILED"
	ErrCodeStorageReadFailed    = "STORAGE_READ_FAILED"
	ErrCodeVersionConflict      = "VERSION_CONFLICT"
	ErrCodeNoSubmissions        = "NO_SUBMISSIONS"
	ErrCodeInvalidImport        = "INVALID_IMPORT"
	ErrCodeSubmissionInProgress = "SUBMISSION_IN_PROGRESS"
	ErrCodeArchiveFailed        = "ARCHIVE_FAILED"
	ErrCodeArchiveBucketMissing = "ARCHIVE_BUCKET_NOT_FOUND"
	ErrCodeBadgeLayout          = "BADGE_LAYOUT_INVALID"
	ErrCodeQREncode             = "QR_ENCODE_FAILED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// NewFormflowError creates a new FormflowError
func NewFormflowError(errorType ErrorType, code, message string) *FormflowError {
	return &FormflowError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewFormNotFoundError creates a form not found error
func NewFormNotFoundError(formID string) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeFormNotFound,
		Message: "form not found",
		FormID:  formID,
		Details: make(map[string]any),
	}
}

// NewValidationError creates a validation error
func NewValidationError(field, message string) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewDuplicateFieldNameError reports a field name used more than once in a schema
func NewDuplicateFieldNameError(formID, field string) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeDuplicateFieldName,
		Message: "field name must be unique within a form",
		FormID:  formID,
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewStorageWriteError wraps a failed write
func NewStorageWriteError(message string, cause error) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorageWriteFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewStorageReadError wraps a failed read
func NewStorageReadError(message string, cause error) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorageReadFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewVersionConflictError reports a save against a stale version
func NewVersionConflictError(formID, expected, actual string) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeVersionConflict,
		Message: "form was modified by another writer",
		FormID:  formID,
		Details: map[string]any{"expected": expected, "actual": actual},
	}
}

// NewNoSubmissionsError is returned by the CSV export when there is nothing to export
func NewNoSubmissionsError(formID string) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeExport,
		Code:    ErrCodeNoSubmissions,
		Message: "no submissions to export",
		FormID:  formID,
		Details: make(map[string]any),
	}
}

// NewInvalidImportError rejects a malformed import bundle
func NewInvalidImportError(message string) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeImport,
		Code:    ErrCodeInvalidImport,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewSubmissionInProgressError is returned while a previous submit has not completed
func NewSubmissionInProgressError(formID string) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeSubmissionInProgress,
		Message: "a submission is already in progress",
		FormID:  formID,
		Details: make(map[string]any),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *FormflowError {
	return &FormflowError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// IsErrorCode reports whether err is a FormflowError carrying code.
func IsErrorCode(err error, code string) bool {
	var fe *FormflowError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found FormflowError.
func IsNotFound(err error) bool {
	var fe *FormflowError
	return errors.As(err, &fe) && fe.Type == ErrorTypeNotFound
}
