package formflow

import (
	"context"
	"io"
	"time"
)

// FormStore persists form schemas and their submissions.
//
// Reads never fail loudly: GetAllForms and GetFormSubmissions return an empty
// slice when the underlying store cannot be read. Writes return a
// FormflowError with code STORAGE_WRITE_FAILED on storage failures.
type FormStore interface {
	// Form operations
	GetAllForms(ctx context.Context) []FormSchema
	GetForm(ctx context.Context, id string) (*FormSchema, error)
	SaveForm(ctx context.Context, schema *FormSchema) (*FormSchema, error)
	SaveFormIfMatch(ctx context.Context, schema *FormSchema, version string) (*FormSchema, error)
	FormVersion(schema *FormSchema) string
	DeleteForm(ctx context.Context, id string) error

	// Submission operations
	GetFormSubmissions(ctx context.Context, formID string) []Submission
	SaveSubmission(ctx context.Context, submission *Submission) (*Submission, error)

	// Export and import
	ExportFormData(ctx context.Context, formID string) (*ExportBundle, error)
	ExportCSV(ctx context.Context, formID string, w io.Writer) error
	ImportFormData(ctx context.Context, bundle *ExportBundle) (*ImportResult, error)
	ClearAllData(ctx context.Context) error

	// Ping checks that the underlying storage is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// ImportResult reports what an import added.
type ImportResult struct {
	FormID               string `json:"formId"`
	SubmissionsImported  int    `json:"submissionsImported"`
	SubmissionsSkipped   int    `json:"submissionsSkipped"`
	ReplacedExistingForm bool   `json:"replacedExistingForm"`
}

// SubmissionEvent is published after a submission is stored.
type SubmissionEvent struct {
	Type         string         `json:"type"`
	FormID       string         `json:"formId"`
	SubmissionID string         `json:"submissionId"`
	SubmittedAt  time.Time      `json:"submittedAt"`
	Data         map[string]any `json:"data"`
}

const EventSubmissionCreated = "submission.created"

// EventPublisher delivers submission events to a message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event SubmissionEvent) error
	Close() error
}
