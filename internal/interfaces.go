package internal

import (
	"context"

	"github.com/lychee-technology/formflow"
)

// FormRepository is the persistence boundary of the form store. A missing
// form is reported as a nil schema, not as an error.
type FormRepository interface {
	// Form operations
	ListForms(ctx context.Context) ([]formflow.FormSchema, error)
	GetForm(ctx context.Context, id string) (*formflow.FormSchema, error)
	UpsertForm(ctx context.Context, form *formflow.FormSchema) error
	// DeleteForm removes the form and its submissions atomically.
	DeleteForm(ctx context.Context, id string) (bool, error)

	// Submission operations
	ListSubmissions(ctx context.Context, formID string) ([]formflow.Submission, error)
	// InsertSubmissions appends submissions whose id is not stored yet and
	// returns how many were added.
	InsertSubmissions(ctx context.Context, submissions []formflow.Submission) (int, error)

	// Import upserts the form and inserts its submissions in one transaction.
	Import(ctx context.Context, form *formflow.FormSchema, submissions []formflow.Submission) (int, error)
	Clear(ctx context.Context) error
	// Ping reports whether the backing database answers.
	Ping(ctx context.Context) error
	Close() error
}
