package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/lychee-technology/formflow"
	"go.uber.org/zap"
)

var _ formflow.FormStore = (*FormStore)(nil)

// FormStore implements formflow.FormStore on top of a FormRepository.
type FormStore struct {
	repo      FormRepository
	publisher formflow.EventPublisher
	nowFunc   func() time.Time
	newID     func(time.Time) (string, error)
	writeMu   sync.Mutex
}

// NewFormStore creates a store. publisher may be nil.
func NewFormStore(repo FormRepository, publisher formflow.EventPublisher) *FormStore {
	return &FormStore{
		repo:      repo,
		publisher: publisher,
		nowFunc:   time.Now,
		newID:     NewSubmissionID,
	}
}

func (s *FormStore) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFunc = now
}

func (s *FormStore) now() time.Time {
	return s.nowFunc().UTC()
}

func (s *FormStore) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close releases the repository and the event publisher.
func (s *FormStore) Close() error {
	var firstErr error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.repo.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func storageWriteError(op, message string, err error) error {
	StorageErrors.WithLabelValues(op).Inc()
	return formflow.NewStorageWriteError(message, err).WithDetail("operation", op)
}

func logReadFailure(op string, err error, keysAndValues ...any) {
	StorageErrors.WithLabelValues(op).Inc()
	zap.S().Warnw("storage read failed, returning empty result", append([]any{"operation", op, "error", err}, keysAndValues...)...)
}

func (s *FormStore) GetAllForms(ctx context.Context) []formflow.FormSchema {
	forms, err := s.repo.ListForms(ctx)
	if err != nil {
		logReadFailure("list_forms", err)
		return []formflow.FormSchema{}
	}
	return forms
}

func (s *FormStore) GetForm(ctx context.Context, id string) (*formflow.FormSchema, error) {
	form, err := s.repo.GetForm(ctx, id)
	if err != nil {
		logReadFailure("get_form", err, "formId", id)
		return nil, formflow.NewFormNotFoundError(id).WithCause(err)
	}
	if form == nil {
		return nil, formflow.NewFormNotFoundError(id)
	}
	return form, nil
}

// validateDefinition enforces the save-time invariants of a schema: known
// field types, unique non-empty names among input fields and well-formed
// validation rules.
func validateDefinition(schema *formflow.FormSchema) error {
	seen := make(map[string]struct{}, len(schema.Fields))
	for _, f := range schema.Fields {
		if !f.Type.IsKnown() {
			return formflow.NewValidationError(f.Name, fmt.Sprintf("unknown field type %q", f.Type)).WithForm(schema.ID)
		}
		if !f.Type.IsInput() {
			continue
		}
		if f.Name == "" {
			return formflow.NewValidationError("", "input fields must have a name").
				WithForm(schema.ID).
				WithDetail("fieldId", f.ID)
		}
		if _, dup := seen[f.Name]; dup {
			return formflow.NewDuplicateFieldNameError(schema.ID, f.Name)
		}
		seen[f.Name] = struct{}{}
		for i, rule := range f.Validation {
			if err := RuleArgumentError(rule); err != nil {
				return formflow.NewValidationError(f.Name, err.Error()).
					WithForm(schema.ID).
					WithDetail("rule", i)
			}
		}
	}
	return nil
}

// prepareForm copies schema, fills generated ids and checks the definition.
func prepareForm(schema *formflow.FormSchema) (*formflow.FormSchema, error) {
	if schema == nil {
		return nil, formflow.NewValidationError("", "form cannot be nil")
	}
	form := *schema
	form.Fields = append([]formflow.FieldDefinition(nil), schema.Fields...)
	if form.Fields == nil {
		form.Fields = []formflow.FieldDefinition{}
	}

	if form.ID == "" {
		id, err := NewFormID()
		if err != nil {
			return nil, formflow.NewInternalError("failed to generate form id", err)
		}
		form.ID = id
	}

	ids := make([]string, len(form.Fields))
	for i, f := range form.Fields {
		ids[i] = f.ID
	}
	for i, id := range assignFieldIDs(ids) {
		form.Fields[i].ID = id
	}

	if err := validateDefinition(&form); err != nil {
		return nil, err
	}
	return &form, nil
}

func (s *FormStore) SaveForm(ctx context.Context, schema *formflow.FormSchema) (*formflow.FormSchema, error) {
	return s.saveForm(ctx, schema, nil)
}

// SaveFormIfMatch saves schema only when the stored form's version equals
// version. An empty version requires that the form does not exist yet.
func (s *FormStore) SaveFormIfMatch(ctx context.Context, schema *formflow.FormSchema, version string) (*formflow.FormSchema, error) {
	return s.saveForm(ctx, schema, &version)
}

func (s *FormStore) saveForm(ctx context.Context, schema *formflow.FormSchema, expectedVersion *string) (*formflow.FormSchema, error) {
	form, err := prepareForm(schema)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.repo.GetForm(ctx, form.ID)
	if err != nil {
		return nil, storageWriteError("save_form", "failed to read existing form", err)
	}

	if expectedVersion != nil {
		current := ""
		if existing != nil {
			current = s.FormVersion(existing)
		}
		if current != *expectedVersion {
			return nil, formflow.NewVersionConflictError(form.ID, *expectedVersion, current)
		}
	}

	now := s.now()
	form.CreatedAt = now
	if existing != nil && !existing.CreatedAt.IsZero() {
		form.CreatedAt = existing.CreatedAt
	}
	form.UpdatedAt = now

	if err := s.repo.UpsertForm(ctx, form); err != nil {
		return nil, storageWriteError("save_form", "failed to persist form", err)
	}

	FormsSaved.Inc()
	zap.S().Infow("form saved", "formId", form.ID, "fields", len(form.Fields), "created", existing == nil)
	return form, nil
}

// FormVersion hashes the form's canonical JSON with timestamps cleared.
func (s *FormStore) FormVersion(schema *formflow.FormSchema) string {
	return FormVersion(schema)
}

func FormVersion(schema *formflow.FormSchema) string {
	if schema == nil {
		return ""
	}
	canonical := *schema
	canonical.CreatedAt = time.Time{}
	canonical.UpdatedAt = time.Time{}
	buf, err := json.Marshal(canonical)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(buf), 16)
}

func (s *FormStore) DeleteForm(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deleted, err := s.repo.DeleteForm(ctx, id)
	if err != nil {
		return storageWriteError("delete_form", "failed to delete form", err)
	}
	if !deleted {
		return formflow.NewFormNotFoundError(id)
	}
	zap.S().Infow("form deleted", "formId", id)
	return nil
}

func (s *FormStore) GetFormSubmissions(ctx context.Context, formID string) []formflow.Submission {
	submissions, err := s.repo.ListSubmissions(ctx, formID)
	if err != nil {
		logReadFailure("list_submissions", err, "formId", formID)
		return []formflow.Submission{}
	}
	return submissions
}

// SaveSubmission stores a new submission for an existing form. The id and
// timestamp are always generated here.
func (s *FormStore) SaveSubmission(ctx context.Context, submission *formflow.Submission) (*formflow.Submission, error) {
	if submission == nil {
		return nil, formflow.NewValidationError("", "submission cannot be nil")
	}

	// held from the existence check to the insert so a concurrent DeleteForm
	// cannot leave the submission orphaned
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	form, err := s.repo.GetForm(ctx, submission.FormID)
	if err != nil {
		return nil, storageWriteError("save_submission", "failed to read form", err)
	}
	if form == nil {
		return nil, formflow.NewFormNotFoundError(submission.FormID)
	}

	now := s.now()
	id, err := s.newID(now)
	if err != nil {
		return nil, formflow.NewInternalError("failed to generate submission id", err)
	}

	stored := formflow.Submission{
		ID:          id,
		FormID:      submission.FormID,
		Data:        cloneValues(submission.Data),
		SubmittedAt: now,
	}

	if _, err := s.repo.InsertSubmissions(ctx, []formflow.Submission{stored}); err != nil {
		return nil, storageWriteError("save_submission", "failed to persist submission", err)
	}
	SubmissionsStored.Inc()

	s.publish(ctx, stored)
	return &stored, nil
}

func (s *FormStore) publish(ctx context.Context, submission formflow.Submission) {
	if s.publisher == nil {
		return
	}
	event := formflow.SubmissionEvent{
		Type:         formflow.EventSubmissionCreated,
		FormID:       submission.FormID,
		SubmissionID: submission.ID,
		SubmittedAt:  submission.SubmittedAt,
		Data:         submission.Data,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		EventPublishFailures.Inc()
		zap.S().Warnw("failed to publish submission event", "formId", submission.FormID, "submissionId", submission.ID, "error", err)
	}
}

// ExportFormData bundles a form with all of its submissions. A form without
// submissions yields an empty bundle, not an error.
func (s *FormStore) ExportFormData(ctx context.Context, formID string) (*formflow.ExportBundle, error) {
	start := time.Now()
	defer func() { ExportDuration.WithLabelValues("json").Observe(time.Since(start).Seconds()) }()

	form, err := s.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	submissions := s.GetFormSubmissions(ctx, formID)
	return &formflow.ExportBundle{
		Form:             form,
		Submissions:      submissions,
		ExportedAt:       s.now(),
		TotalSubmissions: len(submissions),
	}, nil
}

// ExportCSV writes the form's submissions as CSV. Unlike ExportFormData it
// fails with NO_SUBMISSIONS when there is nothing to write.
func (s *FormStore) ExportCSV(ctx context.Context, formID string, w io.Writer) error {
	start := time.Now()
	defer func() { ExportDuration.WithLabelValues("csv").Observe(time.Since(start).Seconds()) }()

	form, err := s.GetForm(ctx, formID)
	if err != nil {
		return err
	}
	submissions := s.GetFormSubmissions(ctx, formID)
	if len(submissions) == 0 {
		return formflow.NewNoSubmissionsError(formID)
	}
	if err := WriteSubmissionsCSV(w, form, submissions); err != nil {
		return formflow.NewFormflowError(formflow.ErrorTypeExport, formflow.ErrCodeInternalError, "failed to write csv").
			WithForm(formID).
			WithCause(err)
	}
	return nil
}

// ImportFormData replaces the bundle's form and appends the submissions
// that are not stored yet.
func (s *FormStore) ImportFormData(ctx context.Context, bundle *formflow.ExportBundle) (*formflow.ImportResult, error) {
	if bundle == nil || bundle.Form == nil {
		return nil, formflow.NewInvalidImportError("bundle must contain a form")
	}
	if bundle.Form.ID == "" {
		return nil, formflow.NewInvalidImportError("form id is required")
	}

	form, err := prepareForm(bundle.Form)
	if err != nil {
		return nil, formflow.NewInvalidImportError("form definition is invalid").WithCause(err)
	}

	now := s.now()
	submissions := make([]formflow.Submission, 0, len(bundle.Submissions))
	for i, sub := range bundle.Submissions {
		if sub.ID == "" {
			return nil, formflow.NewInvalidImportError("submission id is required").WithDetail("index", i)
		}
		if sub.FormID != form.ID {
			return nil, formflow.NewInvalidImportError("submission belongs to another form").
				WithDetail("index", i).
				WithDetail("submissionId", sub.ID)
		}
		if sub.SubmittedAt.IsZero() {
			sub.SubmittedAt = now
		}
		if sub.Data == nil {
			sub.Data = map[string]any{}
		}
		submissions = append(submissions, sub)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.repo.GetForm(ctx, form.ID)
	if err != nil {
		return nil, storageWriteError("import", "failed to read existing form", err)
	}
	if form.CreatedAt.IsZero() {
		form.CreatedAt = now
		if existing != nil && !existing.CreatedAt.IsZero() {
			form.CreatedAt = existing.CreatedAt
		}
	}
	form.UpdatedAt = now

	inserted, err := s.repo.Import(ctx, form, submissions)
	if err != nil {
		return nil, storageWriteError("import", "failed to import form data", err)
	}

	result := &formflow.ImportResult{
		FormID:               form.ID,
		SubmissionsImported:  inserted,
		SubmissionsSkipped:   len(submissions) - inserted,
		ReplacedExistingForm: existing != nil,
	}
	zap.S().Infow("form data imported", "formId", form.ID, "imported", result.SubmissionsImported, "skipped", result.SubmissionsSkipped)
	return result, nil
}

func (s *FormStore) ClearAllData(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		return storageWriteError("clear", "failed to clear data", err)
	}
	zap.S().Infow("all form data cleared")
	return nil
}
