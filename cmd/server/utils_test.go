package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/formflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantForm    string
		wantAction  string
		expectError bool
	}{
		{name: "collection", path: "/api/v1/forms/"},
		{name: "form", path: "/api/v1/forms/rsvp", wantForm: "rsvp"},
		{name: "trailing slash", path: "/api/v1/forms/rsvp/", wantForm: "rsvp"},
		{name: "action", path: "/api/v1/forms/rsvp/export.csv", wantForm: "rsvp", wantAction: "export.csv"},
		{name: "too deep", path: "/api/v1/forms/rsvp/export/x", expectError: true},
		{name: "empty segment", path: "/api/v1/forms/rsvp//x", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formID, action, err := parsePath(tt.path)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if formID != tt.wantForm || action != tt.wantAction {
				t.Fatalf("expected (%q, %q), got (%q, %q)", tt.wantForm, tt.wantAction, formID, action)
			}
		})
	}
}

func TestCSVFilename(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"", "form-submissions.csv"},
		{"guests", "guests.csv"},
		{"guests.CSV", "guests.CSV"},
		{` a"b/c `, "a_b_c.csv"},
	}

	for _, tt := range tests {
		if got := csvFilename(tt.requested, "form-submissions.csv"); got != tt.want {
			t.Fatalf("csvFilename(%q) = %q, want %q", tt.requested, got, tt.want)
		}
	}
}

func TestParseETag(t *testing.T) {
	assert.Equal(t, "abc", parseETag(`"abc"`))
	assert.Equal(t, "abc", parseETag(` W/"abc" `))
	assert.Equal(t, "", parseETag(`""`))
	assert.Equal(t, "*", parseETag("*"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  *formflow.FormflowError
		want int
	}{
		{formflow.NewValidationError("name", "bad"), http.StatusBadRequest},
		{formflow.NewDuplicateFieldNameError("f", "name"), http.StatusBadRequest},
		{formflow.NewFormNotFoundError("f"), http.StatusNotFound},
		{formflow.NewNoSubmissionsError("f"), http.StatusNotFound},
		{formflow.NewVersionConflictError("f", "a", "b"), http.StatusPreconditionFailed},
		{formflow.NewSubmissionInProgressError("f"), http.StatusConflict},
		{formflow.NewInvalidImportError("bad"), http.StatusBadRequest},
		{formflow.NewStorageWriteError("disk full", nil), http.StatusInternalServerError},
		{formflow.NewFormflowError(formflow.ErrorTypeExport, formflow.ErrCodeArchiveFailed, "upload"), http.StatusBadGateway},
		{formflow.NewFormflowError(formflow.ErrorTypeValidation, formflow.ErrCodeBadgeLayout, "layout"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("FORMFLOW_TEST_INT", "42")
	t.Setenv("FORMFLOW_TEST_BAD_INT", "x")
	t.Setenv("FORMFLOW_TEST_BOOL", "true")
	t.Setenv("FORMFLOW_TEST_LIST", " a:9092, ,b:9092 ")

	assert.Equal(t, 42, getEnvInt("FORMFLOW_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("FORMFLOW_TEST_BAD_INT", 1))
	assert.True(t, getEnvBool("FORMFLOW_TEST_BOOL", false))
	assert.Equal(t, "fallback", getEnv("FORMFLOW_TEST_UNSET", "fallback"))
	assert.Equal(t, []string{"a:9092", "b:9092"}, getEnvList("FORMFLOW_TEST_LIST"))
	assert.Nil(t, getEnvList("FORMFLOW_TEST_UNSET"))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USE_IAM", "true")
	t.Setenv("DB_REGION", "us-east-1")
	t.Setenv("S3_BUCKET", "events")
	t.Setenv("EVENTS_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := loadConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, formflow.StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Database.UseIAM)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "formflow.submissions", cfg.Events.Topic)
}

func TestSeedForms(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-signup.json"), []byte(`{"title": "Signup", "fields": [{"name": "email", "type": "email"}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-rsvp.json"), []byte(rsvpForm), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	forms, err := loadFormsFromDir(dir)
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "rsvp", forms[0].ID)
	assert.Equal(t, "b-signup", forms[1].ID, "file name is the fallback id")

	s := newTestServer(t, nil, nil)
	ctx := context.Background()

	mustGetForm(t, s, "rsvp", false)
	require.NoError(t, seedForms(ctx, s.store, dir))
	assert.Len(t, s.store.GetAllForms(ctx), 2)

	edited := *mustGetForm(t, s, "rsvp", true)
	edited.Title = "Edited"
	_, err = s.store.SaveForm(ctx, &edited)
	require.NoError(t, err)

	require.NoError(t, seedForms(ctx, s.store, dir), "seeding again is a no-op")
	assert.Equal(t, "Edited", mustGetForm(t, s, "rsvp", true).Title)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c-broken.json"), []byte("{"), 0o644))
	assert.Error(t, seedForms(ctx, s.store, dir))
}

func mustGetForm(t *testing.T, s *Server, id string, exists bool) *formflow.FormSchema {
	t.Helper()
	form, err := s.store.GetForm(context.Background(), id)
	if !exists {
		require.True(t, formflow.IsNotFound(err))
		return &formflow.FormSchema{}
	}
	require.NoError(t, err)
	return form
}
