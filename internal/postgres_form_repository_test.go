package internal

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/formflow"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTables = formflow.TableNames{Forms: "forms", Submissions: "form_submissions"}

func newMockFormRepo(t *testing.T) (*PostgresFormRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	mock.MatchExpectationsInOrder(true)

	repo, err := NewPostgresFormRepository(mock, testTables)
	require.NoError(t, err)
	return repo, mock
}

func TestNewPostgresFormRepository_RequiresTables(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresFormRepository(mock, formflow.TableNames{Submissions: "s"})
	assert.Error(t, err)
	_, err = NewPostgresFormRepository(mock, formflow.TableNames{Forms: "f"})
	assert.Error(t, err)
}

func TestPostgresFormRepository_ListForms(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := created.Add(time.Hour)
	doc, err := json.Marshal(sampleForm("a"))
	require.NoError(t, err)

	mock.ExpectQuery(`^SELECT document, created_at, updated_at FROM "forms" ORDER BY created_at, id$`).
		WillReturnRows(pgxmock.NewRows([]string{"document", "created_at", "updated_at"}).
			AddRow(doc, created, updated))

	forms, err := repo.ListForms(ctx)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, "a", forms[0].ID)
	assert.Equal(t, created, forms[0].CreatedAt)
	assert.Equal(t, updated, forms[0].UpdatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFormRepository_GetFormNotFound(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	mock.ExpectQuery(`^SELECT document, created_at, updated_at FROM "forms" WHERE id = \$1$`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	form, err := repo.GetForm(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, form)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFormRepository_GetFormQueryError(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	mock.ExpectQuery(`^SELECT document`).
		WithArgs("a").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetForm(ctx, "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresFormRepository_UpsertForm(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	form := sampleForm("a")
	form.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	form.UpdatedAt = form.CreatedAt
	doc, err := json.Marshal(form)
	require.NoError(t, err)

	mock.ExpectExec(`^INSERT INTO "forms" \(id, document, created_at, updated_at\)`).
		WithArgs("a", doc, form.CreatedAt, form.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertForm(ctx, form))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFormRepository_DeleteFormCascades(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("^" + regexp.QuoteMeta(`DELETE FROM "form_submissions" WHERE form_id = $1`) + "$").
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("^" + regexp.QuoteMeta(`DELETE FROM "forms" WHERE id = $1`) + "$").
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	deleted, err := repo.DeleteForm(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFormRepository_DeleteFormRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM "form_submissions"`).
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`^DELETE FROM "forms"`).
		WithArgs("a").
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := repo.DeleteForm(ctx, "a")
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFormRepository_ListSubmissions(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`^SELECT id, form_id, data, submitted_at FROM "form_submissions" WHERE form_id = \$1`).
		WithArgs("a").
		WillReturnRows(pgxmock.NewRows([]string{"id", "form_id", "data", "submitted_at"}).
			AddRow("s1", "a", []byte(`{"name":"Jo","tags":["x","y"]}`), at))

	subs, err := repo.ListSubmissions(ctx, "a")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "s1", subs[0].ID)
	assert.Equal(t, "Jo", subs[0].Data["name"])
	assert.Equal(t, []any{"x", "y"}, subs[0].Data["tags"])
	assert.Equal(t, at, subs[0].SubmittedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFormRepository_InsertSubmissionsCountsNewRows(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	s1 := sampleSubmission("s1", "a")
	s2 := sampleSubmission("s2", "a")
	data, err := json.Marshal(s1.Data)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`^INSERT INTO "form_submissions"`).
		WithArgs("s1", "a", data, s1.SubmittedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`^INSERT INTO "form_submissions"`).
		WithArgs("s2", "a", data, s2.SubmittedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := repo.InsertSubmissions(ctx, []formflow.Submission{s1, s2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFormRepository_ImportRunsInOneTransaction(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	form := sampleForm("a")
	s1 := sampleSubmission("s1", "a")

	mock.ExpectBegin()
	mock.ExpectExec(`^INSERT INTO "forms"`).
		WithArgs("a", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`^INSERT INTO "form_submissions"`).
		WithArgs("s1", "a", pgxmock.AnyArg(), s1.SubmittedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := repo.Import(ctx, form, []formflow.Submission{s1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFormRepository_Clear(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM "form_submissions"$`).WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`^DELETE FROM "forms"$`).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, repo.Clear(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormTablesDDL(t *testing.T) {
	stmts := FormTablesDDL(formflow.TableNames{Forms: "public.forms", Submissions: "public.form_submissions"})
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "public"."forms"`)
	assert.Contains(t, stmts[1], `REFERENCES "public"."forms" (id) ON DELETE CASCADE`)
	assert.Contains(t, stmts[2], `"idx_form_submissions_form_id" ON "public"."form_submissions"`)
}

func TestPostgresFormRepository_Ping(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockFormRepo(t)

	mock.ExpectExec(`^SELECT 1$`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`^SELECT 1$`).WillReturnError(errors.New("connection refused"))

	require.NoError(t, repo.Ping(ctx))
	err := repo.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}
