package internal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lychee-technology/formflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/buntdb"
)

func newMemoryRepo(t *testing.T) *KVFormRepository {
	t.Helper()
	repo, err := OpenKVFormRepository(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleForm(id string) *formflow.FormSchema {
	return &formflow.FormSchema{
		ID:    id,
		Title: "Form " + id,
		Fields: []formflow.FieldDefinition{
			{ID: "field_1", Name: "name", Type: formflow.FieldTypeText, Label: "Name"},
		},
	}
}

func sampleSubmission(id, formID string) formflow.Submission {
	return formflow.Submission{
		ID:          id,
		FormID:      formID,
		Data:        map[string]any{"name": "Jo"},
		SubmittedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func rawValue(t *testing.T, repo *KVFormRepository, key string) (string, bool) {
	t.Helper()
	var value string
	var found bool
	err := repo.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		value, found = val, true
		return err
	})
	require.NoError(t, err)
	return value, found
}

func setRaw(t *testing.T, repo *KVFormRepository, key, value string) {
	t.Helper()
	err := repo.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, nil)
		return err
	})
	require.NoError(t, err)
}

func TestKVFormRepository_EmptyStore(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	forms, err := repo.ListForms(ctx)
	require.NoError(t, err)
	assert.Empty(t, forms)
	assert.NotNil(t, forms)

	form, err := repo.GetForm(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, form)

	subs, err := repo.ListSubmissions(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestKVFormRepository_UpsertReplacesWholeForm(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	require.NoError(t, repo.UpsertForm(ctx, sampleForm("a")))
	require.NoError(t, repo.UpsertForm(ctx, sampleForm("b")))

	updated := sampleForm("a")
	updated.Title = "Renamed"
	updated.Fields = nil
	require.NoError(t, repo.UpsertForm(ctx, updated))

	forms, err := repo.ListForms(ctx)
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "a", forms[0].ID, "upsert keeps insertion order")
	assert.Equal(t, "Renamed", forms[0].Title)
	assert.Empty(t, forms[0].Fields)

	raw, ok := rawValue(t, repo, FormsKey)
	require.True(t, ok)
	assert.Contains(t, raw, `"title":"Renamed"`)
}

func TestKVFormRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	require.NoError(t, repo.UpsertForm(ctx, sampleForm("a")))
	require.NoError(t, repo.UpsertForm(ctx, sampleForm("b")))
	n, err := repo.InsertSubmissions(ctx, []formflow.Submission{
		sampleSubmission("s1", "a"),
		sampleSubmission("s2", "b"),
		sampleSubmission("s3", "a"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	deleted, err := repo.DeleteForm(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	subs, err := repo.ListSubmissions(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, subs)

	subs, err = repo.ListSubmissions(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	deleted, err = repo.DeleteForm(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestKVFormRepository_InsertSubmissionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	n, err := repo.InsertSubmissions(ctx, []formflow.Submission{sampleSubmission("s1", "a")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.InsertSubmissions(ctx, []formflow.Submission{
		sampleSubmission("s1", "a"),
		sampleSubmission("s2", "a"),
		sampleSubmission("s2", "a"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	subs, err := repo.ListSubmissions(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestKVFormRepository_Import(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	n, err := repo.Import(ctx, sampleForm("a"), []formflow.Submission{sampleSubmission("s1", "a")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.Import(ctx, sampleForm("a"), []formflow.Submission{sampleSubmission("s1", "a")})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	forms, err := repo.ListForms(ctx)
	require.NoError(t, err)
	assert.Len(t, forms, 1)
}

func TestKVFormRepository_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	setRaw(t, repo, FormsKey, "{not json")

	_, err := repo.ListForms(ctx)
	assert.Error(t, err)

	err = repo.UpsertForm(ctx, sampleForm("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode forms")

	raw, _ := rawValue(t, repo, FormsKey)
	assert.Equal(t, "{not json", raw, "failed write must leave the store untouched")

	require.NoError(t, repo.Clear(ctx))
	require.NoError(t, repo.UpsertForm(ctx, sampleForm("a")))
	forms, err := repo.ListForms(ctx)
	require.NoError(t, err)
	assert.Len(t, forms, 1)
}

func TestKVFormRepository_Clear(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	require.NoError(t, repo.Clear(ctx), "clearing an empty store is fine")

	require.NoError(t, repo.UpsertForm(ctx, sampleForm("a")))
	_, err := repo.InsertSubmissions(ctx, []formflow.Submission{sampleSubmission("s1", "a")})
	require.NoError(t, err)

	require.NoError(t, repo.Clear(ctx))
	_, found := rawValue(t, repo, FormsKey)
	assert.False(t, found)
	_, found = rawValue(t, repo, SubmissionsKey)
	assert.False(t, found)
}

func TestKVFormRepository_PersistsToDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "formflow.db")

	repo, err := OpenKVFormRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertForm(ctx, sampleForm("a")))
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close(), "close is idempotent")

	reopened, err := OpenKVFormRepository(path)
	require.NoError(t, err)
	defer reopened.Close()

	form, err := reopened.GetForm(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, form)
	assert.Equal(t, "Form a", form.Title)
}

func TestKVFormRepository_Ping(t *testing.T) {
	repo, err := OpenKVFormRepository(MemoryPath)
	require.NoError(t, err)

	assert.NoError(t, repo.Ping(context.Background()))
	require.NoError(t, repo.Close())
	assert.Error(t, repo.Ping(context.Background()), "a closed database does not answer")
}
