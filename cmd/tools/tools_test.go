package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/formflow"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bundleJSON = `{
	"form": {
		"id": "rsvp",
		"title": "RSVP",
		"fields": [
			{"name": "name", "type": "text", "label": "Name"},
			{"name": "tags", "type": "checkbox", "label": "Tags",
			 "options": [{"label": "A", "value": "a"}, {"label": "B", "value": "b"}]}
		]
	},
	"submissions": [
		{"id": "s1", "formId": "rsvp", "data": {"name": "Jo, Doe", "tags": ["a", "b"]}, "submittedAt": "2024-05-01T09:30:00Z"}
	],
	"totalSubmissions": 1
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunHelpFlag(t *testing.T) {
	for _, cmd := range []string{"init-db", "export-csv", "export-json", "import", "badge-svg"} {
		if err := run(cmd, []string{"-h"}); err != nil {
			t.Fatalf("%s: expected no error with -h flag, got %v", cmd, err)
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run("generate-attributes", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRequiredFlags(t *testing.T) {
	storage := filepath.Join(t.TempDir(), "forms.db")

	tests := []struct {
		cmd  string
		args []string
		want string
	}{
		{"export-csv", []string{"-storage-path", storage}, "-form is required"},
		{"export-json", []string{"-storage-path", storage}, "-form is required"},
		{"import", []string{"-storage-path", storage}, "-in is required"},
		{"badge-svg", nil, "-template is required"},
		{"export-csv", []string{"-form", "rsvp"}, "-storage-path"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			t.Setenv("STORAGE_PATH", "")
			err := run(tt.cmd, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestImportThenExport(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	dir := t.TempDir()
	storage := filepath.Join(dir, "forms.db")
	bundle := writeFile(t, dir, "bundle.json", bundleJSON)

	require.NoError(t, run("import", []string{"-storage-path", storage, "-in", bundle}))
	require.NoError(t, run("import", []string{"-storage-path", storage, "-in", bundle}), "import is repeatable")

	jsonOut := filepath.Join(dir, "export.json")
	require.NoError(t, run("export-json", []string{"-storage-path", storage, "-form", "rsvp", "-out", jsonOut}))

	var exported formflow.ExportBundle
	raw, err := os.ReadFile(jsonOut)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &exported))
	assert.Equal(t, "RSVP", exported.Form.Title)
	assert.Equal(t, 1, exported.TotalSubmissions)
	assert.Equal(t, "s1", exported.Submissions[0].ID)

	csvOut := filepath.Join(dir, "export.csv")
	require.NoError(t, run("export-csv", []string{"-storage-path", storage, "-form", "rsvp", "-out", csvOut}))
	csv, err := os.ReadFile(csvOut)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"Jo, Doe"`)
	assert.Contains(t, lines[1], `"a, b"`)

	err = run("export-csv", []string{"-storage-path", storage, "-form", "missing", "-out", csvOut})
	assert.True(t, formflow.IsErrorCode(err, formflow.ErrCodeFormNotFound))
}

func TestBadgeSVG(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "badge.json", `{"rows": [
		[{"type": "name", "parts": ["name"], "style": {"bold": true}}],
		[{"type": "qr_code", "attr": "id"}]
	]}`)
	data := writeFile(t, dir, "attendee.json", `{"name": "Jo Doe", "id": "T-1"}`)

	svgOut := filepath.Join(dir, "badge.svg")
	require.NoError(t, run("badge-svg", []string{"-template", tmpl, "-data", data, "-out", svgOut}))
	svg, err := os.ReadFile(svgOut)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg), "<svg "))
	assert.Contains(t, string(svg), ">Jo Doe</text>")

	storage := filepath.Join(dir, "forms.db")
	require.NoError(t, run("import", []string{"-storage-path", storage, "-in", writeFile(t, dir, "bundle.json", bundleJSON)}))

	layoutOut := filepath.Join(dir, "layout.json")
	require.NoError(t, run("badge-svg", []string{
		"-template", tmpl, "-storage-path", storage, "-form", "rsvp", "-submission", "s1", "-layout", "-out", layoutOut,
	}))
	var layout formflow.BadgeLayout
	raw, err := os.ReadFile(layoutOut)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &layout))
	require.Len(t, layout.Nodes, 2)
	assert.Equal(t, "Jo, Doe", layout.Nodes[0].Text)

	err = run("badge-svg", []string{"-template", tmpl, "-storage-path", storage, "-form", "rsvp", "-submission", "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `submission "nope" not found`)
}

func TestEnsureTables(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tables := formflow.TableNames{Forms: "forms", Submissions: "form_submissions"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "forms"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "form_submissions"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_form_submissions_form_id"`).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectCommit()

	ctx := context.Background()
	err = withTx(ctx, mock, func(tx pgx.Tx) error {
		return ensureTables(ctx, tx, tables)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	ctx := context.Background()
	err = withTx(ctx, mock, func(tx pgx.Tx) error {
		return ensureTables(ctx, tx, formflow.TableNames{Forms: "forms", Submissions: "form_submissions"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadFormFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `{"id": "custom", "title": "B"}`)
	writeFile(t, dir, "a.json", `{"title": "A"}`)
	writeFile(t, dir, "readme.md", "# forms")

	forms, err := readFormFiles(dir)
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "a", forms[0].ID)
	assert.Equal(t, "custom", forms[1].ID)

	_, err = readFormFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
