package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/formflow"
)

type formPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresFormRepository keeps each form as a jsonb document and each
// submission as a row keyed by its id.
type PostgresFormRepository struct {
	pool   formPool
	tables formflow.TableNames
}

func NewPostgresFormRepository(pool formPool, tables formflow.TableNames) (*PostgresFormRepository, error) {
	if tables.Forms == "" {
		return nil, fmt.Errorf("forms table name cannot be empty")
	}
	if tables.Submissions == "" {
		return nil, fmt.Errorf("submissions table name cannot be empty")
	}
	return &PostgresFormRepository{pool: pool, tables: tables}, nil
}

// Close is a no-op; the pool is owned by the caller.
func (r *PostgresFormRepository) Close() error { return nil }

func (r *PostgresFormRepository) Ping(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func (r *PostgresFormRepository) formsTable() string {
	return sanitizeIdentifier(r.tables.Forms)
}

func (r *PostgresFormRepository) submissionsTable() string {
	return sanitizeIdentifier(r.tables.Submissions)
}

func decodeFormRow(document []byte, createdAt, updatedAt time.Time) (*formflow.FormSchema, error) {
	var form formflow.FormSchema
	if err := json.Unmarshal(document, &form); err != nil {
		return nil, fmt.Errorf("decode form document: %w", err)
	}
	form.CreatedAt = createdAt.UTC()
	form.UpdatedAt = updatedAt.UTC()
	return &form, nil
}

func (r *PostgresFormRepository) ListForms(ctx context.Context) ([]formflow.FormSchema, error) {
	query := fmt.Sprintf(`SELECT document, created_at, updated_at FROM %s ORDER BY created_at, id`, r.formsTable())
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query forms: %w", err)
	}
	defer rows.Close()

	forms := []formflow.FormSchema{}
	for rows.Next() {
		var (
			document             []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&document, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		form, err := decodeFormRow(document, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		forms = append(forms, *form)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forms: %w", err)
	}
	return forms, nil
}

func (r *PostgresFormRepository) GetForm(ctx context.Context, id string) (*formflow.FormSchema, error) {
	query := fmt.Sprintf(`SELECT document, created_at, updated_at FROM %s WHERE id = $1`, r.formsTable())
	var (
		document             []byte
		createdAt, updatedAt time.Time
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&document, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query form: %w", err)
	}
	return decodeFormRow(document, createdAt, updatedAt)
}

func (r *PostgresFormRepository) upsertForm(ctx context.Context, db execer, form *formflow.FormSchema) error {
	document, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("encode form document: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, document, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id)
			DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		r.formsTable(),
	)
	if _, err := db.Exec(ctx, query, form.ID, document, form.CreatedAt, form.UpdatedAt); err != nil {
		return fmt.Errorf("upsert form: %w", err)
	}
	return nil
}

func (r *PostgresFormRepository) UpsertForm(ctx context.Context, form *formflow.FormSchema) error {
	if form == nil {
		return fmt.Errorf("form cannot be nil")
	}
	return r.upsertForm(ctx, r.pool, form)
}

func (r *PostgresFormRepository) DeleteForm(ctx context.Context, id string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	deleteSubmissions := fmt.Sprintf(`DELETE FROM %s WHERE form_id = $1`, r.submissionsTable())
	if _, err := tx.Exec(ctx, deleteSubmissions, id); err != nil {
		return false, fmt.Errorf("delete submissions: %w", err)
	}

	deleteForm := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.formsTable())
	tag, err := tx.Exec(ctx, deleteForm, id)
	if err != nil {
		return false, fmt.Errorf("delete form: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresFormRepository) ListSubmissions(ctx context.Context, formID string) ([]formflow.Submission, error) {
	query := fmt.Sprintf(
		`SELECT id, form_id, data, submitted_at FROM %s WHERE form_id = $1 ORDER BY submitted_at, id`,
		r.submissionsTable(),
	)
	rows, err := r.pool.Query(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	submissions := []formflow.Submission{}
	for rows.Next() {
		var (
			s    formflow.Submission
			data []byte
		)
		if err := rows.Scan(&s.ID, &s.FormID, &data, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if err := json.Unmarshal(data, &s.Data); err != nil {
			return nil, fmt.Errorf("decode submission %s: %w", s.ID, err)
		}
		s.SubmittedAt = s.SubmittedAt.UTC()
		submissions = append(submissions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return submissions, nil
}

func (r *PostgresFormRepository) insertSubmissions(ctx context.Context, tx pgx.Tx, submissions []formflow.Submission) (int, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, form_id, data, submitted_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
		r.submissionsTable(),
	)
	inserted := 0
	for _, s := range submissions {
		data, err := json.Marshal(s.Data)
		if err != nil {
			return 0, fmt.Errorf("encode submission %s: %w", s.ID, err)
		}
		tag, err := tx.Exec(ctx, query, s.ID, s.FormID, data, s.SubmittedAt)
		if err != nil {
			return 0, fmt.Errorf("insert submission %s: %w", s.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *PostgresFormRepository) InsertSubmissions(ctx context.Context, submissions []formflow.Submission) (int, error) {
	if len(submissions) == 0 {
		return 0, nil
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := r.insertSubmissions(ctx, tx, submissions)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

func (r *PostgresFormRepository) Import(ctx context.Context, form *formflow.FormSchema, submissions []formflow.Submission) (int, error) {
	if form == nil {
		return 0, fmt.Errorf("form cannot be nil")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.upsertForm(ctx, tx, form); err != nil {
		return 0, err
	}

	inserted, err := r.insertSubmissions(ctx, tx, submissions)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

func (r *PostgresFormRepository) Clear(ctx context.Context) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, r.submissionsTable())); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, r.formsTable())); err != nil {
		return fmt.Errorf("clear forms: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FormTablesDDL returns the statements that create the repository tables.
func FormTablesDDL(tables formflow.TableNames) []string {
	forms := sanitizeIdentifier(tables.Forms)
	submissions := sanitizeIdentifier(tables.Submissions)
	base := tables.Submissions
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	index := sanitizeIdentifier("idx_" + strings.Trim(base, `" `) + "_form_id")
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	document JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, forms),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	form_id TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	data JSONB NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL
)`, submissions, forms),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (form_id, submitted_at)`, index, submissions),
	}
}
