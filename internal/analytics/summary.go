package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/lychee-technology/formflow"
	"go.uber.org/zap"
)

const (
	createSubmissionsTable = `CREATE OR REPLACE TEMP TABLE ff_submissions (id VARCHAR, submitted_at TIMESTAMP)`
	createAnswersTable     = `CREATE OR REPLACE TEMP TABLE ff_answers (submission_id VARCHAR, field VARCHAR, value VARCHAR, categorical BOOLEAN)`

	perDayQuery = `SELECT strftime(submitted_at, '%Y-%m-%d') AS day, count(*) AS cnt
FROM ff_submissions GROUP BY day ORDER BY day`

	answeredQuery = `SELECT field, count(DISTINCT submission_id) FROM ff_answers GROUP BY field`

	topValuesQuery = `SELECT field, value, cnt FROM (
	SELECT field, value, count(*) AS cnt,
		row_number() OVER (PARTITION BY field ORDER BY count(*) DESC, value) AS rn
	FROM ff_answers WHERE categorical GROUP BY field, value
) WHERE rn <= ? ORDER BY field, cnt DESC, value`
)

// Engine computes submission summaries with DuckDB. Each summary loads the
// submissions into temporary tables on a dedicated connection.
type Engine struct {
	db        *sql.DB
	topValues int
}

// Open starts a DuckDB database. An empty DSN keeps everything in memory.
func Open(ctx context.Context, cfg formflow.AnalyticsConfig) (*Engine, error) {
	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	if cfg.MemoryLimit != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit='%s'", strings.ReplaceAll(cfg.MemoryLimit, "'", ""))); err != nil {
			zap.S().Warnw("duckdb: set memory_limit failed", "limit", cfg.MemoryLimit, "err", err)
		}
	}

	topValues := cfg.TopValues
	if topValues <= 0 {
		topValues = 10
	}
	return &Engine{db: db, topValues: topValues}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// Summarize counts submissions per day, answered submissions per input
// field and the most frequent values of option fields.
func (e *Engine) Summarize(ctx context.Context, form *formflow.FormSchema, submissions []formflow.Submission) (*formflow.SubmissionSummary, error) {
	summary := &formflow.SubmissionSummary{
		FormID:           form.ID,
		TotalSubmissions: len(submissions),
		PerDay:           []formflow.DailyCount{},
		Fields:           make(map[string]formflow.FieldBreakdown),
	}
	fields := form.InputFields()
	for _, f := range fields {
		summary.Fields[f.Name] = formflow.FieldBreakdown{Values: []formflow.ValueCount{}}
	}
	if len(submissions) == 0 {
		return summary, nil
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer conn.Close()

	if err := load(ctx, conn, fields, submissions); err != nil {
		return nil, err
	}
	defer func() {
		for _, table := range []string{"ff_answers", "ff_submissions"} {
			if _, err := conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+table); err != nil {
				zap.S().Warnw("duckdb: drop temp table failed", "table", table, "err", err)
			}
		}
	}()

	if err := queryRows(ctx, conn, perDayQuery, nil, func(rows *sql.Rows) error {
		var dc formflow.DailyCount
		var cnt int64
		if err := rows.Scan(&dc.Day, &cnt); err != nil {
			return err
		}
		dc.Count = int(cnt)
		summary.PerDay = append(summary.PerDay, dc)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("per day counts: %w", err)
	}

	if err := queryRows(ctx, conn, answeredQuery, nil, func(rows *sql.Rows) error {
		var field string
		var cnt int64
		if err := rows.Scan(&field, &cnt); err != nil {
			return err
		}
		fb := summary.Fields[field]
		fb.Answered = int(cnt)
		summary.Fields[field] = fb
		return nil
	}); err != nil {
		return nil, fmt.Errorf("answered counts: %w", err)
	}

	if err := queryRows(ctx, conn, topValuesQuery, []any{e.topValues}, func(rows *sql.Rows) error {
		var field, value string
		var cnt int64
		if err := rows.Scan(&field, &value, &cnt); err != nil {
			return err
		}
		fb := summary.Fields[field]
		fb.Values = append(fb.Values, formflow.ValueCount{Value: value, Count: int(cnt)})
		summary.Fields[field] = fb
		return nil
	}); err != nil {
		return nil, fmt.Errorf("top values: %w", err)
	}

	return summary, nil
}

// load writes submissions into the temp tables, one answer row per value.
func load(ctx context.Context, conn *sql.Conn, fields []formflow.FieldDefinition, submissions []formflow.Submission) error {
	for _, stmt := range []string{createSubmissionsTable, createAnswersTable} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create temp table: %w", err)
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	subStmt, err := tx.PrepareContext(ctx, `INSERT INTO ff_submissions VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare submissions insert: %w", err)
	}
	defer subStmt.Close()
	ansStmt, err := tx.PrepareContext(ctx, `INSERT INTO ff_answers VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare answers insert: %w", err)
	}
	defer ansStmt.Close()

	for _, s := range submissions {
		if _, err := subStmt.ExecContext(ctx, s.ID, s.SubmittedAt.UTC()); err != nil {
			return fmt.Errorf("insert submission %s: %w", s.ID, err)
		}
		for _, f := range fields {
			categorical := f.Type.HasOptions() && len(f.Options) > 0
			for _, v := range answerValues(s.Data[f.Name]) {
				if _, err := ansStmt.ExecContext(ctx, s.ID, f.Name, v, categorical); err != nil {
					return fmt.Errorf("insert answer %s/%s: %w", s.ID, f.Name, err)
				}
			}
		}
	}
	return tx.Commit()
}

// answerValues flattens a submitted value; blank values are not answers.
func answerValues(v any) []string {
	var items []any
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		items = []any{val}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch x := item.(type) {
		case string:
			s = strings.TrimSpace(x)
		case nil:
			continue
		case bool:
			if !x {
				continue
			}
			s = "true"
		default:
			s = fmt.Sprint(x)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func queryRows(ctx context.Context, conn *sql.Conn, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}
