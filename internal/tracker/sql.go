package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

const table = "outreach_jobs"

// Dialect covers the differences between the supported SQL databases.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS ` + table + ` (
		job_id TEXT PRIMARY KEY,
		company TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		recruiter_hint TEXT NOT NULL DEFAULT '',
		applied_at TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		recruiter_name TEXT NOT NULL DEFAULT '',
		recruiter_contact TEXT NOT NULL DEFAULT '',
		recruiter_source TEXT NOT NULL DEFAULT '',
		recruiter_resolved_at TEXT NOT NULL DEFAULT '',
		attempts TEXT NOT NULL DEFAULT '0',
		last_error TEXT NOT NULL DEFAULT '',
		template_id TEXT NOT NULL DEFAULT '',
		sent_at TEXT NOT NULL DEFAULT '',
		followup_template_id TEXT NOT NULL DEFAULT '',
		followup_sent_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS ` + table + `_state_idx ON ` + table + ` (state)`,
}

// SQL is a tracker sink backed by sqlite or postgres.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger

	upsertQuery string
	selectQuery string
	listQuery   string
}

// OpenSQLite opens (and migrates) a sqlite tracker at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQL, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// sqlite wants a single writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return open(ctx, db, DialectSQLite, logger)
}

// OpenPostgres opens (and migrates) a postgres tracker.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*SQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return open(ctx, db, DialectPostgres, logger)
}

func open(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) (*SQL, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &outreach.SinkUnavailable{Sink: string(dialect), Err: err}
	}

	s := NewSQL(db, dialect, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// NewSQL wraps an already opened database. It does not migrate.
func NewSQL(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQL {
	if logger == nil {
		logger = zap.NewNop()
	}

	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns)-1)
	for i, col := range columns {
		placeholders[i] = dialect.placeholder(i + 1)
		if col != "job_id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}
	cols := strings.Join(columns, ", ")

	return &SQL{
		db:      db,
		dialect: dialect,
		logger:  logger,
		upsertQuery: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (job_id) DO UPDATE SET %s",
			table, cols, strings.Join(placeholders, ", "), strings.Join(updates, ", ")),
		selectQuery: fmt.Sprintf("SELECT %s FROM %s WHERE job_id = %s", cols, table, dialect.placeholder(1)),
		listQuery:   fmt.Sprintf("SELECT %s FROM %s ORDER BY job_id", cols, table),
	}
}

func (s *SQL) Name() string { return string(s.dialect) }

// Migrate applies pending schema migrations, recording each in schema_migrations.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		insert := fmt.Sprintf("INSERT INTO schema_migrations (version) VALUES (%s)", s.dialect.placeholder(1))
		if _, err := tx.ExecContext(ctx, insert, version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}

		s.logger.Debug("applied tracker migration", zap.Int("version", version), zap.String("sink", s.Name()))
	}

	return nil
}

func (s *SQL) Upsert(ctx context.Context, job *outreach.JobRecord) error {
	row := toRow(job)
	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v
	}

	if _, err := s.db.ExecContext(ctx, s.upsertQuery, args...); err != nil {
		return s.wrap(fmt.Errorf("upsert %s: %w", job.JobID, err))
	}

	return nil
}

func (s *SQL) Get(ctx context.Context, jobID string) (*outreach.JobRecord, error) {
	values := make([]string, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	err := s.db.QueryRowContext(ctx, s.selectQuery, jobID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.wrap(fmt.Errorf("get %s: %w", jobID, err))
	}

	return fromRow(values)
}

func (s *SQL) List(ctx context.Context) ([]*outreach.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.listQuery)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("list: %w", err))
	}
	defer rows.Close()

	var jobs []*outreach.JobRecord
	for rows.Next() {
		values := make([]string, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan tracker row: %w", err)
		}

		job, err := fromRow(values)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, s.wrap(fmt.Errorf("list: %w", err))
	}

	return jobs, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// wrap marks errors as sink unavailability unless the database rejected the
// statement itself.
func (s *SQL) wrap(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "42":
			return err
		}
	}

	return &outreach.SinkUnavailable{Sink: s.Name(), Err: err}
}
