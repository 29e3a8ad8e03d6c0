// Package sqlite provides a SQLite implementation of the warehouse.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/ports"
	"github.com/ersonp/dimload/internal/infrastructure/config"
	"github.com/ersonp/dimload/internal/infrastructure/warehouse"
)

const memoryPath = ":memory:"

// encoder stores dates as ISO text and measures as fixed-point text.
var encoder = warehouse.ValueEncoder{
	Date: func(t time.Time) any {
		return t.Format(warehouse.DateLayout)
	},
	Decimal: func(d decimal.Decimal) (any, error) {
		return d.StringFixed(2), nil
	},
}

// Repository implements ports.Warehouse using SQLite.
type Repository struct {
	db *sql.DB
}

var _ ports.Warehouse = (*Repository)(nil)

// NewRepository opens (creating if needed) the SQLite warehouse at cfg.Path.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	if cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	// Enable foreign keys for referential integrity
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the warehouse tables if they don't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Dimensions (one row per natural key)
	CREATE TABLE IF NOT EXISTS dim_client (
		client_id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS dim_project (
		project_id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS dim_employee (
		employee_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		role TEXT
	);

	CREATE TABLE IF NOT EXISTS dim_task (
		task_id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_name TEXT NOT NULL UNIQUE
	);

	-- Facts (append-only)
	CREATE TABLE IF NOT EXISTS fact_task_log (
		task_log_id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES dim_client(client_id),
		project_id INTEGER NOT NULL REFERENCES dim_project(project_id),
		employee_id INTEGER NOT NULL REFERENCES dim_employee(employee_id),
		task_id INTEGER NOT NULL REFERENCES dim_task(task_id),
		date TEXT NOT NULL,
		hours NUMERIC NOT NULL CHECK (hours >= 0),
		note TEXT,
		is_billable INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS fact_project_allocation (
		project_allocation_id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES dim_client(client_id),
		project_id INTEGER NOT NULL REFERENCES dim_project(project_id),
		employee_id INTEGER NOT NULL REFERENCES dim_employee(employee_id),
		task_id INTEGER NOT NULL REFERENCES dim_task(task_id),
		start_date TEXT NOT NULL,
		end_date TEXT,
		estimated_hours NUMERIC NOT NULL CHECK (estimated_hours >= 0)
	);

	-- Load run ledger (one row per batch)
	CREATE TABLE IF NOT EXISTS load_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0,
		clamped INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		appended INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_load_runs_started ON load_runs(started_at);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// GetSurrogateKey looks up the surrogate key of a natural key.
func (r *Repository) GetSurrogateKey(ctx context.Context, dim entities.Dimension, naturalKey string) (int64, bool, error) {
	table, err := warehouse.TableFor(dim)
	if err != nil {
		return 0, false, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, table.IDColumn, table.Name, table.KeyColumn)

	var id int64
	err = r.db.QueryRowContext(ctx, query, naturalKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying %s: %w", table.Name, err)
	}
	return id, true, nil
}

// InsertDimensionValue inserts a new natural key and returns its surrogate key.
// It returns ports.ErrDuplicateNaturalKey when the key already exists.
func (r *Repository) InsertDimensionValue(ctx context.Context, dim entities.Dimension, naturalKey string, attrs entities.Attributes) (int64, error) {
	table, err := warehouse.TableFor(dim)
	if err != nil {
		return 0, err
	}

	columns := []string{table.KeyColumn}
	args := []any{naturalKey}
	if role, ok := table.Role(attrs); ok {
		columns = append(columns, "role")
		args = append(args, role)
	}

	// INSERT OR IGNORE leaves the existing row untouched; no row inserted means
	// another writer got there first.
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (%s)`,
		table.Name, strings.Join(columns, ", "), placeholders(len(columns)))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table.Name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table.Name, err)
	}
	if affected == 0 {
		return 0, ports.ErrDuplicateNaturalKey
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading %s id: %w", table.Name, err)
	}
	return id, nil
}

// ListDimensionValues returns every value of a dimension ordered by surrogate key.
func (r *Repository) ListDimensionValues(ctx context.Context, dim entities.Dimension) ([]entities.DimensionValue, error) {
	table, err := warehouse.TableFor(dim)
	if err != nil {
		return nil, err
	}

	role := "NULL"
	if table.HasRole {
		role = "role"
	}
	query := fmt.Sprintf(`SELECT %s, %s, %s FROM %s ORDER BY %s`,
		table.IDColumn, table.KeyColumn, role, table.Name, table.IDColumn)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table.Name, err)
	}
	defer rows.Close()

	var result []entities.DimensionValue
	for rows.Next() {
		value := entities.DimensionValue{Dimension: dim}
		var roleValue sql.NullString
		if err := rows.Scan(&value.SurrogateKey, &value.NaturalKey, &roleValue); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table.Name, err)
		}
		if roleValue.Valid {
			value.Attributes = entities.Attributes{entities.AttrRole: roleValue.String}
		}
		result = append(result, value)
	}
	return result, rows.Err()
}

// AppendFactRows inserts all rows in a single transaction.
func (r *Repository) AppendFactRows(ctx context.Context, kind entities.FactKind, rows []entities.ResolvedFactRecord) (err error) {
	columns, err := warehouse.ColumnsFor(kind)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		kind.Table(), strings.Join(columns, ", "), placeholders(len(columns)))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing %s insert: %w", kind.Table(), err)
	}
	defer stmt.Close()

	for _, row := range rows {
		values, err := warehouse.FactValues(kind, row, encoder)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("inserting into %s (line %d): %w", kind.Table(), row.Line, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s rows: %w", kind.Table(), err)
	}
	return nil
}

// RecordLoadRun writes a run ledger entry.
func (r *Repository) RecordLoadRun(ctx context.Context, run *entities.LoadRun) error {
	query := `
		INSERT INTO load_runs (id, kind, source, status, started_at, finished_at,
			processed, dropped, clamped, created, appended, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		string(run.Kind),
		nullString(run.Source),
		string(run.Status),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Processed,
		run.Dropped,
		run.Clamped,
		run.Created,
		run.Appended,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("recording load run: %w", err)
	}
	return nil
}

// ListLoadRuns returns the most recent run ledger entries, newest first.
func (r *Repository) ListLoadRuns(ctx context.Context, limit int) ([]entities.LoadRun, error) {
	query := `
		SELECT id, kind, source, status, started_at, finished_at,
			processed, dropped, clamped, created, appended, error
		FROM load_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying load runs: %w", err)
	}
	defer rows.Close()

	runs := make([]entities.LoadRun, 0, limit)
	for rows.Next() {
		var run entities.LoadRun
		var kind, status string
		var source, runErr sql.NullString

		if err := rows.Scan(
			&run.ID,
			&kind,
			&source,
			&status,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Processed,
			&run.Dropped,
			&run.Clamped,
			&run.Created,
			&run.Appended,
			&runErr,
		); err != nil {
			return nil, fmt.Errorf("scanning load run: %w", err)
		}

		run.Kind = entities.FactKind(kind)
		run.Status = entities.LoadRunStatus(status)
		run.Source = source.String
		run.Error = runErr.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountFactRows returns the number of rows in a fact table.
func (r *Repository) CountFactRows(ctx context.Context, kind entities.FactKind) (int, error) {
	if !kind.IsValid() {
		return 0, fmt.Errorf("unknown fact kind %q", kind)
	}
	var count int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, kind.Table())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s rows: %w", kind.Table(), err)
	}
	return count, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
