// Package postgres provides a PostgreSQL implementation of the warehouse.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/ports"
	"github.com/ersonp/dimload/internal/infrastructure/config"
	"github.com/ersonp/dimload/internal/infrastructure/warehouse"
)

// encoder hands pgx native dates and exact numerics.
var encoder = warehouse.ValueEncoder{
	Date: func(t time.Time) any {
		return pgtype.Date{Time: t, Valid: true}
	},
	Decimal: func(d decimal.Decimal) (any, error) {
		var n pgtype.Numeric
		if err := n.Scan(d.String()); err != nil {
			return nil, err
		}
		return n, nil
	},
}

// Repository implements ports.Warehouse using PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	schema string
}

var _ ports.Warehouse = (*Repository)(nil)

// NewRepository connects to the warehouse described by cfg.
func NewRepository(ctx context.Context, cfg config.PostgresConfig) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	schema := cfg.Schema
	if schema == "" {
		schema = config.DefaultPostgresSchema
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return &Repository{
		pool:   pool,
		schema: schema,
	}, nil
}

// Close closes every pooled connection.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// table returns the schema-qualified, quoted name of a warehouse table.
func (r *Repository) table(name string) string {
	return pgx.Identifier{r.schema, name}.Sanitize()
}

// EnsureSchema creates the warehouse schema and tables if they don't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE SCHEMA IF NOT EXISTS %[1]s;

	-- Dimensions (one row per natural key)
	CREATE TABLE IF NOT EXISTS %[2]s (
		client_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		client_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS %[3]s (
		project_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		project_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS %[4]s (
		employee_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		role TEXT
	);

	CREATE TABLE IF NOT EXISTS %[5]s (
		task_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		task_name TEXT NOT NULL UNIQUE
	);

	-- Facts (append-only)
	CREATE TABLE IF NOT EXISTS %[6]s (
		task_log_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		client_id BIGINT NOT NULL REFERENCES %[2]s (client_id),
		project_id BIGINT NOT NULL REFERENCES %[3]s (project_id),
		employee_id BIGINT NOT NULL REFERENCES %[4]s (employee_id),
		task_id BIGINT NOT NULL REFERENCES %[5]s (task_id),
		date DATE NOT NULL,
		hours NUMERIC(10, 2) NOT NULL CHECK (hours >= 0),
		note TEXT,
		is_billable BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS %[7]s (
		project_allocation_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		client_id BIGINT NOT NULL REFERENCES %[2]s (client_id),
		project_id BIGINT NOT NULL REFERENCES %[3]s (project_id),
		employee_id BIGINT NOT NULL REFERENCES %[4]s (employee_id),
		task_id BIGINT NOT NULL REFERENCES %[5]s (task_id),
		start_date DATE NOT NULL,
		end_date DATE,
		estimated_hours NUMERIC(10, 2) NOT NULL CHECK (estimated_hours >= 0)
	);

	-- Load run ledger (one row per batch)
	CREATE TABLE IF NOT EXISTS %[8]s (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0,
		clamped INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		appended INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_load_runs_started ON %[8]s (started_at);
	`,
		pgx.Identifier{r.schema}.Sanitize(),
		r.table("dim_client"),
		r.table("dim_project"),
		r.table("dim_employee"),
		r.table("dim_task"),
		r.table(entities.FactTaskLog.Table()),
		r.table(entities.FactProjectAllocation.Table()),
		r.table("load_runs"),
	)

	if _, err := r.pool.Exec(ctx, schema); err != nil {
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

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, table.IDColumn, r.table(table.Name), table.KeyColumn)

	var id int64
	err = r.pool.QueryRow(ctx, query, naturalKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
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

	// A conflicting insert returns no row.
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING RETURNING %s`,
		r.table(table.Name), strings.Join(columns, ", "), placeholders(1, len(columns)),
		table.KeyColumn, table.IDColumn)

	var id int64
	err = r.pool.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ports.ErrDuplicateNaturalKey
	}
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table.Name, err)
	}
	return id, nil
}

// ListDimensionValues returns every value of a dimension ordered by surrogate key.
func (r *Repository) ListDimensionValues(ctx context.Context, dim entities.Dimension) ([]entities.DimensionValue, error) {
	table, err := warehouse.TableFor(dim)
	if err != nil {
		return nil, err
	}

	role := "NULL::text"
	if table.HasRole {
		role = "role"
	}
	query := fmt.Sprintf(`SELECT %s, %s, %s FROM %s ORDER BY %s`,
		table.IDColumn, table.KeyColumn, role, r.table(table.Name), table.IDColumn)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table.Name, err)
	}
	defer rows.Close()

	var result []entities.DimensionValue
	for rows.Next() {
		value := entities.DimensionValue{Dimension: dim}
		var roleValue *string
		if err := rows.Scan(&value.SurrogateKey, &value.NaturalKey, &roleValue); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table.Name, err)
		}
		if roleValue != nil {
			value.Attributes = entities.Attributes{entities.AttrRole: *roleValue}
		}
		result = append(result, value)
	}
	return result, rows.Err()
}

// AppendFactRows copies all rows into the fact table in a single transaction.
func (r *Repository) AppendFactRows(ctx context.Context, kind entities.FactKind, rows []entities.ResolvedFactRecord) error {
	columns, err := warehouse.ColumnsFor(kind)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		v, err := warehouse.FactValues(kind, row, encoder)
		if err != nil {
			return err
		}
		values = append(values, v)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{r.schema, kind.Table()}, columns, pgx.CopyFromRows(values))
	if err != nil {
		return fmt.Errorf("copying into %s: %w", kind.Table(), err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("copying into %s: stored %d of %d rows", kind.Table(), copied, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s rows: %w", kind.Table(), err)
	}
	return nil
}

// CountFactRows returns the number of rows in a fact table.
func (r *Repository) CountFactRows(ctx context.Context, kind entities.FactKind) (int, error) {
	if !kind.IsValid() {
		return 0, fmt.Errorf("unknown fact kind %q", kind)
	}
	var count int
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table(kind.Table()))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s rows: %w", kind.Table(), err)
	}
	return count, nil
}

// RecordLoadRun writes a run ledger entry.
func (r *Repository) RecordLoadRun(ctx context.Context, run *entities.LoadRun) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, kind, source, status, started_at, finished_at,
			processed, dropped, clamped, created, appended, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.table("load_runs"))

	_, err := r.pool.Exec(ctx, query,
		run.ID,
		string(run.Kind),
		nullable(run.Source),
		string(run.Status),
		run.StartedAt,
		run.FinishedAt,
		run.Processed,
		run.Dropped,
		run.Clamped,
		run.Created,
		run.Appended,
		nullable(run.Error),
	)
	if err != nil {
		return fmt.Errorf("recording load run: %w", err)
	}
	return nil
}

// ListLoadRuns returns the most recent run ledger entries, newest first.
func (r *Repository) ListLoadRuns(ctx context.Context, limit int) ([]entities.LoadRun, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, source, status, started_at, finished_at,
			processed, dropped, clamped, created, appended, error
		FROM %s
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`, r.table("load_runs"))

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying load runs: %w", err)
	}
	defer rows.Close()

	runs := make([]entities.LoadRun, 0, limit)
	for rows.Next() {
		var run entities.LoadRun
		var kind, status string
		var source, runErr *string

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
		if source != nil {
			run.Source = *source
		}
		if runErr != nil {
			run.Error = *runErr
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// placeholders returns "$from, $from+1, ..." for n parameters.
func placeholders(from, n int) string {
	params := make([]string, n)
	for i := range params {
		params[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(params, ", ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
