package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"select-plus/internal/config"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// Querier is satisfied by *sql.DB and *sql.Tx, so repositories can run
// inside or outside a write transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is an open pool plus the dialect that speaks to it.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	driver  string
}

// New opens and configures the database described by cfg. An empty driver
// means postgres.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	dialect := NewDialect(driver)

	if cfg.IsSQLite() && cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := dialect.Configure(ctx, db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{DB: db, Dialect: dialect, driver: driver}, nil
}

func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() { s.DB.Close() }

func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.DB.BeginTx(ctx, nil)
}

// Bootstrap creates the catalog, rule and event tables when missing.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	return nil
}

// QueryRows runs a query and scans every row into a column map.
func QueryRows(ctx context.Context, q Querier, query string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var results []map[string]any
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = scanned(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// QueryRow is QueryRows for exactly one row; no rows is ErrNotFound.
func QueryRow(ctx context.Context, q Querier, query string, args ...any) (map[string]any, error) {
	rows, err := QueryRows(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec runs a statement and returns the number of rows affected.
func Exec(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MapError maps a driver error to ErrUniqueViolation where it applies.
func MapError(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	return dialect.MapError(err)
}

// SQLite hands timestamps back as text in one of these layouts.
var textTimestampLayouts = []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339}

// scanned turns driver byte slices into strings, or times when they parse
// as one.
func scanned(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	for _, layout := range textTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return s
}

// Columns names the columns of a row set that need decoding after a scan.
type Columns struct {
	Booleans   []string
	Structured []string
}

// Normalize fixes up scanned rows in place: booleans stored as integers
// become bool when the dialect needs it, and JSON columns are decoded so
// stored selections come back as arrays. Undecodable JSON is left as is.
func Normalize(dialect Dialect, rows []map[string]any, cols Columns) {
	if len(rows) == 0 {
		return
	}
	fixBools := dialect != nil && dialect.NeedsBoolFix() && len(cols.Booleans) > 0
	for _, row := range rows {
		if fixBools {
			for _, name := range cols.Booleans {
				switch v := row[name].(type) {
				case int64:
					row[name] = v != 0
				case int:
					row[name] = v != 0
				case float64:
					row[name] = v != 0
				}
			}
		}
		for _, name := range cols.Structured {
			var raw []byte
			switch v := row[name].(type) {
			case string:
				raw = []byte(v)
			case []byte:
				raw = v
			default:
				continue
			}
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err == nil {
				row[name] = decoded
			}
		}
	}
}
