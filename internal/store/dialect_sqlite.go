package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"select-plus/internal/config"
)

// SQLiteDialect targets modernc.org/sqlite. Everything that is not a number
// is stored as TEXT, JSON arrays included.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

var sqliteDDL = ddlTypes{
	text:      "TEXT",
	json:      "TEXT",
	timestamp: "TEXT",
	now:       "(datetime('now'))",
	boolean:   "INTEGER",
	truth:     "1",
	integer:   "INTEGER",
	double:    "REAL",
	uuid:      "TEXT",
	uuidKey:   "TEXT PRIMARY KEY",
}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

// Configure pins the pool to one connection, which serializes writers, and
// turns on WAL and foreign keys for it.
func (d *SQLiteDialect) Configure(ctx context.Context, db *sql.DB, _ config.DatabaseConfig) error {
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder { return &paramBuilder{prefix: '?'} }

func (d *SQLiteDialect) NowExpr() string     { return "datetime('now')" }
func (d *SQLiteDialect) UUIDDefault() string { return "" }
func (d *SQLiteDialect) NeedsBoolFix() bool  { return true }

func (d *SQLiteDialect) ColumnType(fieldType string, _ int) string {
	switch fieldType {
	case "int", "integer", "bigint", "boolean":
		return "INTEGER"
	case "float", "decimal":
		return "REAL"
	}
	return "TEXT"
}

func (d *SQLiteDialect) PrimaryKeyColumn(keyType string, generated bool) string {
	if keyType != "int" && keyType != "bigint" && keyType != "" {
		return "TEXT PRIMARY KEY"
	}
	if generated {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "INTEGER PRIMARY KEY"
}

func (d *SQLiteDialect) SystemTablesSQL() string { return sqliteDDL.systemTables() }

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?1", tableName).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?1)", tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, colType string
		if err := rows.Scan(&name, &colType); err != nil {
			return nil, err
		}
		cols[name] = colType
	}
	return cols, rows.Err()
}

// LikeExpr relies on LIKE, which SQLite already folds for ASCII.
func (d *SQLiteDialect) LikeExpr(field string, pb ParamBuilder, pattern string, negate bool) string {
	op := "LIKE"
	if negate {
		op = "NOT LIKE"
	}
	return fmt.Sprintf("%s %s %s ESCAPE '\\'", field, op, pb.Add(pattern))
}

func (d *SQLiteDialect) OlderThanExpr(column string, pb ParamBuilder, days int) string {
	return fmt.Sprintf("%s < datetime('now', %s)", column, pb.Add(fmt.Sprintf("-%d days", days)))
}

func (d *SQLiteDialect) SyncCommitOff() string { return "" }

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	if msg := err.Error(); strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
