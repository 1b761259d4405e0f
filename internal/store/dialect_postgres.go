package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"select-plus/internal/config"
)

// PostgresDialect targets PostgreSQL through the pgx database/sql driver.
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

var pgDDL = ddlTypes{
	text:      "TEXT",
	json:      "JSONB",
	timestamp: "TIMESTAMPTZ",
	now:       "NOW()",
	boolean:   "BOOLEAN",
	truth:     "true",
	integer:   "INT",
	double:    "DOUBLE PRECISION",
	uuid:      "UUID",
	uuidKey:   "UUID PRIMARY KEY DEFAULT gen_random_uuid()",
}

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Configure(_ context.Context, db *sql.DB, cfg config.DatabaseConfig) error {
	if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
		db.SetMaxIdleConns(cfg.PoolSize)
	}
	return nil
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder { return &paramBuilder{prefix: '$'} }

func (d *PostgresDialect) NowExpr() string     { return "NOW()" }
func (d *PostgresDialect) UUIDDefault() string { return "DEFAULT gen_random_uuid()" }
func (d *PostgresDialect) NeedsBoolFix() bool  { return false }

var pgColumnTypes = map[string]string{
	"string":    "TEXT",
	"text":      "TEXT",
	"int":       "INTEGER",
	"integer":   "INTEGER",
	"bigint":    "BIGINT",
	"float":     "DOUBLE PRECISION",
	"boolean":   "BOOLEAN",
	"uuid":      "UUID",
	"timestamp": "TIMESTAMPTZ",
	"date":      "DATE",
	"json":      "JSONB",
}

func (d *PostgresDialect) ColumnType(fieldType string, precision int) string {
	if fieldType == "decimal" {
		if precision > 0 {
			return fmt.Sprintf("NUMERIC(18,%d)", precision)
		}
		return "NUMERIC"
	}
	if t, ok := pgColumnTypes[fieldType]; ok {
		return t
	}
	return "TEXT"
}

func (d *PostgresDialect) PrimaryKeyColumn(keyType string, generated bool) string {
	switch {
	case (keyType == "int" || keyType == "") && generated:
		return "SERIAL PRIMARY KEY"
	case keyType == "bigint" && generated:
		return "BIGSERIAL PRIMARY KEY"
	case keyType == "uuid" && generated:
		return "UUID PRIMARY KEY " + d.UUIDDefault()
	case keyType == "":
		return "INTEGER PRIMARY KEY"
	}
	return d.ColumnType(keyType, 0) + " PRIMARY KEY"
}

func (d *PostgresDialect) SystemTablesSQL() string { return pgDDL.systemTables() }

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

// LikeExpr casts to text so keys and labels of any column type can be
// searched.
func (d *PostgresDialect) LikeExpr(field string, pb ParamBuilder, pattern string, negate bool) string {
	op := "ILIKE"
	if negate {
		op = "NOT ILIKE"
	}
	return fmt.Sprintf("%s::text %s %s", field, op, pb.Add(pattern))
}

func (d *PostgresDialect) OlderThanExpr(column string, pb ParamBuilder, days int) string {
	return fmt.Sprintf("%s < now() - make_interval(days => %s)", column, pb.Add(days))
}

func (d *PostgresDialect) SyncCommitOff() string {
	return "SET LOCAL synchronous_commit = off"
}

func (d *PostgresDialect) MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
