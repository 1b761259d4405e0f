package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"select-plus/internal/config"
)

// Dialect hides the differences between the supported databases: how a
// connection is prepared, how columns are typed, and the handful of
// expressions option queries and pivot syncs need.
type Dialect interface {
	Name() string
	DriverName() string

	// Configure prepares a freshly opened pool.
	Configure(ctx context.Context, db *sql.DB, cfg config.DatabaseConfig) error

	NewParamBuilder() ParamBuilder
	NowExpr() string

	// UUIDDefault is the DEFAULT clause for generated UUID keys, or "" when
	// the application has to generate them.
	UUIDDefault() string

	// NeedsBoolFix reports whether booleans come back as integers.
	NeedsBoolFix() bool

	ColumnType(fieldType string, precision int) string
	PrimaryKeyColumn(keyType string, generated bool) string
	SystemTablesSQL() string

	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)
	GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error)

	// LikeExpr is a case-insensitive pattern match with backslash escapes.
	LikeExpr(field string, pb ParamBuilder, pattern string, negate bool) string

	// OlderThanExpr matches rows whose column is more than days in the past.
	OlderThanExpr(column string, pb ParamBuilder, days int) string

	// SyncCommitOff relaxes durability inside a transaction, or is "".
	SyncCommitOff() string

	// MapError turns driver errors into ErrUniqueViolation where it applies.
	MapError(err error) error
}

// ParamBuilder hands out placeholders while collecting their values.
type ParamBuilder interface {
	Add(v any) string
	Params() []any
	Count() int
}

// NewDialect returns the dialect for a driver name; anything but "sqlite" is
// PostgreSQL.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}

// paramBuilder numbers placeholders with a dialect prefix: $1 or ?1.
type paramBuilder struct {
	prefix byte
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("%c%d", p.prefix, len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
func (p *paramBuilder) Count() int    { return len(p.params) }

// InExpr renders "field IN (...)". An empty set matches nothing.
func InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1 = 0"
	}
	return expandIn(field, "IN", pb, values)
}

// NotInExpr renders "field NOT IN (...)". An empty set matches everything.
func NotInExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1 = 1"
	}
	return expandIn(field, "NOT IN", pb, values)
}

func expandIn(field, op string, pb ParamBuilder, values []any) string {
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s %s (%s)", field, op, strings.Join(phs, ", "))
}

// ContainsExpr matches rows whose column contains term anywhere, ignoring
// case. LIKE wildcards in term match literally.
func ContainsExpr(d Dialect, field string, pb ParamBuilder, term string) string {
	return d.LikeExpr(field, pb, "%"+EscapeLike(term)+"%", false)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike makes s match literally inside a LIKE pattern.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ddlTypes fills in the system table template for one database.
type ddlTypes struct {
	text, json, timestamp, now      string
	boolean, truth, integer, double string
	uuid, uuidKey                   string
}

// _entities and _relations hold the definitions the admin catalog manages,
// _rules the before_write rules, _events the request traces.
const systemTablesTemplate = `
CREATE TABLE IF NOT EXISTS _entities (
    name        {text} PRIMARY KEY,
    table_name  {text} NOT NULL UNIQUE,
    definition  {json} NOT NULL,
    created_at  {timestamp} DEFAULT {now},
    updated_at  {timestamp} DEFAULT {now}
);

CREATE TABLE IF NOT EXISTS _relations (
    name        {text} PRIMARY KEY,
    source      {text} NOT NULL REFERENCES _entities(name) ON DELETE CASCADE,
    target      {text} NOT NULL REFERENCES _entities(name) ON DELETE CASCADE,
    definition  {json} NOT NULL,
    created_at  {timestamp} DEFAULT {now},
    updated_at  {timestamp} DEFAULT {now}
);

CREATE TABLE IF NOT EXISTS _rules (
    id          {uuid_key},
    entity      {text} NOT NULL REFERENCES _entities(name) ON DELETE CASCADE,
    hook        {text} NOT NULL DEFAULT 'before_write',
    type        {text} NOT NULL,
    definition  {json} NOT NULL,
    priority    {integer} NOT NULL DEFAULT 0,
    active      {boolean} NOT NULL DEFAULT {true},
    created_at  {timestamp} DEFAULT {now},
    updated_at  {timestamp} DEFAULT {now}
);

CREATE TABLE IF NOT EXISTS _events (
    id              {uuid_key},
    trace_id        {uuid} NOT NULL,
    span_id         {uuid} NOT NULL,
    parent_span_id  {uuid},
    event_type      {text} NOT NULL,
    source          {text} NOT NULL,
    component       {text} NOT NULL,
    action          {text} NOT NULL,
    entity          {text},
    record_id       {text},
    duration_ms     {double},
    status          {text},
    metadata        {json},
    created_at      {timestamp} NOT NULL DEFAULT {now}
);
CREATE INDEX IF NOT EXISTS idx_events_trace ON _events (trace_id);
CREATE INDEX IF NOT EXISTS idx_events_entity_created ON _events (entity, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_created ON _events (created_at DESC);
`

func (t ddlTypes) systemTables() string {
	return strings.NewReplacer(
		"{text}", t.text,
		"{json}", t.json,
		"{timestamp}", t.timestamp,
		"{now}", t.now,
		"{boolean}", t.boolean,
		"{true}", t.truth,
		"{integer}", t.integer,
		"{double}", t.double,
		"{uuid_key}", t.uuidKey,
		"{uuid}", t.uuid,
	).Replace(systemTablesTemplate)
}
