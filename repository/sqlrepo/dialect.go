package sqlrepo

import "fmt"

// Dialect hides the SQL differences between the three relational drivers
// this backend supports (Postgres via lib/pq, MySQL via go-sql-driver,
// SQLite via mattn/go-sqlite3) behind the small surface the query builder
// needs: parameter placeholders and a JSON field extraction expression,
// modeled on the teacher's per-driver sqlgen/mysql.go split.
type Dialect interface {
	Name() string
	// Placeholder returns the bind-parameter marker for the nth
	// (1-indexed) argument in a statement.
	Placeholder(n int) string
	// JSONExtract returns a SQL expression extracting field from the JSON
	// text stored in column, coerced to text for string comparison.
	JSONExtract(column, field string) string
	// CreateTableSQL returns the idempotent DDL for this entity's table,
	// per the persisted layout in spec §6.
	CreateTableSQL(table string) string
}

// Postgres targets github.com/lib/pq.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) JSONExtract(column, field string) string {
	return fmt.Sprintf("(%s::json)->>'%s'", column, field)
}

func (Postgres) CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL,
	created_at_ms BIGINT NOT NULL,
	deleted BOOLEAN NOT NULL,
	authorized_tokens TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS %s_id_idx ON %s (id);
CREATE INDEX IF NOT EXISTS %s_id_created_idx ON %s (id, created_at_ms);`, table, table, table, table, table)
}

// MySQL targets github.com/go-sql-driver/mysql, the teacher's own driver.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) JSONExtract(column, field string) string {
	return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s, '$.%s'))", column, field)
}

func (MySQL) CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq BIGINT AUTO_INCREMENT PRIMARY KEY,
	id VARCHAR(255) NOT NULL,
	created_at_ms BIGINT NOT NULL,
	deleted BOOLEAN NOT NULL,
	authorized_tokens TEXT NOT NULL,
	payload TEXT NOT NULL,
	INDEX %s_id_idx (id),
	INDEX %s_id_created_idx (id, created_at_ms)
);`, table, table, table)
}

// SQLite targets github.com/mattn/go-sqlite3.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) JSONExtract(column, field string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", column, field)
}

func (SQLite) CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	deleted INTEGER NOT NULL,
	authorized_tokens TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS %s_id_idx ON %s (id);
CREATE INDEX IF NOT EXISTS %s_id_created_idx ON %s (id, created_at_ms);`, table, table, table, table, table)
}
