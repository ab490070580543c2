// Package sqlrepo is the relational realization of the envelope
// Repository/Searcher contract (spec §4.1), driving Postgres, MySQL, and
// SQLite behind one dialect-aware query builder. It is grounded on the
// teacher's sqlgen package: the SimpleWhere-style parameterized clause
// construction, the InsertRow/Query/QueryRow naming and shape, and the
// optional WithPanicOnNoIndex test guard (here WithExplainGuard), all
// generalized from sqlgen's struct-tag reflection to the envelope
// model's fixed five-column table.
package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/template"
)

// Repo is a relational Repository and Searcher for one entity's table.
type Repo struct {
	db      *sql.DB
	dialect Dialect
	table   string
	auth    envelope.Auth
	guard   explainGuard
}

// New opens a relational backend for table over an already-connected
// *sql.DB (the caller owns the pool's lifecycle, shared between this
// entity's repository and searcher per spec §5). It issues the
// table's idempotent CREATE TABLE IF NOT EXISTS DDL.
func New(ctx context.Context, db *sql.DB, dialect Dialect, table string, auth envelope.Auth) (*Repo, error) {
	if auth == nil {
		auth = envelope.NoAuth{}
	}
	r := &Repo{db: db, dialect: dialect, table: table, auth: auth}
	for _, stmt := range splitStatements(dialect.CreateTableSQL(table)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, envelope.Wrap(err, "create table %s", table)
		}
	}
	return r, nil
}

// WithExplainGuard attaches a test-time index-sanity check, adapted from
// the teacher's WithPanicOnNoIndex: recommended only for use in tests, it
// runs guard against every SELECT this repo issues.
func (r *Repo) WithExplainGuard(guard func(clause string, args []interface{}) error) *Repo {
	cp := *r
	cp.guard = guard
	return &cp
}

func splitStatements(ddl string) []string {
	var out []string
	start := 0
	for i := 0; i < len(ddl); i++ {
		if ddl[i] == ';' {
			if stmt := ddl[start:i]; len(stmt) > 0 {
				out = append(out, stmt)
			}
			start = i + 1
		}
	}
	if start < len(ddl) {
		if stmt := ddl[start:]; len(stmt) > 0 {
			out = append(out, stmt)
		}
	}
	return out
}

type row struct {
	id      string
	created int64
	deleted bool
	tokens  string
	payload string
}

func (r *Repo) scanRows(rows *sql.Rows) ([]row, error) {
	var out []row
	for rows.Next() {
		var rr row
		if err := rows.Scan(&rr.id, &rr.created, &rr.deleted, &rr.tokens, &rr.payload); err != nil {
			return nil, envelope.Wrap(err, "scan row")
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

func (r *Repo) toEnvelope(rr row) (envelope.Envelope, error) {
	payload, err := envelope.UnmarshalPayload(rr.payload)
	if err != nil {
		return envelope.Envelope{}, err
	}
	tokens, err := envelope.UnmarshalTokens(rr.tokens)
	if err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.Envelope{
		ID:               rr.id,
		Payload:          payload,
		CreatedAtMs:      rr.created,
		Deleted:          rr.deleted,
		AuthorizedTokens: tokens,
	}, nil
}

func (r *Repo) query(ctx context.Context, clause string, args []interface{}) (*sql.Rows, error) {
	if r.guard != nil {
		if err := r.guard(clause, args); err != nil {
			return nil, err
		}
	}
	return r.db.QueryContext(ctx, clause, args...)
}

func (r *Repo) Create(ctx context.Context, e envelope.Envelope, tokens []string) (envelope.Envelope, error) {
	if e.ID == "" {
		e.ID = envelope.NewID()
	}
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = envelope.NowMs()
	}
	e.AuthorizedTokens = tokens

	payload, err := envelope.MarshalPayload(e.Payload)
	if err != nil {
		return envelope.Envelope{}, err
	}
	tokenJSON, err := envelope.MarshalTokens(tokens)
	if err != nil {
		return envelope.Envelope{}, err
	}

	d := r.dialect
	stmt := fmt.Sprintf("INSERT INTO %s (id, created_at_ms, deleted, authorized_tokens, payload) VALUES (%s, %s, %s, %s, %s)",
		r.table, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5))
	if _, err := r.db.ExecContext(ctx, stmt, e.ID, e.CreatedAtMs, e.Deleted, tokenJSON, payload); err != nil {
		return envelope.Envelope{}, envelope.Wrap(err, "insert into %s", r.table)
	}
	return e, nil
}

// readLatestRow selects the id-and-cutoff-filtered row with the largest
// created_at_ms, ties broken by the largest seq (insertion order),
// mirroring spec §4.1's ORDER BY created_at_ms DESC LIMIT 1 lowering.
func (r *Repo) readLatestRow(ctx context.Context, id string, cutoff int64) (row, bool, error) {
	d := r.dialect
	clause := fmt.Sprintf(
		"SELECT id, created_at_ms, deleted, authorized_tokens, payload FROM %s WHERE id = %s AND created_at_ms <= %s ORDER BY created_at_ms DESC, seq DESC LIMIT 1",
		r.table, d.Placeholder(1), d.Placeholder(2))
	rows, err := r.query(ctx, clause, []interface{}{id, cutoff})
	if err != nil {
		return row{}, false, envelope.Wrap(err, "select latest for %s", id)
	}
	defer rows.Close()

	scanned, err := r.scanRows(rows)
	if err != nil {
		return row{}, false, err
	}
	if len(scanned) == 0 {
		return row{}, false, nil
	}
	return scanned[0], true, nil
}

func (r *Repo) Read(ctx context.Context, id string, tokens []string, at *int64) (envelope.Envelope, bool, error) {
	cutoff := envelope.DefaultCutoff(at)
	rr, ok, err := r.readLatestRow(ctx, id, cutoff)
	if err != nil || !ok {
		return envelope.Envelope{}, false, err
	}
	e, err := r.toEnvelope(rr)
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	if !envelope.Visible(e, tokens, r.auth) {
		return envelope.Envelope{}, false, nil
	}
	return e, true, nil
}

// List uses a windowed ROW_NUMBER() OVER (PARTITION BY id ORDER BY
// created_at_ms DESC) to project the latest version per id, per spec
// §4.1's normative relational lowering.
func (r *Repo) List(ctx context.Context, tokens []string) ([]envelope.Envelope, error) {
	clause := fmt.Sprintf(`SELECT id, created_at_ms, deleted, authorized_tokens, payload FROM (
	SELECT id, created_at_ms, deleted, authorized_tokens, payload,
	       ROW_NUMBER() OVER (PARTITION BY id ORDER BY created_at_ms DESC, seq DESC) AS rn
	FROM %s
) ranked WHERE rn = 1 AND deleted = %s`, r.table, r.falseLiteral())

	rows, err := r.query(ctx, clause, nil)
	if err != nil {
		return nil, envelope.Wrap(err, "list %s", r.table)
	}
	defer rows.Close()

	scanned, err := r.scanRows(rows)
	if err != nil {
		return nil, err
	}

	var out []envelope.Envelope
	for _, rr := range scanned {
		e, err := r.toEnvelope(rr)
		if err != nil {
			return nil, err
		}
		if envelope.Visible(e, tokens, r.auth) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repo) falseLiteral() string {
	if r.dialect.Name() == "postgres" {
		return "false"
	}
	return "0"
}

func (r *Repo) Remove(ctx context.Context, id string, tokens []string) (bool, error) {
	cutoff := envelope.DefaultCutoff(nil)
	rr, ok, err := r.readLatestRow(ctx, id, cutoff)
	if err != nil || !ok {
		return false, err
	}
	e, err := r.toEnvelope(rr)
	if err != nil {
		return false, err
	}
	if !envelope.Visible(e, tokens, r.auth) {
		return false, nil
	}

	tombTokens, err := envelope.MarshalTokens(e.AuthorizedTokens)
	if err != nil {
		return false, err
	}
	d := r.dialect
	stmt := fmt.Sprintf("INSERT INTO %s (id, created_at_ms, deleted, authorized_tokens, payload) VALUES (%s, %s, %s, %s, %s)",
		r.table, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5))
	if _, err := r.db.ExecContext(ctx, stmt, id, envelope.NowMs(), true, tombTokens, rr.payload); err != nil {
		return false, envelope.Wrap(err, "tombstone %s in %s", id, r.table)
	}
	return true, nil
}

func (r *Repo) CreateMany(ctx context.Context, es []envelope.Envelope, tokens []string) ([]envelope.Envelope, error) {
	out := make([]envelope.Envelope, 0, len(es))
	for _, e := range es {
		created, err := r.Create(ctx, e, tokens)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func (r *Repo) ReadMany(ctx context.Context, ids []string, tokens []string, at *int64) ([]envelope.Envelope, error) {
	out := make([]envelope.Envelope, 0, len(ids))
	for _, id := range ids {
		e, ok, err := r.Read(ctx, id, tokens, at)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repo) RemoveMany(ctx context.Context, ids []string, tokens []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		ok, err := r.Remove(ctx, id, tokens)
		if err != nil {
			return nil, err
		}
		out[id] = ok
	}
	return out, nil
}

// Find renders tmpl, lowers it to a SQL predicate, and returns the first
// visible latest-as-of match, per spec §4.3. The statement carries no SQL
// LIMIT; findMatches stops after one row passes the visibility check.
func (r *Repo) Find(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64) (envelope.Stash, error) {
	matches, err := r.findMatches(ctx, tmpl, args, credentials, atMs, 1)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

func (r *Repo) FindAll(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64) ([]envelope.Stash, error) {
	q, err := template.Render(tmpl, args)
	if err != nil {
		return nil, err
	}
	limit := 0
	if q.HasLimit {
		limit = q.Limit
	}
	return r.findMatches(ctx, tmpl, args, credentials, atMs, limit)
}

// findMatches is shared by Find and FindAll; sqlLimit of 0 means
// unbounded, matching the Query.Limit convention ("limit" absent means
// no cap).
func (r *Repo) findMatches(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64, sqlLimit int) ([]envelope.Stash, error) {
	q, err := template.Render(tmpl, args)
	if err != nil {
		return nil, err
	}

	cutoff := envelope.DefaultCutoff(atMs)
	where, whereArgs := whereClause(r.dialect, q, 1)

	clause := fmt.Sprintf(`SELECT id, created_at_ms, deleted, authorized_tokens, payload FROM (
	SELECT id, created_at_ms, deleted, authorized_tokens, payload,
	       ROW_NUMBER() OVER (PARTITION BY id ORDER BY created_at_ms DESC, seq DESC) AS rn
	FROM %s WHERE created_at_ms <= %s
) ranked WHERE rn = 1 AND deleted = %s`, r.table, r.dialect.Placeholder(len(whereArgs)+1), r.falseLiteral())
	args2 := append(append([]interface{}{}, whereArgs...), cutoff)
	if where != "" {
		clause = fmt.Sprintf(`SELECT id, created_at_ms, deleted, authorized_tokens, payload FROM (
	SELECT id, created_at_ms, deleted, authorized_tokens, payload,
	       ROW_NUMBER() OVER (PARTITION BY id ORDER BY created_at_ms DESC, seq DESC) AS rn
	FROM %s WHERE %s AND created_at_ms <= %s
) ranked WHERE rn = 1 AND deleted = %s`, r.table, where, r.dialect.Placeholder(len(whereArgs)+1), r.falseLiteral())
	}

	rows, err := r.query(ctx, clause, args2)
	if err != nil {
		return nil, envelope.Wrap(err, "find in %s", r.table)
	}
	defer rows.Close()

	scanned, err := r.scanRows(rows)
	if err != nil {
		return nil, err
	}

	var out []envelope.Stash
	for _, rr := range scanned {
		e, err := r.toEnvelope(rr)
		if err != nil {
			return nil, err
		}
		if !envelope.Visible(e, credentials, r.auth) {
			continue
		}
		out = append(out, e.Stash())
		if sqlLimit > 0 && len(out) >= sqlLimit {
			break
		}
	}
	return out, nil
}

var _ envelope.Repository = (*Repo)(nil)
var _ envelope.Searcher = (*Repo)(nil)
