package sqlrepo_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/repository/repotest"
	"github.com/tailoredshapes/meshql/repository/sqlrepo"
)

// newSQLiteRepo opens a fresh in-memory SQLite database per call so
// conformance subtests don't see each other's rows, the same isolation
// discipline the teacher's integration tests use per-test databases for.
func newSQLiteRepo(t *testing.T) (envelope.Repository, envelope.Searcher) {
	t.Helper()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := sqlrepo.New(context.Background(), db, sqlrepo.SQLite{}, "widgets", envelope.NoAuth{})
	if err != nil {
		t.Fatalf("new sqlrepo: %v", err)
	}
	return repo, repo
}

func TestSQLiteConformance(t *testing.T) {
	repotest.RunConformance(t, newSQLiteRepo)
}
