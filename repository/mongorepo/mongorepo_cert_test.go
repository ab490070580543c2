package mongorepo_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/repository/mongorepo"
	"github.com/tailoredshapes/meshql/repository/repotest"
)

// newMongoRepo requires a reachable MongoDB at MESHQL_TEST_MONGO_URI; unlike
// the teacher's testfixtures (which owns a MySQL instance it can create
// fresh), there is no bundled document-store fixture in this module, so the
// conformance suite skips instead of failing when one isn't provided.
func newMongoRepo(t *testing.T) (envelope.Repository, envelope.Searcher) {
	t.Helper()
	uri := os.Getenv("MESHQL_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("MESHQL_TEST_MONGO_URI not set; skipping document-store conformance")
	}

	ctx := context.Background()
	client, err := mongorepo.Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Disconnect(ctx) })

	coll := client.Database("meshql_test").Collection("widgets_" + uuid.NewString())
	t.Cleanup(func() {
		_ = coll.Drop(context.Background())
	})

	repo := mongorepo.New(coll, envelope.NoAuth{})
	return repo, repo
}

func TestMongoConformance(t *testing.T) {
	repotest.RunConformance(t, newMongoRepo)
}
