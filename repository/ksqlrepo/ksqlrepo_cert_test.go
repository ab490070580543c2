package ksqlrepo_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/repository/ksqlrepo"
	"github.com/tailoredshapes/meshql/repository/repotest"
)

// newKsqlRepo requires a reachable ksqlDB server at MESHQL_TEST_KSQLDB_URL
// and the Kafka brokers backing it at MESHQL_TEST_KAFKA_BROKERS; there is
// no in-process fixture for a stream-table materialization, so the suite
// skips rather than fails when either is absent.
func newKsqlRepo(t *testing.T) (envelope.Repository, envelope.Searcher) {
	t.Helper()
	url := os.Getenv("MESHQL_TEST_KSQLDB_URL")
	brokers := os.Getenv("MESHQL_TEST_KAFKA_BROKERS")
	if url == "" || brokers == "" {
		t.Skip("MESHQL_TEST_KSQLDB_URL / MESHQL_TEST_KAFKA_BROKERS not set; skipping stream-table conformance")
	}

	ctx := context.Background()
	client, err := ksqlrepo.Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	entity := "widgets_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	repo, err := ksqlrepo.New(ctx, client, ksqlrepo.Config{
		Entity:     entity,
		Brokers:    strings.Split(brokers, ","),
		MaxRetries: 20,
		RetryDelay: 250 * time.Millisecond,
	}, envelope.NoAuth{})
	if err != nil {
		t.Fatalf("new ksqlrepo: %v", err)
	}
	return repo, repo
}

func TestKsqlConformance(t *testing.T) {
	repotest.RunConformance(t, newKsqlRepo)
}
