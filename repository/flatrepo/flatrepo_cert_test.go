package flatrepo_test

import (
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/repository/flatrepo"
	"github.com/tailoredshapes/meshql/repository/repotest"
)

// newFlatRepo requires the same MESHQL_TEST_KAFKA_BROKERS env var as
// brokerrepo's conformance test; the flat wire format is otherwise an
// implementation detail invisible to the Repository/Searcher contract.
func newFlatRepo(t *testing.T) (envelope.Repository, envelope.Searcher) {
	t.Helper()
	brokers := os.Getenv("MESHQL_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("MESHQL_TEST_KAFKA_BROKERS not set; skipping flat-log conformance")
	}

	topic := "widgets_flat_" + uuid.NewString()
	repo := flatrepo.New(strings.Split(brokers, ","), topic, envelope.NoAuth{})
	return repo, repo
}

func TestFlatConformance(t *testing.T) {
	repotest.RunConformance(t, newFlatRepo)
}
