package brokerrepo_test

import (
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/repository/brokerrepo"
	"github.com/tailoredshapes/meshql/repository/repotest"
)

// newBrokerRepo requires a reachable Kafka cluster at
// MESHQL_TEST_KAFKA_BROKERS (comma-separated host:port list); each call gets
// its own topic so conformance subtests never see each other's records.
func newBrokerRepo(t *testing.T) (envelope.Repository, envelope.Searcher) {
	t.Helper()
	brokers := os.Getenv("MESHQL_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("MESHQL_TEST_KAFKA_BROKERS not set; skipping broker-log conformance")
	}

	topic := "widgets_" + uuid.NewString()
	repo := brokerrepo.New(strings.Split(brokers, ","), topic, envelope.NoAuth{})
	return repo, repo
}

func TestBrokerConformance(t *testing.T) {
	repotest.RunConformance(t, newBrokerRepo)
}
