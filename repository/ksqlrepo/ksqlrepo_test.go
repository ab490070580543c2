package ksqlrepo

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailoredshapes/meshql/envelope"
)

// fakeClient is an in-process stand-in for pullExecClient, letting the
// DDL/readiness/produce-then-pull flow be exercised without a live
// ksqlDB or Kafka cluster.
type fakeClient struct {
	mu   sync.Mutex
	rows map[string][]map[string]interface{} // table name -> latest rows
}

func newFakeClient() *fakeClient {
	return &fakeClient{rows: make(map[string][]map[string]interface{})}
}

func (f *fakeClient) Execute(ctx context.Context, statement string) error { return nil }

func (f *fakeClient) Pull(ctx context.Context, statement string) ([]map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// The fake doesn't parse SQL; tests seed f.rows directly under the
	// table name and this just returns whatever was seeded, which is
	// enough to exercise the retry/decode path without a real engine.
	for _, rows := range f.rows {
		return rows, nil
	}
	return nil, nil
}

func (f *fakeClient) Close() {}

func TestRowToEnvelopeRoundTrip(t *testing.T) {
	payload, err := envelope.MarshalPayload(envelope.Stash{"name": "alpha"})
	require.NoError(t, err)
	tokens, err := envelope.MarshalTokens([]string{"t1"})
	require.NoError(t, err)

	row := map[string]interface{}{
		"ID":                "s-1",
		"PAYLOAD":           payload,
		"CREATED_AT":        float64(1000),
		"DELETED":           false,
		"AUTHORIZED_TOKENS": tokens,
	}

	e, err := rowToEnvelope(row)
	require.NoError(t, err)
	require.Equal(t, "s-1", e.ID)
	require.Equal(t, "alpha", e.Payload["name"])
	require.Equal(t, int64(1000), e.CreatedAtMs)
	require.False(t, e.Deleted)
	require.Equal(t, []string{"t1"}, e.AuthorizedTokens)
}

func TestWaitForTableReadySucceedsOnFirstAnswer(t *testing.T) {
	fc := newFakeClient()
	fc.rows["meshql_widgets_table"] = []map[string]interface{}{{"id": "x"}}

	r := &Repo{client: fc, table: "meshql_widgets_table", maxRetries: 3}
	require.NoError(t, r.waitForTableReady(context.Background()))
}
