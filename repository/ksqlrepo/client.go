package ksqlrepo

import (
	"context"

	ksqldb "github.com/thmeitz/ksqldb-go"
	"github.com/thmeitz/ksqldb-go/net"

	"github.com/tailoredshapes/meshql/envelope"
)

// pullExecClient is the slice of ksqldb-go's client this package depends
// on: statement execution (DDL/inserts) and synchronous pull queries
// against a materialized table. Narrowing to an interface keeps the rest
// of the package testable against a fake and isolates the exact
// ksqldb-go call shape to one adapter.
type pullExecClient interface {
	Execute(ctx context.Context, statement string) error
	Pull(ctx context.Context, statement string) ([]map[string]interface{}, error)
	Close()
}

// liveClient adapts ksqldb-go's KsqldbClient to pullExecClient, zipping
// each pull query's column header onto its row values since ksqldb-go
// returns them as parallel structures rather than pre-merged maps.
type liveClient struct {
	inner *ksqldb.KsqldbClient
}

// Connect dials a ksqlDB server for the given REST endpoint; one client
// can be shared across every entity's ksqlrepo.Repo.
func Connect(ctx context.Context, url string) (*liveClient, error) {
	options, err := net.NewOptions(net.Options{
		Url: url,
	})
	if err != nil {
		return nil, envelope.Wrap(err, "configure ksqldb client options")
	}
	cli, err := ksqldb.NewClientContext(ctx, options)
	if err != nil {
		return nil, envelope.Wrap(err, "connect to ksqldb at %s", url)
	}
	return &liveClient{inner: &cli}, nil
}

func (c *liveClient) Execute(ctx context.Context, statement string) error {
	_, err := c.inner.Execute(ctx, ksqldb.ExecOptions{KSql: statement})
	if err != nil {
		return envelope.Wrap(err, "execute statement: %s", statement)
	}
	return nil
}

func (c *liveClient) Pull(ctx context.Context, statement string) ([]map[string]interface{}, error) {
	header, rows, err := c.inner.Pull(ctx, ksqldb.QueryOptions{Sql: statement})
	if err != nil {
		return nil, envelope.Wrap(err, "pull query: %s", statement)
	}

	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]interface{}, len(header.Columns))
		for i, col := range header.Columns {
			if i < len(row) {
				rec[col.Name] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *liveClient) Close() {
	c.inner.Close()
}
