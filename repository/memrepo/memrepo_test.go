package memrepo_test

import (
	"context"
	"testing"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/repository/memrepo"
	"github.com/tailoredshapes/meshql/repository/repotest"
)

func TestMemrepoConformance(t *testing.T) {
	repotest.RunConformance(t, func(t *testing.T) (envelope.Repository, envelope.Searcher) {
		repo := memrepo.New(envelope.NoAuth{})
		return repo, repo
	})
}

func TestMemrepoTokenAuth(t *testing.T) {
	repo := memrepo.New(envelope.TokenIntersectionAuth{})
	ctx := context.Background()

	created, err := repo.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"secret": true}}, []string{"team-a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, ok, err := repo.Read(ctx, created.ID, []string{"team-b"}, nil); err != nil || ok {
		t.Fatalf("expected unauthorized read to be absent, got ok=%v err=%v", ok, err)
	}

	if _, ok, err := repo.Read(ctx, created.ID, []string{"team-a"}, nil); err != nil || !ok {
		t.Fatalf("expected authorized read to succeed, got ok=%v err=%v", ok, err)
	}
}
