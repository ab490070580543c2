// Package repotest is the cross-backend conformance suite described in
// spec §8, grounded on original_source's meshql-cert crate (world.rs,
// steps/repo.rs, steps/searcher.rs): every backend package in this
// module calls RunConformance from its own *_cert_test.go so the same
// properties are checked against every Repository/Searcher pairing.
package repotest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailoredshapes/meshql/envelope"
)

// ptr is a small helper for building *int64 cutoffs inline.
func ptr(v int64) *int64 { return &v }

// RunConformance exercises the testable properties and end-to-end
// scenarios of spec §8 against repo/searcher. newPair builds a fresh,
// independent repository/searcher pair backed by the same store for each
// subtest; a backend whose Repo implements both returns it twice.
func RunConformance(t *testing.T, newPair func(t *testing.T) (envelope.Repository, envelope.Searcher)) {
	t.Run("append identity", func(t *testing.T) {
		repo, _ := newPair(t)
		ctx := context.Background()

		created, err := repo.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": "alpha"}}, nil)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		read, ok, err := repo.Read(ctx, created.ID, nil, nil)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, created.ID, read.ID)
		require.Equal(t, "alpha", read.Payload["name"])
	})

	t.Run("temporal monotonicity", func(t *testing.T) {
		repo, _ := newPair(t)
		ctx := context.Background()

		id := "temporal-1"
		t1 := envelope.NowMs()
		_, err := repo.Create(ctx, envelope.Envelope{ID: id, Payload: envelope.Stash{"name": "old"}, CreatedAtMs: t1}, nil)
		require.NoError(t, err)

		t2 := t1 + 100
		_, err = repo.Create(ctx, envelope.Envelope{ID: id, Payload: envelope.Stash{"name": "new"}, CreatedAtMs: t2}, nil)
		require.NoError(t, err)

		before, ok, err := repo.Read(ctx, id, nil, ptr(t1))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "old", before.Payload["name"])

		mid, ok, err := repo.Read(ctx, id, nil, ptr(t1+50))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "old", mid.Payload["name"])

		at, ok, err := repo.Read(ctx, id, nil, ptr(t2))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "new", at.Payload["name"])
	})

	t.Run("tombstone masking", func(t *testing.T) {
		repo, _ := newPair(t)
		ctx := context.Background()

		created, err := repo.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": "gone-soon"}}, nil)
		require.NoError(t, err)

		ok, err := repo.Remove(ctx, created.ID, nil)
		require.NoError(t, err)
		require.True(t, ok)

		_, found, err := repo.Read(ctx, created.ID, nil, nil)
		require.NoError(t, err)
		require.False(t, found)

		list, err := repo.List(ctx, nil)
		require.NoError(t, err)
		for _, e := range list {
			require.NotEqual(t, created.ID, e.ID)
		}

		// removing an already-removed id is a no-op
		again, err := repo.Remove(ctx, created.ID, nil)
		require.NoError(t, err)
		require.False(t, again)

		// re-creating the id restores visibility
		_, err = repo.Create(ctx, envelope.Envelope{ID: created.ID, Payload: envelope.Stash{"name": "restored"}}, nil)
		require.NoError(t, err)
		restored, found, err := repo.Read(ctx, created.ID, nil, nil)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "restored", restored.Payload["name"])
	})

	t.Run("latest only listing", func(t *testing.T) {
		repo, _ := newPair(t)
		ctx := context.Background()

		id := "multi-version"
		for i, name := range []string{"v1", "v2", "v3"} {
			_, err := repo.Create(ctx, envelope.Envelope{ID: id, Payload: envelope.Stash{"name": name}, CreatedAtMs: envelope.NowMs() + int64(i)}, nil)
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}

		list, err := repo.List(ctx, nil)
		require.NoError(t, err)
		count := 0
		for _, e := range list {
			if e.ID == id {
				count++
				require.Equal(t, "v3", e.Payload["name"])
			}
		}
		require.Equal(t, 1, count)
	})

	t.Run("template fidelity and predicate conjunction", func(t *testing.T) {
		repo, searcher := newPair(t)
		ctx := context.Background()

		seed := []struct {
			id, name, typ string
		}{
			{"s-id-1", "alpha", "typeA"},
			{"s-id-2", "beta", "typeB"},
			{"s-id-3", "gamma", "typeA"},
			{"s-id-4", "delta", "typeB"},
		}
		for _, s := range seed {
			_, err := repo.Create(ctx, envelope.Envelope{ID: s.id, Payload: envelope.Stash{"name": s.name, "type": s.typ}}, nil)
			require.NoError(t, err)
		}

		one, err := searcher.Find(ctx, `{"id": "{{id}}"}`, envelope.Stash{"id": "s-id-1"}, nil, nil)
		require.NoError(t, err)
		require.NotNil(t, one)
		require.Equal(t, "s-id-1", one["id"])
		require.Equal(t, "alpha", one["name"])

		typeA, err := searcher.FindAll(ctx, `{"payload.type": "{{type}}"}`, envelope.Stash{"type": "typeA"}, nil, nil)
		require.NoError(t, err)
		names := make([]string, 0, len(typeA))
		for _, s := range typeA {
			names = append(names, s["name"].(string))
		}
		sort.Strings(names)
		require.Equal(t, []string{"alpha", "gamma"}, names)

		none, err := searcher.FindAll(ctx, `{"payload.type": "{{type}}"}`, envelope.Stash{"type": "typeZ"}, nil, nil)
		require.NoError(t, err)
		require.Empty(t, none)

		matched, err := searcher.FindAll(ctx, `{"payload.type": "{{type}}", "payload.name": "{{name}}"}`, envelope.Stash{"type": "typeA", "name": "alpha"}, nil, nil)
		require.NoError(t, err)
		require.Len(t, matched, 1)
		require.Equal(t, "s-id-1", matched[0]["id"])
	})

	t.Run("limit respected", func(t *testing.T) {
		repo, searcher := newPair(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, err := repo.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"kind": "capped"}}, nil)
			require.NoError(t, err)
		}

		limited, err := searcher.FindAll(ctx, `{"payload.kind": "{{kind}}"}`, envelope.Stash{"kind": "capped", "limit": 2}, nil, nil)
		require.NoError(t, err)
		require.LessOrEqual(t, len(limited), 2)
	})
}
