// Package memrepo is an in-process reference Repository/Searcher,
// grounded on the teacher's small dependency-free test fixtures
// (internal/testfixtures/db.go): a single mutex-guarded slice of
// envelopes playing the role every real backend's store plays. It backs
// the conformance suite that every other backend in this module replays
// against (spec §8), and is a reasonable choice for tests and small
// single-process deployments.
package memrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/template"
)

// Repo is an in-memory Repository and Searcher.
type Repo struct {
	mu       sync.Mutex
	versions []envelope.Envelope
	auth     envelope.Auth
	seq      int64
}

// New creates an empty in-memory repository using auth to decide
// visibility. Pass envelope.NoAuth{} for unauthenticated use.
func New(auth envelope.Auth) *Repo {
	if auth == nil {
		auth = envelope.NoAuth{}
	}
	return &Repo{auth: auth}
}

func (r *Repo) nextOrder() int64 {
	r.seq++
	return r.seq
}

func (r *Repo) Create(ctx context.Context, e envelope.Envelope, tokens []string) (envelope.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = envelope.NewID()
	}
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = envelope.NowMs()
	}
	e.AuthorizedTokens = tokens
	e = e.WithInsertionOrder(r.nextOrder())
	r.versions = append(r.versions, e)
	return e, nil
}

func (r *Repo) versionsFor(id string) []envelope.Envelope {
	var out []envelope.Envelope
	for _, v := range r.versions {
		if v.ID == id {
			out = append(out, v)
		}
	}
	return out
}

func (r *Repo) Read(ctx context.Context, id string, tokens []string, at *int64) (envelope.Envelope, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := envelope.DefaultCutoff(at)
	latest, ok := envelope.LatestAsOf(r.versionsFor(id), cutoff)
	if !ok || !envelope.Visible(latest, tokens, r.auth) {
		return envelope.Envelope{}, false, nil
	}
	return latest, true, nil
}

func (r *Repo) List(ctx context.Context, tokens []string) ([]envelope.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID := make(map[string][]envelope.Envelope)
	var order []string
	for _, v := range r.versions {
		if _, seen := byID[v.ID]; !seen {
			order = append(order, v.ID)
		}
		byID[v.ID] = append(byID[v.ID], v)
	}

	cutoff := envelope.DefaultCutoff(nil)
	var out []envelope.Envelope
	for _, id := range order {
		latest, ok := envelope.LatestAsOf(byID[id], cutoff)
		if ok && envelope.Visible(latest, tokens, r.auth) {
			out = append(out, latest)
		}
	}
	// Stable order makes list results reproducible for tests; it carries
	// no semantic meaning beyond that.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repo) Remove(ctx context.Context, id string, tokens []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := envelope.DefaultCutoff(nil)
	latest, ok := envelope.LatestAsOf(r.versionsFor(id), cutoff)
	if !ok || !envelope.Visible(latest, tokens, r.auth) {
		return false, nil
	}

	tomb := envelope.Envelope{
		ID:               id,
		Payload:          latest.Payload,
		CreatedAtMs:      envelope.NowMs(),
		Deleted:          true,
		AuthorizedTokens: latest.AuthorizedTokens,
	}
	tomb = tomb.WithInsertionOrder(r.nextOrder())
	r.versions = append(r.versions, tomb)
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

// Find implements envelope.Searcher by rendering tmpl, scanning every
// id's latest-as-of version, and returning the first visible match. No
// ordering is guaranteed beyond "some non-tombstoned match", per spec
// §4.3.
func (r *Repo) Find(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64) (envelope.Stash, error) {
	q, err := template.Render(tmpl, args)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := envelope.DefaultCutoff(atMs)
	for _, e := range r.latestPerID(cutoff) {
		if !envelope.Visible(e, credentials, r.auth) {
			continue
		}
		stash := e.Stash()
		if q.Match(stash) {
			return stash, nil
		}
	}
	return nil, nil
}

func (r *Repo) FindAll(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64) ([]envelope.Stash, error) {
	q, err := template.Render(tmpl, args)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := envelope.DefaultCutoff(atMs)
	var out []envelope.Stash
	for _, e := range r.latestPerID(cutoff) {
		if !envelope.Visible(e, credentials, r.auth) {
			continue
		}
		stash := e.Stash()
		if q.Match(stash) {
			out = append(out, stash)
			if q.HasLimit && len(out) >= q.Limit {
				break
			}
		}
	}
	return out, nil
}

// latestPerID groups r.versions by id and resolves each group's
// latest-as-of-cutoff version, in a stable id order.
func (r *Repo) latestPerID(cutoff int64) []envelope.Envelope {
	byID := make(map[string][]envelope.Envelope)
	var order []string
	for _, v := range r.versions {
		if _, seen := byID[v.ID]; !seen {
			order = append(order, v.ID)
		}
		byID[v.ID] = append(byID[v.ID], v)
	}
	sort.Strings(order)

	var out []envelope.Envelope
	for _, id := range order {
		if latest, ok := envelope.LatestAsOf(byID[id], cutoff); ok {
			out = append(out, latest)
		}
	}
	return out
}

var _ envelope.Repository = (*Repo)(nil)
var _ envelope.Searcher = (*Repo)(nil)
