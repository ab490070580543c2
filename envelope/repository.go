package envelope

import "context"

// Repository is the envelope storage contract every backend in this
// module satisfies, per spec §4.1. All operations are suspend points:
// implementations take a context and may block on backend I/O.
type Repository interface {
	// Create assigns a fresh id if envelope.ID is empty, overwrites
	// AuthorizedTokens with tokens, appends the version, and returns the
	// persisted envelope.
	Create(ctx context.Context, e Envelope, tokens []string) (Envelope, error)

	// Read resolves the latest version of id visible at cutoff (or now+1ms
	// if at is nil) to a caller holding tokens. Returns (Envelope{}, false,
	// nil) if nothing qualifies; never returns a tombstoned version.
	Read(ctx context.Context, id string, tokens []string, at *int64) (Envelope, bool, error)

	// List returns the latest non-tombstoned version of every distinct id
	// visible to tokens.
	List(ctx context.Context, tokens []string) ([]Envelope, error)

	// Remove appends a tombstone version for id if a visible latest
	// version exists, and reports whether it did.
	Remove(ctx context.Context, id string, tokens []string) (bool, error)

	// CreateMany is the element-wise lifting of Create.
	CreateMany(ctx context.Context, es []Envelope, tokens []string) ([]Envelope, error)

	// ReadMany is the element-wise lifting of Read; absent ids are
	// skipped rather than erroring.
	ReadMany(ctx context.Context, ids []string, tokens []string, at *int64) ([]Envelope, error)

	// RemoveMany is the element-wise lifting of Remove, reporting success
	// per id.
	RemoveMany(ctx context.Context, ids []string, tokens []string) (map[string]bool, error)
}

// Searcher is the query-template-driven read contract, per spec §4.3.
type Searcher interface {
	// Find renders tmpl with args, lowers it to this backend's predicate
	// form, and returns the first non-tombstoned latest-as-of match
	// visible to credentials, or (nil, nil) if none match.
	Find(ctx context.Context, tmpl string, args Stash, credentials []string, atMs *int64) (Stash, error)

	// FindAll is as Find but returns every match, honoring an optional
	// numeric "limit" key in args.
	FindAll(ctx context.Context, tmpl string, args Stash, credentials []string, atMs *int64) ([]Stash, error)
}
