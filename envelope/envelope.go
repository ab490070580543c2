// Package envelope defines the atomic storage unit of the mesh: an
// append-only, temporally-versioned record with soft deletion and
// token-scoped authorization, plus the Repository and Searcher contracts
// that every storage backend in this module satisfies.
package envelope

import "encoding/json"

// Stash is the runtime record type used both as a template argument bundle
// and as a query result. A result Stash conventionally has the envelope's
// id merged in under the "id" key.
type Stash map[string]interface{}

// Clone returns a shallow copy of the stash.
func (s Stash) Clone() Stash {
	out := make(Stash, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Envelope is a single immutable version of a logical record.
type Envelope struct {
	ID               string   `json:"id"`
	Payload          Stash    `json:"payload"`
	CreatedAtMs      int64    `json:"created_at"`
	Deleted          bool     `json:"deleted"`
	AuthorizedTokens []string `json:"authorized_tokens"`

	// insertionOrder breaks ties between envelopes created at the same
	// millisecond; later insertion wins. Backends that persist envelopes
	// in an inherently ordered log (broker topics, a monotonic id column)
	// derive this from that order instead of tracking it separately.
	insertionOrder int64
}

// InsertionOrder exposes the tiebreaker so that backends that must derive
// it externally (e.g. from a table's auto-increment id) can read it back.
func (e Envelope) InsertionOrder() int64 { return e.insertionOrder }

// WithInsertionOrder returns a copy of e stamped with an insertion order.
func (e Envelope) WithInsertionOrder(order int64) Envelope {
	e.insertionOrder = order
	return e
}

// Stash returns the envelope's payload merged with its id under "id", the
// shape every Searcher result and REST list entry uses.
func (e Envelope) Stash() Stash {
	out := e.Payload.Clone()
	out["id"] = e.ID
	return out
}

// MarshalPayload serializes the payload to a JSON string, the wire shape
// every backend that stores payload as text (relational TEXT column,
// double-encoded ksqlDB varchar) uses.
func MarshalPayload(p Stash) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", NewError(Parse, "marshal payload: %v", err)
	}
	return string(b), nil
}

// UnmarshalPayload is the inverse of MarshalPayload.
func UnmarshalPayload(raw string) (Stash, error) {
	var out Stash
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, NewError(Parse, "unmarshal payload: %v", err)
	}
	return out, nil
}

// MarshalTokens serializes a token set to a JSON array string, the same
// double-encoding convention MarshalPayload uses.
func MarshalTokens(tokens []string) (string, error) {
	b, err := json.Marshal(tokens)
	if err != nil {
		return "", NewError(Parse, "marshal tokens: %v", err)
	}
	return string(b), nil
}

// UnmarshalTokens is the inverse of MarshalTokens.
func UnmarshalTokens(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, NewError(Parse, "unmarshal tokens: %v", err)
	}
	return out, nil
}

// latestOf picks, among envelopes sharing an id, the one with the largest
// CreatedAtMs at or before cutoff, breaking ties by the largest insertion
// order (later insertion wins). It returns false if nothing qualifies.
func latestOf(versions []Envelope, cutoffMs int64) (Envelope, bool) {
	var best Envelope
	found := false
	for _, v := range versions {
		if v.CreatedAtMs > cutoffMs {
			continue
		}
		if !found {
			best, found = v, true
			continue
		}
		if v.CreatedAtMs > best.CreatedAtMs ||
			(v.CreatedAtMs == best.CreatedAtMs && v.insertionOrder >= best.insertionOrder) {
			best = v
		}
	}
	return best, found
}

// LatestAsOf is the shared tiebreak logic described in spec §3's "Version
// monotone addressability" invariant. Backends that must do this
// selection in Go (the in-memory, broker-log, and flat-log backends,
// which scan-and-fold client-side) use this helper directly; backends
// that push the selection into the store (relational ROW_NUMBER window,
// Mongo aggregation $group, ksqlDB LATEST_BY_OFFSET) reimplement the same
// semantics natively and do not call this function.
func LatestAsOf(versions []Envelope, cutoffMs int64) (Envelope, bool) {
	return latestOf(versions, cutoffMs)
}

// Visible reports whether a resolved latest version should be visible to
// a caller holding the given tokens: not a tombstone, and token sets
// intersect per the configured Auth.
func Visible(e Envelope, tokens []string, auth Auth) bool {
	if e.Deleted {
		return false
	}
	return auth.Authorize(e.AuthorizedTokens, tokens)
}
