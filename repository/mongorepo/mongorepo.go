// Package mongorepo is the document-store realization of the envelope
// Repository/Searcher contract (spec §4.1), driving
// go.mongodb.org/mongo-driver. This driver is out-of-pack: no repository
// in the retrieval pack touches a document store, so it is named and
// justified in DESIGN.md rather than grounded on an example file; its
// shape (one collection per entity, an aggregation pipeline for
// latest-per-id reads) follows spec §4.1 and §6 directly.
package mongorepo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/template"
)

// doc is the on-disk shape described in spec §6: {id, createdAt, deleted,
// authorizedTokens, payload}. ObjectID is used as the insertion-order
// tiebreaker: its embedded counter is monotonically increasing within a
// process, which is sufficient for the "later insertion wins" rule since
// ties only arise from calls within the same process/millisecond.
type doc struct {
	ObjectID         primitive.ObjectID `bson:"_id,omitempty"`
	ID               string             `bson:"id"`
	CreatedAt        int64              `bson:"createdAt"`
	Deleted          bool               `bson:"deleted"`
	AuthorizedTokens []string           `bson:"authorizedTokens"`
	Payload          bson.M             `bson:"payload"`
}

func (d doc) toEnvelope() envelope.Envelope {
	payload := make(envelope.Stash, len(d.Payload))
	for k, v := range d.Payload {
		payload[k] = v
	}
	return envelope.Envelope{
		ID:               d.ID,
		Payload:          payload,
		CreatedAtMs:      d.CreatedAt,
		Deleted:          d.Deleted,
		AuthorizedTokens: d.AuthorizedTokens,
	}
}

// Repo is a document-store Repository and Searcher for one entity's
// collection.
type Repo struct {
	coll *mongo.Collection
	auth envelope.Auth
}

// New wraps an already-connected collection (the caller owns the client
// and its connection pool, shared across this entity's repository and
// searcher per spec §5).
func New(coll *mongo.Collection, auth envelope.Auth) *Repo {
	if auth == nil {
		auth = envelope.NoAuth{}
	}
	return &Repo{coll: coll, auth: auth}
}

func (r *Repo) Create(ctx context.Context, e envelope.Envelope, tokens []string) (envelope.Envelope, error) {
	if e.ID == "" {
		e.ID = envelope.NewID()
	}
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = envelope.NowMs()
	}
	e.AuthorizedTokens = tokens

	payload := bson.M{}
	for k, v := range e.Payload {
		payload[k] = v
	}

	d := doc{
		ObjectID:         primitive.NewObjectID(),
		ID:               e.ID,
		CreatedAt:        e.CreatedAtMs,
		Deleted:          e.Deleted,
		AuthorizedTokens: tokens,
		Payload:          payload,
	}
	if _, err := r.coll.InsertOne(ctx, d); err != nil {
		return envelope.Envelope{}, envelope.Wrap(err, "insert into %s", r.coll.Name())
	}
	return e, nil
}

// latestPipeline is the aggregation pipeline spec §4.1 describes: match
// by id/cutoff (and, for Find/FindAll, the rendered predicate), sort by
// (id, createdAt DESC, _id DESC), group by id taking the first document,
// replace root, and filter tombstones.
func latestPipeline(match bson.M, cutoff int64) mongo.Pipeline {
	match["createdAt"] = bson.M{"$lte": cutoff}
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "id", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id": "$id",
			"doc": bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
		{{Key: "$match", Value: bson.M{"deleted": false}}},
	}
}

func (r *Repo) runPipeline(ctx context.Context, pipeline mongo.Pipeline) ([]doc, error) {
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, envelope.Wrap(err, "aggregate on %s", r.coll.Name())
	}
	defer cur.Close(ctx)

	var out []doc
	if err := cur.All(ctx, &out); err != nil {
		return nil, envelope.Wrap(err, "decode aggregate results from %s", r.coll.Name())
	}
	return out, nil
}

func (r *Repo) Read(ctx context.Context, id string, tokens []string, at *int64) (envelope.Envelope, bool, error) {
	cutoff := envelope.DefaultCutoff(at)
	docs, err := r.runPipeline(ctx, latestPipeline(bson.M{"id": id}, cutoff))
	if err != nil || len(docs) == 0 {
		return envelope.Envelope{}, false, err
	}
	e := docs[0].toEnvelope()
	if !envelope.Visible(e, tokens, r.auth) {
		return envelope.Envelope{}, false, nil
	}
	return e, true, nil
}

func (r *Repo) List(ctx context.Context, tokens []string) ([]envelope.Envelope, error) {
	docs, err := r.runPipeline(ctx, latestPipeline(bson.M{}, envelope.DefaultCutoff(nil)))
	if err != nil {
		return nil, err
	}
	var out []envelope.Envelope
	for _, d := range docs {
		e := d.toEnvelope()
		if envelope.Visible(e, tokens, r.auth) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repo) Remove(ctx context.Context, id string, tokens []string) (bool, error) {
	e, ok, err := r.Read(ctx, id, tokens, nil)
	if err != nil || !ok {
		return false, err
	}
	tomb := doc{
		ObjectID:         primitive.NewObjectID(),
		ID:               id,
		CreatedAt:        envelope.NowMs(),
		Deleted:          true,
		AuthorizedTokens: e.AuthorizedTokens,
		Payload:          bson.M{},
	}
	for k, v := range e.Payload {
		tomb.Payload[k] = v
	}
	if _, err := r.coll.InsertOne(ctx, tomb); err != nil {
		return false, envelope.Wrap(err, "tombstone %s in %s", id, r.coll.Name())
	}
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

// matchFromQuery turns a rendered template.Query into the top-level/
// dotted-payload match document spec §4.2 specifies for document stores.
func matchFromQuery(q *template.Query) bson.M {
	match := bson.M{}
	if q.HasID {
		match["id"] = q.ID
	}
	for field, value := range q.Payload {
		match["payload."+field] = value
	}
	return match
}

func (r *Repo) findMatches(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64, limit int) ([]envelope.Stash, error) {
	q, err := template.Render(tmpl, args)
	if err != nil {
		return nil, err
	}
	docs, err := r.runPipeline(ctx, latestPipeline(matchFromQuery(q), envelope.DefaultCutoff(atMs)))
	if err != nil {
		return nil, err
	}
	var out []envelope.Stash
	for _, d := range docs {
		e := d.toEnvelope()
		if !envelope.Visible(e, credentials, r.auth) {
			continue
		}
		out = append(out, e.Stash())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *Repo) Find(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64) (envelope.Stash, error) {
	matches, err := r.findMatches(ctx, tmpl, args, credentials, atMs, 1)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

func (r *Repo) FindAll(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64) ([]envelope.Stash, error) {
	q, err := template.Render(tmpl, args)
	if err != nil {
		return nil, err
	}
	limit := 0
	if q.HasLimit {
		limit = q.Limit
	}
	return r.findMatches(ctx, tmpl, args, credentials, atMs, limit)
}

// Connect is a small convenience wrapper around mongo.Connect with a
// 10-second connect timeout; it is not part of the Repository contract.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, envelope.Wrap(err, "connect to mongo at %s", uri)
	}
	return client, nil
}

var _ envelope.Repository = (*Repo)(nil)
var _ envelope.Searcher = (*Repo)(nil)
