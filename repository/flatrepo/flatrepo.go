// Package flatrepo is the merksql flat-log realization of the envelope
// Repository/Searcher contract (spec §4.1): the same broker client and
// scan-and-fold discipline as brokerrepo, but with a flattened on-wire
// record shape — metadata under `_id`/`_created_at`/`_deleted`/
// `_authorized_tokens` keys, payload fields hoisted to the top level
// instead of nested under a "payload" object. Out-of-pack
// (github.com/segmentio/kafka-go), justified alongside brokerrepo in
// DESIGN.md.
package flatrepo

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/template"
)

const (
	keyID      = "_id"
	keyCreated = "_created_at"
	keyDeleted = "_deleted"
	keyTokens  = "_authorized_tokens"
)

// flatten turns an Envelope into the merksql wire record: underscored
// metadata keys alongside the payload's own keys at the same level. A
// payload field named like a metadata key would collide; that is a
// schema-design error on the caller's part, not one this package guards
// against, matching the flat format's documented trade-off.
func flatten(e envelope.Envelope) map[string]interface{} {
	out := make(map[string]interface{}, len(e.Payload)+4)
	for k, v := range e.Payload {
		out[k] = v
	}
	out[keyID] = e.ID
	out[keyCreated] = e.CreatedAtMs
	out[keyDeleted] = e.Deleted
	out[keyTokens] = e.AuthorizedTokens
	return out
}

func unflatten(raw map[string]interface{}) envelope.Envelope {
	e := envelope.Envelope{Payload: envelope.Stash{}}
	for k, v := range raw {
		switch k {
		case keyID:
			e.ID, _ = v.(string)
		case keyCreated:
			switch n := v.(type) {
			case float64:
				e.CreatedAtMs = int64(n)
			case int64:
				e.CreatedAtMs = n
			}
		case keyDeleted:
			e.Deleted, _ = v.(bool)
		case keyTokens:
			if list, ok := v.([]interface{}); ok {
				tokens := make([]string, 0, len(list))
				for _, t := range list {
					if s, ok := t.(string); ok {
						tokens = append(tokens, s)
					}
				}
				e.AuthorizedTokens = tokens
			} else if strs, ok := v.([]string); ok {
				e.AuthorizedTokens = strs
			}
		default:
			e.Payload[k] = v
		}
	}
	return e
}

// Repo is a flat-log Repository and Searcher for one entity's topic.
type Repo struct {
	brokers []string
	topic   string
	auth    envelope.Auth
}

// New wraps an existing topic, same usage as brokerrepo.New.
func New(brokers []string, topic string, auth envelope.Auth) *Repo {
	if auth == nil {
		auth = envelope.NoAuth{}
	}
	return &Repo{brokers: brokers, topic: topic, auth: auth}
}

func (r *Repo) writer() *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(r.brokers...),
		Topic:    r.topic,
		Balancer: &kafka.Hash{},
	}
}

func (r *Repo) scan(ctx context.Context) ([]envelope.Envelope, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", r.brokers[0], r.topic, 0)
	if err != nil {
		return nil, envelope.Wrap(err, "dial leader for topic %s", r.topic)
	}
	defer conn.Close()

	first, err := conn.ReadFirstOffset()
	if err != nil {
		return nil, envelope.Wrap(err, "read first offset for %s", r.topic)
	}
	last, err := conn.ReadLastOffset()
	if err != nil {
		return nil, envelope.Wrap(err, "read last offset for %s", r.topic)
	}
	if last <= first {
		return nil, nil
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   r.brokers,
		Topic:     r.topic,
		Partition: 0,
	})
	defer reader.Close()
	if err := reader.SetOffset(first); err != nil {
		return nil, envelope.Wrap(err, "seek topic %s", r.topic)
	}

	var out []envelope.Envelope
	for offset := first; offset < last; offset++ {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			return nil, envelope.Wrap(err, "read message from %s", r.topic)
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			return nil, envelope.NewError(envelope.Parse, "decode record from %s at offset %d: %v", r.topic, msg.Offset, err)
		}
		out = append(out, unflatten(raw).WithInsertionOrder(msg.Offset))
	}
	return out, nil
}

func (r *Repo) produce(ctx context.Context, e envelope.Envelope) error {
	value, err := json.Marshal(flatten(e))
	if err != nil {
		return envelope.NewError(envelope.Parse, "encode record for %s: %v", r.topic, err)
	}

	w := r.writer()
	defer w.Close()
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(e.ID), Value: value}); err != nil {
		return envelope.Wrap(err, "produce to topic %s", r.topic)
	}
	return nil
}

func (r *Repo) Create(ctx context.Context, e envelope.Envelope, tokens []string) (envelope.Envelope, error) {
	if e.ID == "" {
		e.ID = envelope.NewID()
	}
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = envelope.NowMs()
	}
	e.AuthorizedTokens = tokens
	if err := r.produce(ctx, e); err != nil {
		return envelope.Envelope{}, err
	}
	return e, nil
}

func groupByID(versions []envelope.Envelope) map[string][]envelope.Envelope {
	byID := make(map[string][]envelope.Envelope)
	for _, v := range versions {
		byID[v.ID] = append(byID[v.ID], v)
	}
	return byID
}

func (r *Repo) Read(ctx context.Context, id string, tokens []string, at *int64) (envelope.Envelope, bool, error) {
	versions, err := r.scan(ctx)
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	var forID []envelope.Envelope
	for _, v := range versions {
		if v.ID == id {
			forID = append(forID, v)
		}
	}
	latest, ok := envelope.LatestAsOf(forID, envelope.DefaultCutoff(at))
	if !ok || !envelope.Visible(latest, tokens, r.auth) {
		return envelope.Envelope{}, false, nil
	}
	return latest, true, nil
}

func (r *Repo) List(ctx context.Context, tokens []string) ([]envelope.Envelope, error) {
	versions, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := envelope.DefaultCutoff(nil)
	var out []envelope.Envelope
	for _, group := range groupByID(versions) {
		latest, ok := envelope.LatestAsOf(group, cutoff)
		if ok && envelope.Visible(latest, tokens, r.auth) {
			out = append(out, latest)
		}
	}
	return out, nil
}

func (r *Repo) Remove(ctx context.Context, id string, tokens []string) (bool, error) {
	latest, ok, err := r.Read(ctx, id, tokens, nil)
	if err != nil || !ok {
		return false, err
	}
	tomb := envelope.Envelope{
		ID:               id,
		Payload:          latest.Payload,
		CreatedAtMs:      envelope.NowMs(),
		Deleted:          true,
		AuthorizedTokens: latest.AuthorizedTokens,
	}
	if err := r.produce(ctx, tomb); err != nil {
		return false, err
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

func (r *Repo) matchingLatest(ctx context.Context, tmpl string, args envelope.Stash, atMs *int64) (*template.Query, []envelope.Envelope, error) {
	q, err := template.Render(tmpl, args)
	if err != nil {
		return nil, nil, err
	}
	versions, err := r.scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	cutoff := envelope.DefaultCutoff(atMs)
	var latestPerID []envelope.Envelope
	for _, group := range groupByID(versions) {
		if latest, ok := envelope.LatestAsOf(group, cutoff); ok {
			latestPerID = append(latestPerID, latest)
		}
	}
	return q, latestPerID, nil
}

func (r *Repo) Find(ctx context.Context, tmpl string, args envelope.Stash, credentials []string, atMs *int64) (envelope.Stash, error) {
	q, latest, err := r.matchingLatest(ctx, tmpl, args, atMs)
	if err != nil {
		return nil, err
	}
	for _, e := range latest {
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
	q, latest, err := r.matchingLatest(ctx, tmpl, args, atMs)
	if err != nil {
		return nil, err
	}
	var out []envelope.Stash
	for _, e := range latest {
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

var _ envelope.Repository = (*Repo)(nil)
var _ envelope.Searcher = (*Repo)(nil)
