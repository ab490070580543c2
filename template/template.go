// Package template renders query templates against an argument stash and
// lowers the resulting JSON object into the uniform predicate shape every
// backend in this module recognizes: an optional id equality match, a set
// of single-level payload field equality matches, all conjunctive (AND),
// plus an optional result-count limit applied after matching. See spec
// §4.2.
package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/tailoredshapes/meshql/envelope"
)

const payloadPrefix = "payload."

// Query is the result of rendering and lowering a template: the
// recognized key patterns from spec §4.2, already coerced to string
// comparison values.
type Query struct {
	// ID is the literal value to match against the envelope id column, if
	// the rendered template had an "id" key.
	ID    string
	HasID bool

	// Payload maps a single-level field name to the literal string value
	// it must equal. Iteration order is not guaranteed; use Fields() for
	// a canonical order.
	Payload map[string]string

	// Limit caps the number of results FindAll returns, applied after
	// predicate evaluation. It is read from args, never from the
	// rendered template body.
	Limit    int
	HasLimit bool
}

// Fields returns the payload field names in sorted order, for callers
// that need a canonical column/predicate ordering.
func (q *Query) Fields() []string {
	names := make([]string, 0, len(q.Payload))
	for k := range q.Payload {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether the query matches every record (no id or payload
// constraints), the "{}" template case spec §4.2 calls out explicitly.
func (q *Query) Empty() bool {
	return !q.HasID && len(q.Payload) == 0
}

// coerceString renders a raw JSON value as the literal string every
// backend binds against, matching spec §4.2's "numeric values become
// their decimal representation" rule.
func coerceString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), nil
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", envelope.NewError(envelope.Template, "cannot coerce value %v to string: %v", v, err)
		}
		return string(b), nil
	}
}

// renderArgs copies a Stash into the plain string-keyed context raymond
// expects; values are passed through unchanged.
func renderArgs(args envelope.Stash) map[string]interface{} {
	ctx := make(map[string]interface{}, len(args))
	for k, v := range args {
		ctx[k] = v
	}
	return ctx
}

// Render renders tmpl (a Handlebars-compatible string, per spec §6) with
// args, parses the result as a JSON object, and lowers it into a Query.
// Undefined variables render as empty strings (raymond's default, strict
// mode off). A limit key in args is consulted directly, not via the
// rendered template.
func Render(tmpl string, args envelope.Stash) (*Query, error) {
	rendered, err := raymond.Render(tmpl, renderArgs(args))
	if err != nil {
		return nil, envelope.NewError(envelope.Template, "render template: %v", err)
	}

	rendered = strings.TrimSpace(rendered)
	if rendered == "" {
		rendered = "{}"
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(rendered), &obj); err != nil {
		return nil, envelope.NewError(envelope.Parse, "rendered template is not a JSON object: %v", err)
	}

	q := &Query{Payload: make(map[string]string)}
	for key, value := range obj {
		switch {
		case key == "id":
			s, err := coerceString(value)
			if err != nil {
				return nil, err
			}
			q.ID, q.HasID = s, true
		case strings.HasPrefix(key, payloadPrefix):
			field := strings.TrimPrefix(key, payloadPrefix)
			if field == "" || strings.Contains(field, ".") {
				// Field paths are flat (one level); deeper dotted paths
				// are an unrecognized key pattern and are skipped.
				continue
			}
			s, err := coerceString(value)
			if err != nil {
				return nil, err
			}
			q.Payload[field] = s
		default:
			// Unknown keys are ignored rather than rejected.
		}
	}

	if limit, ok := args["limit"]; ok {
		switch n := limit.(type) {
		case int:
			q.Limit, q.HasLimit = n, true
		case int64:
			q.Limit, q.HasLimit = int(n), true
		case float64:
			q.Limit, q.HasLimit = int(n), true
		}
	}

	return q, nil
}

// Match reports whether a flattened stash (payload fields plus "id")
// satisfies q's conjunctive predicate. It is the in-process evaluator
// used by the backends that scan-and-fold client-side (memrepo,
// brokerrepo, flatrepo) instead of pushing the predicate into the store.
func (q *Query) Match(s envelope.Stash) bool {
	if q.HasID {
		id, _ := s["id"].(string)
		if id != q.ID {
			return false
		}
	}
	for field, want := range q.Payload {
		v, ok := s[field]
		if !ok {
			return false
		}
		got, err := coerceString(v)
		if err != nil || got != want {
			return false
		}
	}
	return true
}

// QuoteLiteral doubles single quotes in v, the escaping spec §4.2
// requires for backends (the stream-table/ksqlDB lowering) that inline
// literals into the query text instead of using bind parameters.
func QuoteLiteral(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// String renders q for logging/debugging purposes only.
func (q *Query) String() string {
	parts := make([]string, 0, len(q.Payload)+1)
	if q.HasID {
		parts = append(parts, fmt.Sprintf("id=%s", q.ID))
	}
	for _, f := range q.Fields() {
		parts = append(parts, fmt.Sprintf("payload.%s=%s", f, q.Payload[f]))
	}
	return strings.Join(parts, " AND ")
}
