package sqlrepo

import (
	"strings"

	"github.com/tailoredshapes/meshql/template"
)

// whereClause builds the parameterized predicate for a rendered template
// query, reusing the same column-ordering discipline the teacher's
// sqlgen.SimpleWhere uses (a deterministic column order keeps generated
// SQL stable across calls with the same shape, which matters for driver
// statement caching).
func whereClause(d Dialect, q *template.Query, startArg int) (clause string, args []interface{}) {
	var parts []string
	n := startArg

	if q.HasID {
		parts = append(parts, "id = "+d.Placeholder(n))
		args = append(args, q.ID)
		n++
	}
	for _, field := range q.Fields() {
		parts = append(parts, d.JSONExtract("payload", field)+" = "+d.Placeholder(n))
		args = append(args, q.Payload[field])
		n++
	}

	return strings.Join(parts, " AND "), args
}

// explainGuard, when set via WithExplainGuard, is consulted before every
// SELECT so tests can assert queries hit an index, mirroring the
// teacher's WithPanicOnNoIndex (sqlgen/db.go). Production wiring leaves
// this nil.
type explainGuard func(clause string, args []interface{}) error
