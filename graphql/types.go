package graphql

import (
	"context"
	"fmt"
)

// Type is a GraphQL type: a Scalar, an Object, a List, or a NonNull
// wrapper around one of the others. Adapted from the teacher's Type/
// Scalar/Object/List; Enum and Union are dropped since no schema this
// module builds needs them, and NonNull is added because gqlparser's
// AST preserves nullability and the schema builder (package graphlette)
// needs somewhere to put it.
type Type interface {
	String() string
	isType()
}

// Scalar is a leaf value. Unmarshal, if set, coerces a resolved Go
// value (typically pulled straight out of an envelope.Stash) into the
// wire value sent to the client; nil means pass the value through
// as-is, which is correct for string/bool/float64 JSON-native values.
type Scalar struct {
	Name      string
	Unmarshal func(interface{}) (interface{}, error)
}

func (s *Scalar) isType()        {}
func (s *Scalar) String() string { return s.Name }

// Object is a value with named fields.
type Object struct {
	Name   string
	Fields map[string]*Field
}

func (o *Object) isType()        {}
func (o *Object) String() string { return o.Name }

// List is a collection of another type.
type List struct {
	Of Type
}

func (l *List) isType()        {}
func (l *List) String() string { return fmt.Sprintf("[%s]", l.Of) }

// NonNull marks a type as required.
type NonNull struct {
	Of Type
}

func (n *NonNull) isType()        {}
func (n *NonNull) String() string { return fmt.Sprintf("%s!", n.Of) }

var (
	_ Type = (*Scalar)(nil)
	_ Type = (*Object)(nil)
	_ Type = (*List)(nil)
	_ Type = (*NonNull)(nil)
)

// Field computes one field of an Object. source is whatever the parent
// resolved to (an envelope.Stash for every field this module builds,
// nil at the query root); args is the selection's argument map, already
// merged with variables by Parse.
type Field struct {
	Name    string
	Type    Type
	Resolve func(ctx context.Context, source interface{}, args map[string]interface{}, selectionSet *SelectionSet) (interface{}, error)
}

// SelectionSet is a parsed GraphQL selection: `{ name coops { name } }`.
type SelectionSet struct {
	Selections []*Selection
	Fragments  []*Fragment
}

// Selection is one field request within a SelectionSet.
type Selection struct {
	Name         string
	Alias        string
	Args         map[string]interface{}
	SelectionSet *SelectionSet
}

// Fragment is a reusable named or inline selection set. On names the
// type condition; the executor does not check it and merges every
// fragment into the enclosing selection (see flatten).
type Fragment struct {
	On           string
	SelectionSet *SelectionSet
}

// Schema pairs the query and (optional) mutation root objects produced
// by graphlette.BuildSchema.
type Schema struct {
	Query    *Object
	Mutation *Object
}
