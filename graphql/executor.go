package graphql

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
)

// pathError attaches the dotted field path to a resolver error, the
// same nesting scheme the teacher's executor uses so a deeply nested
// resolver failure is still reportable as a single location.
type pathError struct {
	inner error
	path  []string
}

func nestPathError(key string, err error) error {
	if se, ok := err.(SanitizedError); ok {
		return se
	}
	if pe, ok := err.(*pathError); ok {
		return &pathError{inner: pe.inner, path: append(pe.path, key)}
	}
	return &pathError{inner: err, path: []string{key}}
}

// ErrorCause unwraps a pathError to the resolver error it wraps.
func ErrorCause(err error) error {
	if pe, ok := err.(*pathError); ok {
		return pe.inner
	}
	return err
}

func (pe *pathError) Error() string {
	var buffer bytes.Buffer
	for i := len(pe.path) - 1; i >= 0; i-- {
		if i < len(pe.path)-1 {
			buffer.WriteString(".")
		}
		buffer.WriteString(pe.path[i])
	}
	buffer.WriteString(": ")
	buffer.WriteString(pe.inner.Error())
	return buffer.String()
}

// PrepareQuery checks that selectionSet only names fields that actually
// exist on typ, returning a ClientError for the first mismatch so the
// query is rejected before any resolver runs. Adapted from the
// teacher's PrepareQuery with the Enum/Union cases removed.
func PrepareQuery(typ Type, selectionSet *SelectionSet) error {
	switch typ := typ.(type) {
	case *Scalar:
		if selectionSet != nil {
			return NewClientError("scalar field must have no selections")
		}
		return nil
	case *Object:
		if selectionSet == nil {
			return NewClientError("object field must have selections")
		}
		for _, selection := range selectionSet.Selections {
			if selection.Name == "__typename" {
				continue
			}
			field, ok := typ.Fields[selection.Name]
			if !ok {
				return NewClientError(`unknown field "%s" on "%s"`, selection.Name, typ.Name)
			}
			if err := PrepareQuery(field.Type, selection.SelectionSet); err != nil {
				return err
			}
		}
		for _, fragment := range selectionSet.Fragments {
			if err := PrepareQuery(typ, fragment.SelectionSet); err != nil {
				return err
			}
		}
		return nil
	case *List:
		return PrepareQuery(typ.Of, selectionSet)
	case *NonNull:
		return PrepareQuery(typ.Of, selectionSet)
	default:
		return NewSafeError("unknown type kind %T", typ)
	}
}

// safeResolve recovers a resolver panic into an error instead of taking
// down the whole request, the same guard the teacher's executor wraps
// every field resolution in.
func safeResolve(ctx context.Context, field *Field, source interface{}, args map[string]interface{}, selectionSet *SelectionSet) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			result, err = nil, fmt.Errorf("graphql: panic: %v\n%s", r, buf)
		}
	}()
	return field.Resolve(ctx, source, args, selectionSet)
}

// Executor walks a parsed selection set against a resolved source tree,
// invoking each Field's Resolve function and assembling the result into
// the map[string]interface{}/[]interface{} shape encoding/json expects.
// Unlike the teacher's Executor, this one resolves synchronously: this
// module's resolvers are direct repository/searcher calls, not an
// N+1-prone ORM graph, so there is no reactive cache or concurrency
// limiter to coordinate.
type Executor struct{}

// Execute runs selectionSet against typ/source and returns the response
// value (before JSON marshaling). A root Object's fields are resolved even
// when source is nil, since the query root has no parent value.
func (e *Executor) Execute(ctx context.Context, typ Type, source interface{}, selectionSet *SelectionSet) (interface{}, error) {
	if root, ok := typ.(*Object); ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return e.executeFields(ctx, root, source, selectionSet)
	}
	return e.execute(ctx, typ, source, selectionSet)
}

func (e *Executor) execute(ctx context.Context, typ Type, source interface{}, selectionSet *SelectionSet) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch typ := typ.(type) {
	case *Scalar:
		if source == nil {
			return nil, nil
		}
		if typ.Unmarshal != nil {
			return typ.Unmarshal(source)
		}
		return source, nil
	case *Object:
		return e.executeObject(ctx, typ, source, selectionSet)
	case *List:
		return e.executeList(ctx, typ, source, selectionSet)
	case *NonNull:
		value, err := e.execute(ctx, typ.Of, source, selectionSet)
		if err == nil && value == nil {
			return nil, NewSafeError("non-null field resolved to null")
		}
		return value, err
	default:
		return nil, NewSafeError("unknown type kind %T", typ)
	}
}

func (e *Executor) executeObject(ctx context.Context, typ *Object, source interface{}, selectionSet *SelectionSet) (interface{}, error) {
	if source == nil {
		return nil, nil
	}
	return e.executeFields(ctx, typ, source, selectionSet)
}

func (e *Executor) executeFields(ctx context.Context, typ *Object, source interface{}, selectionSet *SelectionSet) (interface{}, error) {
	fields := make(map[string]interface{})
	selections := flatten(selectionSet)
	for _, selection := range selections {
		if selection.Name == "__typename" {
			fields[selection.Alias] = typ.Name
			continue
		}

		field, ok := typ.Fields[selection.Name]
		if !ok {
			return nil, nestPathError(selection.Alias, NewClientError(`unknown field "%s"`, selection.Name))
		}

		resolved, err := safeResolve(ctx, field, source, selection.Args, selection.SelectionSet)
		if err != nil {
			return nil, nestPathError(selection.Alias, err)
		}
		value, err := e.execute(ctx, field.Type, resolved, selection.SelectionSet)
		if err != nil {
			return nil, nestPathError(selection.Alias, err)
		}
		fields[selection.Alias] = value
	}
	return fields, nil
}

var emptyList = []interface{}{}

func (e *Executor) executeList(ctx context.Context, typ *List, source interface{}, selectionSet *SelectionSet) (interface{}, error) {
	slice, ok := source.([]interface{})
	if !ok {
		return emptyList, nil
	}

	items := make([]interface{}, len(slice))
	for i, elem := range slice {
		resolved, err := e.execute(ctx, typ.Of, elem, selectionSet)
		if err != nil {
			return nil, nestPathError(fmt.Sprint(i), err)
		}
		items[i] = resolved
	}
	return items, nil
}

// flatten merges a selection set's own selections with those of every
// fragment it spreads, matching the teacher's Flatten helper. A
// fragment's type condition (On) is not checked: every fragment is
// merged into the enclosing Object's selections.
func flatten(selectionSet *SelectionSet) []*Selection {
	if selectionSet == nil {
		return nil
	}
	selections := append([]*Selection(nil), selectionSet.Selections...)
	for _, fragment := range selectionSet.Fragments {
		selections = append(selections, flatten(fragment.SelectionSet)...)
	}
	return selections
}
