package graphlette

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/graphql"
)

var scalarNames = map[string]bool{
	"String":  true,
	"Int":     true,
	"Float":   true,
	"Boolean": true,
	"ID":      true,
	"Date":    true,
}

// BuildSchema parses sdl, builds one graphql.Object per object type
// definition (including Query), and binds every field's resolver:
// Query fields from root's query entries against searcher, every other
// object's fields by base-type classification (scalar: direct stash
// lookup; object/list: relation-resolver lookup against root, with the
// target entity found in registry for every resolver kind). See spec.md
// §4.6.
func BuildSchema(sdl string, root *RootConfig, searcher envelope.Searcher, registry *Registry) (*graphql.Schema, error) {
	doc, err := graphql.ParseSchema(sdl)
	if err != nil {
		return nil, err
	}

	objects := make(map[string]*graphql.Object)
	var defs []*ast.Definition
	for _, def := range doc.Definitions {
		if def.Kind != ast.Object {
			continue
		}
		objects[def.Name] = &graphql.Object{Name: def.Name, Fields: make(map[string]*graphql.Field)}
		defs = append(defs, def)
	}

	for _, def := range defs {
		obj := objects[def.Name]
		for _, fieldDef := range def.Fields {
			if def.Name == "Query" {
				obj.Fields[fieldDef.Name] = buildQueryField(fieldDef, root, searcher, objects)
				continue
			}
			obj.Fields[fieldDef.Name] = buildEntityField(fieldDef, root, registry, objects)
		}
	}

	schema := &graphql.Schema{Query: objects["Query"]}
	if mutation, ok := objects["Mutation"]; ok {
		schema.Mutation = mutation
	}
	return schema, nil
}

// buildGraphQLType converts an SDL type reference into a graphql.Type,
// preserving nullability and list wrapping; a nested list collapses to
// a flat list of the innermost named type, per spec.md §4.6.
func buildGraphQLType(t *ast.Type, objects map[string]*graphql.Object) graphql.Type {
	var base graphql.Type
	if t.NamedType != "" {
		base = namedType(t.NamedType, objects)
	} else if t.Elem != nil {
		inner := t.Elem
		// Degenerate nested lists ([[X]]) to a single list of the
		// innermost named type.
		for inner.Elem != nil {
			inner = inner.Elem
		}
		base = &graphql.List{Of: namedType(inner.NamedType, objects)}
	}
	if t.NonNull {
		return &graphql.NonNull{Of: base}
	}
	return base
}

func namedType(name string, objects map[string]*graphql.Object) graphql.Type {
	if scalarNames[name] {
		return &graphql.Scalar{Name: name}
	}
	if obj, ok := objects[name]; ok {
		return obj
	}
	return &graphql.Scalar{Name: name}
}

// buildQueryField binds a Query-type field to its RootConfig query
// entry: the `at` argument, if present, is extracted as the searcher
// cutoff and excluded from the template args stash; every other
// argument is placed into the stash verbatim.
func buildQueryField(fieldDef *ast.FieldDefinition, root *RootConfig, searcher envelope.Searcher, objects map[string]*graphql.Object) *graphql.Field {
	fieldType := buildGraphQLType(fieldDef.Type, objects)
	name := fieldDef.Name

	return &graphql.Field{
		Name: name,
		Type: fieldType,
		Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}, sel *graphql.SelectionSet) (interface{}, error) {
			entry, ok := root.GetTemplate(name)
			if !ok {
				return nil, graphql.NewSafeError("no query registered for field %q", name)
			}

			stash := envelope.Stash{}
			var at *int64
			for k, v := range args {
				if k == "at" {
					if ms, ok := asInt64(v); ok {
						at = &ms
					}
					continue
				}
				stash[k] = v
			}

			credentials := CredentialsFromContext(ctx)
			if entry.IsSingleton {
				result, err := searcher.Find(ctx, entry.Template, stash, credentials, at)
				if err != nil {
					return nil, err
				}
				if result == nil {
					return nil, nil
				}
				return result, nil
			}

			results, err := searcher.FindAll(ctx, entry.Template, stash, credentials, at)
			if err != nil {
				return nil, err
			}
			return stashSlice(results), nil
		},
	}
}

// buildEntityField binds a non-Query field: a scalar field reads its
// value off the parent stash directly; an object/list field is matched
// against root's resolver sequences and its target, internal or
// external, is looked up in registry. A field with no matching resolver
// resolves to null.
func buildEntityField(fieldDef *ast.FieldDefinition, root *RootConfig, registry *Registry, objects map[string]*graphql.Object) *graphql.Field {
	fieldType := buildGraphQLType(fieldDef.Type, objects)
	name := fieldDef.Name

	if isScalarField(fieldDef.Type) {
		return &graphql.Field{
			Name: name,
			Type: fieldType,
			Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}, sel *graphql.SelectionSet) (interface{}, error) {
				stash, ok := source.(envelope.Stash)
				if !ok {
					return nil, nil
				}
				return stash[name], nil
			},
		}
	}

	entry, kind, found := root.resolverFor(name)
	if !found {
		return &graphql.Field{
			Name: name,
			Type: fieldType,
			Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}, sel *graphql.SelectionSet) (interface{}, error) {
				return nil, nil
			},
		}
	}

	isVector := kind == VectorResolverKind || kind == InternalVectorResolverKind

	return &graphql.Field{
		Name: name,
		Type: fieldType,
		Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}, sel *graphql.SelectionSet) (interface{}, error) {
			parent, ok := source.(envelope.Stash)
			if !ok {
				return nilForKind(isVector), nil
			}

			fk := entry.ForeignKey
			if fk == "" {
				fk = "id"
			}
			fkValue, _ := parent[fk].(string)
			if fkValue == "" {
				return nilForKind(isVector), nil
			}

			// External and internal endpoint_refs resolve the same way:
			// Registry.Lookup strips a full URL down to its path, so a
			// bare registry path and a URL pointing at the same
			// graphlette address the same entry.
			target, ok := registry.Lookup(entry.EndpointRef)
			if !ok {
				return nilForKind(isVector), nil
			}

			queryEntry, ok := target.RootConfig.GetTemplate(entry.QueryName)
			if !ok {
				return nilForKind(isVector), nil
			}

			// Relation resolvers always use now(), never the parent
			// query's `at`, per spec.md §4.6's Relay-semantics note.
			credentials := CredentialsFromContext(ctx)
			stash := envelope.Stash{"id": fkValue}

			if isVector {
				results, err := target.Searcher.FindAll(ctx, queryEntry.Template, stash, credentials, nil)
				if err != nil {
					return nil, err
				}
				return stashSlice(results), nil
			}

			result, err := target.Searcher.Find(ctx, queryEntry.Template, stash, credentials, nil)
			if err != nil {
				return nil, err
			}
			if result == nil {
				return nil, nil
			}
			return result, nil
		},
	}
}

func nilForKind(isVector bool) interface{} {
	if isVector {
		return []interface{}{}
	}
	return nil
}

func isScalarField(t *ast.Type) bool {
	inner := t
	for inner.Elem != nil {
		inner = inner.Elem
	}
	return scalarNames[inner.NamedType]
}

func stashSlice(results []envelope.Stash) []interface{} {
	out := make([]interface{}, len(results))
	for i, s := range results {
		out[i] = s
	}
	return out
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
