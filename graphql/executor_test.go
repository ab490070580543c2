package graphql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailoredshapes/meshql/graphql"
)

func stringScalar() graphql.Type { return &graphql.Scalar{Name: "String"} }

func TestExecutorResolvesObjectAndListFields(t *testing.T) {
	hen := &graphql.Object{
		Name: "Hen",
		Fields: map[string]*graphql.Field{
			"name": {
				Name: "name",
				Type: stringScalar(),
				Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}, s *graphql.SelectionSet) (interface{}, error) {
					return source.(map[string]interface{})["name"], nil
				},
			},
		},
	}
	coop := &graphql.Object{
		Name: "Coop",
		Fields: map[string]*graphql.Field{
			"hens": {
				Name: "hens",
				Type: &graphql.List{Of: hen},
				Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}, s *graphql.SelectionSet) (interface{}, error) {
					return []interface{}{
						map[string]interface{}{"name": "henrietta"},
						map[string]interface{}{"name": "clucky"},
					}, nil
				},
			},
		},
	}

	selectionSet := &graphql.SelectionSet{
		Selections: []*graphql.Selection{
			{
				Name:  "hens",
				Alias: "hens",
				SelectionSet: &graphql.SelectionSet{
					Selections: []*graphql.Selection{{Name: "name", Alias: "name"}},
				},
			},
		},
	}

	executor := &graphql.Executor{}
	result, err := executor.Execute(context.Background(), coop, map[string]interface{}{}, selectionSet)
	require.NoError(t, err)

	top := result.(map[string]interface{})
	hens := top["hens"].([]interface{})
	require.Len(t, hens, 2)
	require.Equal(t, "henrietta", hens[0].(map[string]interface{})["name"])
	require.Equal(t, "clucky", hens[1].(map[string]interface{})["name"])
}

func TestExecutorReturnsSafeFieldErrorUnwrapped(t *testing.T) {
	boom := &graphql.Object{
		Name: "Boom",
		Fields: map[string]*graphql.Field{
			"fail": {
				Name: "fail",
				Type: stringScalar(),
				Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}, s *graphql.SelectionSet) (interface{}, error) {
					return nil, graphql.NewSafeError("kaboom")
				},
			},
		},
	}
	selectionSet := &graphql.SelectionSet{
		Selections: []*graphql.Selection{{Name: "fail", Alias: "fail"}},
	}

	executor := &graphql.Executor{}
	_, err := executor.Execute(context.Background(), boom, map[string]interface{}{}, selectionSet)
	require.Error(t, err)
	require.Equal(t, "kaboom", graphql.ErrorCause(err).Error())
}

func TestPrepareQueryRejectsUnknownField(t *testing.T) {
	obj := &graphql.Object{
		Name:   "Thing",
		Fields: map[string]*graphql.Field{"name": {Name: "name", Type: stringScalar()}},
	}
	selectionSet := &graphql.SelectionSet{
		Selections: []*graphql.Selection{{Name: "nope", Alias: "nope"}},
	}
	err := graphql.PrepareQuery(obj, selectionSet)
	require.Error(t, err)
}
