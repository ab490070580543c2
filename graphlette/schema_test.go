package graphlette_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/graphlette"
	"github.com/tailoredshapes/meshql/graphql"
	"github.com/tailoredshapes/meshql/repository/memrepo"
)

const henSDL = `
	type Query {
		getById(id: ID): Hen
		all: [Hen]
	}

	type Hen {
		id: ID
		name: String
		coop: Coop
	}

	type Coop {
		id: ID
		name: String
	}
`

func TestBuildSchemaResolvesScalarAndRelationFields(t *testing.T) {
	hens := memrepo.New(envelope.NoAuth{})
	coops := memrepo.New(envelope.NoAuth{})
	ctx := context.Background()

	coop, err := coops.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": "Coop A"}}, nil)
	require.NoError(t, err)

	_, err = hens.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": "Henrietta", "coop_id": coop.ID}}, nil)
	require.NoError(t, err)

	registry := graphlette.NewRegistry()
	coopRoot := graphlette.NewRootConfigBuilder().
		Singleton("getById", `{"id": "{{id}}"}`).
		Build()
	registry.Register("/coop", graphlette.RegistryEntry{Searcher: coops, RootConfig: coopRoot})

	henRoot := graphlette.NewRootConfigBuilder().
		Singleton("getById", `{"id": "{{id}}"}`).
		Vector("all", `{}`).
		SingletonResolver("coop", "coop_id", "getById", "/coop").
		Build()
	registry.Register("/hen", graphlette.RegistryEntry{Searcher: hens, RootConfig: henRoot})

	schema, err := graphlette.BuildSchema(henSDL, henRoot, hens, registry)
	require.NoError(t, err)

	list, err := hens.FindAll(ctx, `{}`, envelope.Stash{}, nil, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	henID, _ := list[0]["id"].(string)

	doc, err := graphql.Parse(`{ getById(id: "`+henID+`") { name coop { name } } }`, nil)
	require.NoError(t, err)

	executor := &graphql.Executor{}
	result, err := executor.Execute(ctx, schema.Query, nil, doc.SelectionSet)
	require.NoError(t, err)

	data, ok := result.(map[string]interface{})
	require.True(t, ok)
	hen, ok := data["getById"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Henrietta", hen["name"])

	coopResult, ok := hen["coop"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Coop A", coopResult["name"])
}

func TestBuildSchemaNullsUnresolvedRelation(t *testing.T) {
	hens := memrepo.New(envelope.NoAuth{})
	ctx := context.Background()

	_, err := hens.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": "Lonely Hen"}}, nil)
	require.NoError(t, err)

	registry := graphlette.NewRegistry()
	henRoot := graphlette.NewRootConfigBuilder().
		Singleton("getById", `{"id": "{{id}}"}`).
		SingletonResolver("coop", "coop_id", "getById", "/coop").
		Build()
	registry.Register("/hen", graphlette.RegistryEntry{Searcher: hens, RootConfig: henRoot})

	schema, err := graphlette.BuildSchema(henSDL, henRoot, hens, registry)
	require.NoError(t, err)

	list, err := hens.FindAll(ctx, `{}`, envelope.Stash{}, nil, nil)
	require.NoError(t, err)
	henID, _ := list[0]["id"].(string)

	doc, err := graphql.Parse(`{ getById(id: "`+henID+`") { name coop { name } } }`, nil)
	require.NoError(t, err)

	executor := &graphql.Executor{}
	result, err := executor.Execute(ctx, schema.Query, nil, doc.SelectionSet)
	require.NoError(t, err)

	data := result.(map[string]interface{})
	hen := data["getById"].(map[string]interface{})
	require.Nil(t, hen["coop"])
}
