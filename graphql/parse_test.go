package graphql_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailoredshapes/meshql/graphql"
)

func TestParseLowersFieldsArgsAndFragments(t *testing.T) {
	query := `
		query GetHen($id: String!) {
			getById(id: $id) {
				name
				... on Hen {
					breed
				}
			}
		}
	`
	doc, err := graphql.Parse(query, map[string]interface{}{"id": "h1"})
	require.NoError(t, err)
	require.Equal(t, "query", doc.Kind)
	require.Len(t, doc.SelectionSet.Selections, 1)

	sel := doc.SelectionSet.Selections[0]
	require.Equal(t, "getById", sel.Name)
	require.Equal(t, "h1", sel.Args["id"])
	require.NotNil(t, sel.SelectionSet)
	require.Len(t, sel.SelectionSet.Selections, 1)
	require.Equal(t, "name", sel.SelectionSet.Selections[0].Name)
	require.Len(t, sel.SelectionSet.Fragments, 1)
	require.Equal(t, "Hen", sel.SelectionSet.Fragments[0].On)
}

func TestParseRejectsMalformedQuery(t *testing.T) {
	_, err := graphql.Parse("{ not valid (", nil)
	require.Error(t, err)
}

func TestParseSchemaBuildsObjectTypeDefinitions(t *testing.T) {
	sdl := `
		type Hen {
			name: String!
			coopId: String
		}
		type Query {
			getById(id: String!): Hen
		}
	`
	doc, err := graphql.ParseSchema(sdl)
	require.NoError(t, err)
	require.NotNil(t, doc.Definitions.ForName("Hen"))
	require.NotNil(t, doc.Definitions.ForName("Query"))
}
