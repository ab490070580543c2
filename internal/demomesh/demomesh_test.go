package demomesh_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/graphql"
	"github.com/tailoredshapes/meshql/internal/demomesh"
	"github.com/tailoredshapes/meshql/logger"
)

// TestFarmCoopHenFederation is the spec's end-to-end federation scenario:
// a farm with coops, each coop with hens, queried through the farm
// graphlette alone and resolved across all three entities via the
// registry.
func TestFarmCoopHenFederation(t *testing.T) {
	mesh, err := demomesh.Build(envelope.NoAuth{})
	require.NoError(t, err)

	farmID, _, _, henIDs, err := mesh.Seed()
	require.NoError(t, err)
	require.Len(t, henIDs, 3)

	query := fmt.Sprintf(`{ getById(id: "%s") { name coops { name hens { name } } } }`, farmID)
	doc, err := graphql.Parse(query, nil)
	require.NoError(t, err)

	executor := &graphql.Executor{}
	result, err := executor.Execute(context.Background(), mesh.FarmSchema().Query, nil, doc.SelectionSet)
	require.NoError(t, err)

	data := result.(map[string]interface{})
	farm := data["getById"].(map[string]interface{})
	require.Equal(t, "Sunnybrook", farm["name"])

	coops := farm["coops"].([]interface{})
	require.Len(t, coops, 2)

	henCounts := map[string]int{}
	var henNames []string
	for _, c := range coops {
		coop := c.(map[string]interface{})
		hens := coop["hens"].([]interface{})
		henCounts[coop["name"].(string)] = len(hens)
		for _, h := range hens {
			henNames = append(henNames, h.(map[string]interface{})["name"].(string))
		}
	}
	require.Equal(t, 2, henCounts["Coop A"])
	require.Equal(t, 1, henCounts["Coop B"])
	require.ElementsMatch(t, []string{"Henrietta", "Penny", "Clucky"}, henNames)
}

// TestFarmCoopHenREST exercises the REST surface (spec §4.7) the same
// mesh exposes alongside its graphlettes.
func TestFarmCoopHenREST(t *testing.T) {
	mesh, err := demomesh.Build(envelope.NoAuth{})
	require.NoError(t, err)

	_, coopAID, _, _, err := mesh.Seed()
	require.NoError(t, err)

	handler := mesh.Handler("", logger.New())
	req := httptest.NewRequest(http.MethodGet, "/coop/"+coopAID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Coop A", body["name"])
	require.Equal(t, coopAID, body["id"])
}
