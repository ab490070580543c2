package graphql_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailoredshapes/meshql/graphql"
)

func testSchema() *graphql.Schema {
	query := &graphql.Object{
		Name: "Query",
		Fields: map[string]*graphql.Field{
			"greeting": {
				Name: "greeting",
				Type: &graphql.Scalar{Name: "String"},
				Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}, s *graphql.SelectionSet) (interface{}, error) {
					return "hello", nil
				},
			},
		},
	}
	return &graphql.Schema{Query: query}
}

func TestHTTPHandlerExecutesQuery(t *testing.T) {
	handler := graphql.HTTPHandler(testSchema())

	body, _ := json.Marshal(map[string]interface{}{"query": "{ greeting }"})
	req := httptest.NewRequest("POST", "/graph", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp struct {
		Data   map[string]interface{} `json:"data"`
		Errors []string               `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Errors)
	require.Equal(t, "hello", resp.Data["greeting"])
}

func TestHTTPHandlerRejectsNonPost(t *testing.T) {
	handler := graphql.HTTPHandler(testSchema())
	req := httptest.NewRequest("GET", "/graph", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 405, rec.Code)
}

func TestHTTPHandlerRejectsUnknownField(t *testing.T) {
	handler := graphql.HTTPHandler(testSchema())
	body, _ := json.Marshal(map[string]interface{}{"query": "{ nope }"})
	req := httptest.NewRequest("POST", "/graph", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 400, rec.Code)
}
