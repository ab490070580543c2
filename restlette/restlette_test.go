package restlette_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/repository/memrepo"
	"github.com/tailoredshapes/meshql/restlette"
)

func newTestRouter() http.Handler {
	repo := memrepo.New(envelope.NoAuth{})
	return restlette.NewRouter(repo, nil)
}

func TestRestletteCreateListReadUpdateDelete(t *testing.T) {
	router := newTestRouter()

	body, _ := json.Marshal(map[string]interface{}{"name": "Henrietta"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, "Henrietta", created["name"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var read map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
	require.Equal(t, "Henrietta", read["name"])

	updateBody, _ := json.Marshal(map[string]interface{}{"name": "Henrietta II"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/"+id, bytes.NewReader(updateBody)))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "Henrietta II", updated["name"])
	require.Equal(t, id, updated["id"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deleted))
	require.Equal(t, "deleted", deleted["status"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+id, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestletteDeleteMissingIsNotFound(t *testing.T) {
	router := newTestRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/no-such-id", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestletteCreateRejectsMalformedBody(t *testing.T) {
	router := newTestRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("not json"))))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
