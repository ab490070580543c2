package graphql

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPHandler serves schema over a POST {query, variables} / {data,
// errors} JSON transport, the same request/response envelope shape the
// teacher's graphql.HTTPHandler uses (graphql/http.go), stripped of the
// reactive rerunner and middleware chain since this module's resolvers
// run to completion synchronously.
func HTTPHandler(schema *Schema) http.Handler {
	return &httpHandler{schema: schema, executor: &Executor{}}
}

type httpHandler struct {
	schema   *Schema
	executor *Executor
}

type httpPostBody struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type httpResponse struct {
	Data   interface{} `json:"data,omitempty"`
	Errors []string    `json:"errors,omitempty"`
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeResponse := func(status int, value interface{}, err error) {
		response := httpResponse{}
		if err != nil {
			response.Errors = []string{sanitizeError(err)}
		} else {
			response.Data = value
		}
		body, marshalErr := json.Marshal(response)
		if marshalErr != nil {
			http.Error(w, marshalErr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
	}

	if r.Method != http.MethodPost {
		writeResponse(http.StatusMethodNotAllowed, nil, errors.New("request must be a POST"))
		return
	}
	if r.Body == nil {
		writeResponse(http.StatusBadRequest, nil, errors.New("request must include a query"))
		return
	}

	var params httpPostBody
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeResponse(http.StatusBadRequest, nil, err)
		return
	}

	doc, err := Parse(params.Query, params.Variables)
	if err != nil {
		writeResponse(http.StatusBadRequest, nil, err)
		return
	}

	root := h.schema.Query
	if doc.Kind == "mutation" {
		root = h.schema.Mutation
	}
	if root == nil {
		writeResponse(http.StatusBadRequest, nil, NewClientError("schema has no %s root", doc.Kind))
		return
	}

	if err := PrepareQuery(root, doc.SelectionSet); err != nil {
		writeResponse(http.StatusBadRequest, nil, err)
		return
	}

	value, err := h.executor.Execute(r.Context(), root, nil, doc.SelectionSet)
	if err != nil {
		writeResponse(http.StatusOK, nil, err)
		return
	}
	writeResponse(http.StatusOK, value, nil)
}
