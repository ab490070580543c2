// Package restlette exposes the thin envelope CRUD surface every entity
// gets for free alongside its graphlette: POST/GET/PUT/DELETE over a
// single envelope.Repository, per spec.md §4.7 and §6. Routing is built
// on github.com/go-chi/chi/v5, the router volaticloud-volaticloud uses for
// exactly this per-entity path-parameter CRUD shape.
package restlette

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/graphlette"
	"github.com/tailoredshapes/meshql/logger"
)

// NewRouter builds the REST CRUD surface for one entity's repo, mounted
// at the caller's choice of path (typically "/<entity>"). Credentials are
// read from the same request context key graphlette's GraphQL transport
// uses, so a shared auth middleware can populate both surfaces uniformly.
func NewRouter(repo envelope.Repository, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.New()
	}
	h := &handler{repo: repo, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.read)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
	return r
}

type handler struct {
	repo envelope.Repository
	log  logger.Logger
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var payload envelope.Stash
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tokens := graphlette.CredentialsFromContext(r.Context())
	e := envelope.Envelope{Payload: payload, CreatedAtMs: envelope.NowMs()}
	created, err := h.repo.Create(r.Context(), e, tokens)
	if err != nil {
		h.log.Error("restlette create failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created.Stash())
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	tokens := graphlette.CredentialsFromContext(r.Context())
	envelopes, err := h.repo.List(r.Context(), tokens)
	if err != nil {
		h.log.Error("restlette list failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}

	out := make([]envelope.Stash, 0, len(envelopes))
	for _, e := range envelopes {
		out = append(out, e.Stash())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) read(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tokens := graphlette.CredentialsFromContext(r.Context())

	e, ok, err := h.repo.Read(r.Context(), id, tokens, nil)
	if err != nil {
		h.log.Error("restlette read failed", "err", err, "id", id)
		writeError(w, statusFor(err), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, envelope.NewError(envelope.NotFound, "no envelope for id %q", id))
		return
	}
	writeJSON(w, http.StatusOK, e.Stash())
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload envelope.Stash
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tokens := graphlette.CredentialsFromContext(r.Context())
	e := envelope.Envelope{ID: id, Payload: payload, CreatedAtMs: envelope.NowMs()}
	updated, err := h.repo.Create(r.Context(), e, tokens)
	if err != nil {
		h.log.Error("restlette update failed", "err", err, "id", id)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Stash())
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tokens := graphlette.CredentialsFromContext(r.Context())

	removed, err := h.repo.Remove(r.Context(), id, tokens)
	if err != nil {
		h.log.Error("restlette delete failed", "err", err, "id", id)
		writeError(w, statusFor(err), err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, envelope.NewError(envelope.NotFound, "no envelope for id %q", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": "deleted"})
}

func statusFor(err error) int {
	switch envelope.KindOf(err) {
	case envelope.NotFound:
		return http.StatusNotFound
	case envelope.Unauthorized:
		return http.StatusUnauthorized
	case envelope.Validation, envelope.Template, envelope.Parse:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	body, err := json.Marshal(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := err.Error()
	if sanitized, ok := err.(interface{ Sanitized() string }); ok {
		message = sanitized.Sanitized()
	}
	writeJSON(w, status, map[string]string{"error": message})
}
