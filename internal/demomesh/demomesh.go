// Package demomesh builds the small farm/coop/hen mesh named in the
// spec's federation end-to-end scenario (a farm with coops, each coop with
// hens) as a default demo topology for cmd/meshqld, and as the fixture the
// federation end-to-end test drives. Per-deployment example wiring is out
// of scope for this module (spec.md §1), so this is intentionally tiny: it
// exists to exercise the registry-routed relation resolvers across three
// entities, not to model a real farm/egg-economy deployment.
package demomesh

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/graphlette"
	"github.com/tailoredshapes/meshql/graphql"
	"github.com/tailoredshapes/meshql/logger"
	"github.com/tailoredshapes/meshql/repository/memrepo"
	"github.com/tailoredshapes/meshql/restlette"
)

const farmSDL = `
type Query {
	getById(id: ID): Farm
	all: [Farm]
}
type Farm {
	id: ID
	name: String
	coops: [Coop]
}
type Coop {
	id: ID
	name: String
	hens: [Hen]
}
type Hen {
	id: ID
	name: String
}
`

const coopSDL = `
type Query {
	getById(id: ID): Coop
	all: [Coop]
}
type Coop {
	id: ID
	name: String
	farm_id: String
	hens: [Hen]
}
type Hen {
	id: ID
	name: String
}
`

const henSDL = `
type Query {
	getById(id: ID): Hen
	all: [Hen]
}
type Hen {
	id: ID
	name: String
	coop_id: String
}
`

// entity bundles one graphlette/restlette pair: its repository (which also
// satisfies Searcher), its RootConfig, and the schema built from it.
type entity struct {
	path   string
	repo   envelope.Repository
	search envelope.Searcher
	root   *graphlette.RootConfig
	schema *graphql.Schema
}

// Mesh is the assembled farm/coop/hen demo: three entities sharing one
// Registry, each with a live GraphQL schema and REST router.
type Mesh struct {
	Farm *entity
	Coop *entity
	Hen  *entity

	registry *graphlette.Registry
}

// Build constructs the demo mesh over in-process memrepo backends. auth
// governs visibility for every backend (pass envelope.NoAuth{} for an
// unauthenticated demo).
func Build(auth envelope.Auth) (*Mesh, error) {
	registry := graphlette.NewRegistry()

	farmRepo := memrepo.New(auth)
	coopRepo := memrepo.New(auth)
	henRepo := memrepo.New(auth)

	henRoot := graphlette.NewRootConfigBuilder().
		Singleton("getById", `{"id": "{{id}}"}`).
		Vector("all", `{}`).
		Vector("byCoopId", `{"payload.coop_id": "{{id}}"}`).
		Build()
	registry.Register("/hen", graphlette.RegistryEntry{Searcher: henRepo, RootConfig: henRoot})

	coopRoot := graphlette.NewRootConfigBuilder().
		Singleton("getById", `{"id": "{{id}}"}`).
		Vector("all", `{}`).
		Vector("byFarmId", `{"payload.farm_id": "{{id}}"}`).
		InternalVectorResolver("hens", "id", "byCoopId", "/hen").
		Build()
	registry.Register("/coop", graphlette.RegistryEntry{Searcher: coopRepo, RootConfig: coopRoot})

	farmRoot := graphlette.NewRootConfigBuilder().
		Singleton("getById", `{"id": "{{id}}"}`).
		Vector("all", `{}`).
		InternalVectorResolver("coops", "id", "byFarmId", "/coop").
		InternalVectorResolver("hens", "id", "byCoopId", "/hen").
		Build()
	registry.Register("/farm", graphlette.RegistryEntry{Searcher: farmRepo, RootConfig: farmRoot})

	farmSchema, err := graphlette.BuildSchema(farmSDL, farmRoot, farmRepo, registry)
	if err != nil {
		return nil, err
	}
	coopSchema, err := graphlette.BuildSchema(coopSDL, coopRoot, coopRepo, registry)
	if err != nil {
		return nil, err
	}
	henSchema, err := graphlette.BuildSchema(henSDL, henRoot, henRepo, registry)
	if err != nil {
		return nil, err
	}

	return &Mesh{
		Farm:     &entity{path: "farm", repo: farmRepo, search: farmRepo, root: farmRoot, schema: farmSchema},
		Coop:     &entity{path: "coop", repo: coopRepo, search: coopRepo, root: coopRoot, schema: coopSchema},
		Hen:      &entity{path: "hen", repo: henRepo, search: henRepo, root: henRoot, schema: henSchema},
		registry: registry,
	}, nil
}

// Handler mounts every entity's graphlette (POST <prefix>/<entity>/graph)
// and restlette (<prefix>/<entity>) on one router, per spec.md §6.
func (m *Mesh) Handler(prefix string, log logger.Logger) http.Handler {
	r := chi.NewRouter()
	for _, e := range []*entity{m.Farm, m.Coop, m.Hen} {
		r.Mount(prefix+"/"+e.path+"/graph", graphql.HTTPHandler(e.schema))
		r.Mount(prefix+"/"+e.path, restlette.NewRouter(e.repo, log))
	}
	return r
}

// Seed populates the mesh with one farm, two of its coops, and hens split
// between them, returning the created ids for callers (tests) that want
// to reference them.
func (m *Mesh) Seed() (farmID, coopAID, coopBID string, henIDs []string, err error) {
	ctx := context.Background()
	farm, err := m.Farm.repo.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": "Sunnybrook"}}, nil)
	if err != nil {
		return "", "", "", nil, err
	}

	coopA, err := m.Coop.repo.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": "Coop A", "farm_id": farm.ID}}, nil)
	if err != nil {
		return "", "", "", nil, err
	}
	coopB, err := m.Coop.repo.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": "Coop B", "farm_id": farm.ID}}, nil)
	if err != nil {
		return "", "", "", nil, err
	}

	names := []struct {
		name string
		coop string
	}{
		{"Henrietta", coopA.ID},
		{"Penny", coopA.ID},
		{"Clucky", coopB.ID},
	}
	for _, n := range names {
		hen, err := m.Hen.repo.Create(ctx, envelope.Envelope{Payload: envelope.Stash{"name": n.name, "coop_id": n.coop}}, nil)
		if err != nil {
			return "", "", "", nil, err
		}
		henIDs = append(henIDs, hen.ID)
	}

	return farm.ID, coopA.ID, coopB.ID, henIDs, nil
}

// FarmSchema exposes the farm graphlette's schema for direct execution in
// tests that don't need the HTTP transport.
func (m *Mesh) FarmSchema() *graphql.Schema { return m.Farm.schema }
