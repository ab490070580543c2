// Package graphlette builds one entity's GraphQL endpoint: the
// declarative RootConfig that names its root queries and relation
// resolvers, the process-wide Registry those resolvers consult to
// reach other entities, and BuildSchema, which turns an SDL string plus
// a RootConfig into an executable graphql.Schema. Grounded on the
// teacher's schemabuilder package in shape (a declarative builder that
// produces bound resolvers) but driven by stashes and templates instead
// of reflected Go structs, since this module's schema is defined in SDL
// at runtime rather than inferred from Go types.
package graphlette

// QueryEntry names one root-level query field: the template it renders
// against its arguments, and whether it returns one object (Singleton)
// or a list (Vector).
type QueryEntry struct {
	Name        string
	Template    string
	IsSingleton bool
}

// ResolverKind distinguishes the four relation-resolver sequences a
// RootConfig holds, matching spec.md §4.4's singleton/vector ×
// external/internal split.
type ResolverKind int

const (
	SingletonResolverKind ResolverKind = iota
	VectorResolverKind
	InternalSingletonResolverKind
	InternalVectorResolverKind
)

// ResolverEntry is one non-root relation field: how to read the foreign
// key off the parent stash, which query template to run on the target
// entity, and where that entity's graphlette lives (a URL for the
// external resolver kinds, a bare registry path for the internal ones).
type ResolverEntry struct {
	FieldName   string
	ForeignKey  string // defaults to "id" when empty
	QueryName   string
	EndpointRef string
}

// RootConfig is the immutable, declarative configuration for one
// entity's graphlette: its root queries and its four relation-resolver
// sequences, consulted in the fixed priority order spec.md §4.6
// specifies (singleton, vector, internal singleton, internal vector).
type RootConfig struct {
	queries                    []QueryEntry
	singletonResolvers         []ResolverEntry
	vectorResolvers            []ResolverEntry
	internalSingletonResolvers []ResolverEntry
	internalVectorResolvers    []ResolverEntry
}

// GetTemplate looks up a root query entry by name.
func (c *RootConfig) GetTemplate(name string) (QueryEntry, bool) {
	for _, q := range c.queries {
		if q.Name == name {
			return q, true
		}
	}
	return QueryEntry{}, false
}

// Queries returns every root query entry, in declaration order, for
// BuildSchema to bind against the SDL's Query type.
func (c *RootConfig) Queries() []QueryEntry {
	return append([]QueryEntry(nil), c.queries...)
}

// resolverFor returns the first resolver entry matching fieldName
// across the four sequences in priority order (singleton, vector,
// internal singleton, internal vector), plus which kind matched. Vector
// sequences also match a dotted field name by its suffix after the last
// dot, per spec.md §4.6.
func (c *RootConfig) resolverFor(fieldName string) (ResolverEntry, ResolverKind, bool) {
	if e, ok := findResolver(c.singletonResolvers, fieldName, false); ok {
		return e, SingletonResolverKind, true
	}
	if e, ok := findResolver(c.vectorResolvers, fieldName, true); ok {
		return e, VectorResolverKind, true
	}
	if e, ok := findResolver(c.internalSingletonResolvers, fieldName, false); ok {
		return e, InternalSingletonResolverKind, true
	}
	if e, ok := findResolver(c.internalVectorResolvers, fieldName, true); ok {
		return e, InternalVectorResolverKind, true
	}
	return ResolverEntry{}, 0, false
}

func findResolver(entries []ResolverEntry, fieldName string, matchDottedSuffix bool) (ResolverEntry, bool) {
	for _, e := range entries {
		if e.FieldName == fieldName {
			return e, true
		}
		if matchDottedSuffix && dottedSuffix(e.FieldName) == fieldName {
			return e, true
		}
	}
	return ResolverEntry{}, false
}

func dottedSuffix(fieldName string) string {
	for i := len(fieldName) - 1; i >= 0; i-- {
		if fieldName[i] == '.' {
			return fieldName[i+1:]
		}
	}
	return fieldName
}

// RootConfigBuilder accumulates query and resolver entries; call Build
// once every entry for an entity has been registered.
type RootConfigBuilder struct {
	cfg RootConfig
}

func NewRootConfigBuilder() *RootConfigBuilder {
	return &RootConfigBuilder{}
}

func (b *RootConfigBuilder) Singleton(name, template string) *RootConfigBuilder {
	b.cfg.queries = append(b.cfg.queries, QueryEntry{Name: name, Template: template, IsSingleton: true})
	return b
}

func (b *RootConfigBuilder) Vector(name, template string) *RootConfigBuilder {
	b.cfg.queries = append(b.cfg.queries, QueryEntry{Name: name, Template: template, IsSingleton: false})
	return b
}

func (b *RootConfigBuilder) SingletonResolver(fieldName, foreignKey, queryName, url string) *RootConfigBuilder {
	b.cfg.singletonResolvers = append(b.cfg.singletonResolvers, ResolverEntry{
		FieldName: fieldName, ForeignKey: foreignKey, QueryName: queryName, EndpointRef: url,
	})
	return b
}

func (b *RootConfigBuilder) VectorResolver(fieldName, foreignKey, queryName, url string) *RootConfigBuilder {
	b.cfg.vectorResolvers = append(b.cfg.vectorResolvers, ResolverEntry{
		FieldName: fieldName, ForeignKey: foreignKey, QueryName: queryName, EndpointRef: url,
	})
	return b
}

func (b *RootConfigBuilder) InternalSingletonResolver(fieldName, foreignKey, queryName, path string) *RootConfigBuilder {
	b.cfg.internalSingletonResolvers = append(b.cfg.internalSingletonResolvers, ResolverEntry{
		FieldName: fieldName, ForeignKey: foreignKey, QueryName: queryName, EndpointRef: path,
	})
	return b
}

func (b *RootConfigBuilder) InternalVectorResolver(fieldName, foreignKey, queryName, path string) *RootConfigBuilder {
	b.cfg.internalVectorResolvers = append(b.cfg.internalVectorResolvers, ResolverEntry{
		FieldName: fieldName, ForeignKey: foreignKey, QueryName: queryName, EndpointRef: path,
	})
	return b
}

func (b *RootConfigBuilder) Build() *RootConfig {
	cfg := b.cfg
	return &cfg
}
