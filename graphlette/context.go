package graphlette

import "context"

type credentialsKey struct{}

// WithCredentials attaches the caller's authorized-token set to ctx, the
// same set every Searcher.Find/FindAll call needs for visibility
// filtering. The GraphQL and REST transports in this module only read
// it; populating it per request is left to a deployment's own
// middleware.
func WithCredentials(ctx context.Context, tokens []string) context.Context {
	return context.WithValue(ctx, credentialsKey{}, tokens)
}

// CredentialsFromContext returns the tokens WithCredentials attached, or
// nil if none were set (NoAuth backends treat nil the same as "match
// everything").
func CredentialsFromContext(ctx context.Context) []string {
	tokens, _ := ctx.Value(credentialsKey{}).([]string)
	return tokens
}
