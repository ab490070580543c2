package envelope

// Auth decides whether a caller's credential tokens authorize access to a
// version's authorized_tokens set. Authorization enforcement beyond this
// token-set intersection (spec §1 Non-goals) is out of scope: Auth answers
// one yes/no question, it does not model roles, scopes, or claims.
type Auth interface {
	// Authorize reports whether callerTokens intersects versionTokens. An
	// empty versionTokens set (a version with no recorded tokens) is never
	// authorized except under NoAuth.
	Authorize(versionTokens, callerTokens []string) bool
}

// NoAuth matches always, regardless of token sets. It is the default Auth
// for repositories that do not opt into token-scoped visibility.
type NoAuth struct{}

func (NoAuth) Authorize([]string, []string) bool { return true }

// TokenIntersectionAuth authorizes when versionTokens and callerTokens
// share at least one element.
type TokenIntersectionAuth struct{}

func (TokenIntersectionAuth) Authorize(versionTokens, callerTokens []string) bool {
	if len(versionTokens) == 0 || len(callerTokens) == 0 {
		return false
	}
	want := make(map[string]struct{}, len(callerTokens))
	for _, t := range callerTokens {
		want[t] = struct{}{}
	}
	for _, t := range versionTokens {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}
