package auth

// Scopes accepted by the progression API.
const (
	ScopeProgressionRead  = "progression:read"
	ScopeProgressionWrite = "progression:write"
)
