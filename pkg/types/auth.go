package types

// TokenType represents the type of authentication token.
type TokenType string

const (
	TokenTypeAdmin TokenType = "admin"
	TokenTypeUser  TokenType = "user"
)

// AuthInfo contains identity information for authenticated requests.
// Subject is the JWT subject for user tokens and empty for admins.
type AuthInfo struct {
	TokenType TokenType
	Subject   string
}

func (a *AuthInfo) IsAdmin() bool {
	return a != nil && a.TokenType == TokenTypeAdmin
}

// CanAccessOwner reports whether the caller may act on resources owned by ownerId
func (a *AuthInfo) CanAccessOwner(ownerId string) bool {
	if a == nil {
		return false
	}
	if a.IsAdmin() {
		return true
	}
	return a.Subject != "" && a.Subject == ownerId
}
