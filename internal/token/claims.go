package token

import "github.com/golang-jwt/jwt/v5"

// DefaultRole is assumed when a token carries no roles claim. The issuing
// authority omits roles for plain student accounts.
const DefaultRole = "student"

// Claims are the decoded fields of a verified access token.
// A Claims value only exists after every verification check passed;
// partial results are never returned.
type Claims struct {
	jwt.RegisteredClaims

	Email    string   `json:"email"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// Identity is the subset of Claims the edge forwards downstream as headers.
// It lives for a single request; nothing at the edge persists it.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Roles    []string
}

// Identity normalizes the claims into the forwardable identity.
// Roles are never empty: absent roles default to student.
func (c Claims) Identity() Identity {
	roles := c.Roles
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}
	return Identity{
		UserID:   c.Subject,
		Email:    c.Email,
		Username: c.Username,
		Roles:    roles,
	}
}
