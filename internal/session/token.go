package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the unverified view of an access token. The client only
// reads timing and roles locally; signature verification is the edge's job.
type tokenClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

var unverifiedParser = jwt.NewParser(jwt.WithoutClaimsValidation())

func parseUnverified(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("session: unparseable token: %w", err)
	}
	return claims, nil
}

// tokenExpiry reads exp without a network call. A token that cannot be
// parsed or has no expiry counts as already expired.
func tokenExpiry(raw string) (time.Time, bool) {
	claims, err := parseUnverified(raw)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// tokenRoles extracts the roles claim, or nil when absent or unreadable.
func tokenRoles(raw string) []string {
	claims, err := parseUnverified(raw)
	if err != nil {
		return nil
	}
	return claims.Roles
}
