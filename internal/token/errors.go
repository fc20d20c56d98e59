package token

import "errors"

// Verification failure taxonomy. The router maps these onto stable wire
// codes, so identity matters more than message text here.
var (
	ErrMissingToken     = errors.New("token: no token provided")
	ErrMalformedToken   = errors.New("token: malformed or improperly signed token")
	ErrExpiredToken     = errors.New("token: token expired")
	ErrTokenNotYetValid = errors.New("token: token not yet valid")
)
