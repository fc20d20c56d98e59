package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"ava-gateway/internal/keys"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultKid is assumed when a token header carries no kid. This narrows the
// trust model to a single static key; it is kept because the issuing
// authority is a single-key deployment that omits kid on some code paths.
const DefaultKid = "ava-auth-key-1"

const bearerPrefix = "Bearer "

// KeyResolver supplies public signing keys by kid. Satisfied by *keys.Resolver.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

type VerifierConfig struct {
	Issuer   string
	Audience string

	// Leeway is the clock-skew tolerance applied in both directions.
	Leeway time.Duration
}

// Verifier validates bearer tokens against the key resolver and a fixed
// issuer/audience pair. Only RS256 is accepted; there is no algorithm
// negotiation, so downgrade to symmetric or "none" algorithms cannot happen.
type Verifier struct {
	resolver KeyResolver
	issuer   string
	audience string
	leeway   time.Duration
	clock    func() time.Time
}

func NewVerifier(resolver KeyResolver, cfg VerifierConfig) (*Verifier, error) {
	if resolver == nil {
		return nil, errors.New("token: key resolver is required")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("token: issuer and audience are required")
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}

	return &Verifier{
		resolver: resolver,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		clock:    time.Now,
	}, nil
}

/* ===================== VERIFY TOKEN ===================== */

// Verify validates raw (with or without a Bearer prefix) and returns the
// normalized claims. Any failing check voids the whole verification.
func (v *Verifier) Verify(ctx context.Context, raw string) (Claims, error) {
	tok := stripBearer(raw)
	if tok == "" || tok == "null" {
		return Claims{}, ErrMissingToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(func() time.Time { return v.clock() }),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			kid = DefaultKid
		}
		return v.resolver.Resolve(ctx, kid)
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	if len(claims.Roles) == 0 {
		claims.Roles = []string{DefaultRole}
	}
	return claims, nil
}

// classify maps jwt/v5 parse errors onto the package taxonomy.
// Key resolution failures keep their own identity so the caller can tell
// availability problems apart from bad tokens.
func classify(err error) error {
	switch {
	case errors.Is(err, keys.ErrKeyUnavailable):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrTokenNotYetValid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

func stripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= len(bearerPrefix) && strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(raw[len(bearerPrefix):])
	}
	return raw
}
