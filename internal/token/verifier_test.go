package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ava-gateway/internal/keys"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "ava-auth-service"
	testAudience = "ava-microservices"
)

var testNow = time.Unix(1700000000, 0).UTC()

type fixture struct {
	priv     *rsa.PrivateKey
	verifier *Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set := keys.Set{Keys: []keys.JWK{{
			Kid: DefaultKid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()),
		}}}
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	resolver, err := keys.NewResolver(keys.Options{URL: srv.URL})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	v, err := NewVerifier(resolver, VerifierConfig{Issuer: testIssuer, Audience: testAudience})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	v.clock = func() time.Time { return testNow }

	return &fixture{priv: priv, verifier: v}
}

type tokenOpts struct {
	kid      string
	noKid    bool
	issuer   string
	audience string
	roles    []string
	exp      time.Time
	nbf      time.Time
	subject  string
}

func (f *fixture) sign(t *testing.T, o tokenOpts) string {
	t.Helper()

	if o.issuer == "" {
		o.issuer = testIssuer
	}
	if o.audience == "" {
		o.audience = testAudience
	}
	if o.exp.IsZero() {
		o.exp = testNow.Add(15 * time.Minute)
	}
	if o.subject == "" {
		o.subject = "user-1"
	}

	claims := jwt.MapClaims{
		"sub":      o.subject,
		"email":    "user@ava.example",
		"username": "user1",
		"iss":      o.issuer,
		"aud":      o.audience,
		"iat":      testNow.Add(-time.Minute).Unix(),
		"exp":      o.exp.Unix(),
	}
	if o.roles != nil {
		claims["roles"] = o.roles
	}
	if !o.nbf.IsZero() {
		claims["nbf"] = o.nbf.Unix()
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if !o.noKid {
		kid := o.kid
		if kid == "" {
			kid = DefaultKid
		}
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(f.priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	f := newFixture(t)
	raw := f.sign(t, tokenOpts{roles: []string{"instructor", "student"}})

	claims, err := f.verifier.Verify(context.Background(), "Bearer "+raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "user@ava.example" || claims.Username != "user1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "instructor" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
}

func TestVerifyDefaultsRolesToStudent(t *testing.T) {
	f := newFixture(t)
	raw := f.sign(t, tokenOpts{})

	claims, err := f.verifier.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != DefaultRole {
		t.Fatalf("expected default student role, got %v", claims.Roles)
	}

	id := claims.Identity()
	if len(id.Roles) != 1 || id.Roles[0] != DefaultRole {
		t.Fatalf("identity roles should never be empty, got %v", id.Roles)
	}
}

func TestVerifyBearerPrefixCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	raw := f.sign(t, tokenOpts{})

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER ", ""} {
		if _, err := f.verifier.Verify(context.Background(), prefix+raw); err != nil {
			t.Fatalf("prefix %q: %v", prefix, err)
		}
	}
}

func TestVerifyMissingToken(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{"", "   ", "Bearer ", "null", "Bearer null"} {
		_, err := f.verifier.Verify(context.Background(), raw)
		if !errors.Is(err, ErrMissingToken) {
			t.Fatalf("input %q: expected ErrMissingToken, got %v", raw, err)
		}
	}
}

func TestVerifyExpirySkewBoundary(t *testing.T) {
	f := newFixture(t)

	// 31s past expiry is outside the 30s leeway.
	raw := f.sign(t, tokenOpts{exp: testNow.Add(-31 * time.Second)})
	_, err := f.verifier.Verify(context.Background(), raw)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken at -31s, got %v", err)
	}

	// 29s past expiry is still inside the leeway.
	raw = f.sign(t, tokenOpts{exp: testNow.Add(-29 * time.Second)})
	if _, err := f.verifier.Verify(context.Background(), raw); err != nil {
		t.Fatalf("expected success at -29s, got %v", err)
	}
}

func TestVerifyNotYetValid(t *testing.T) {
	f := newFixture(t)
	raw := f.sign(t, tokenOpts{nbf: testNow.Add(5 * time.Minute)})

	_, err := f.verifier.Verify(context.Background(), raw)
	if !errors.Is(err, ErrTokenNotYetValid) {
		t.Fatalf("expected ErrTokenNotYetValid, got %v", err)
	}

	// nbf inside the leeway window is fine.
	raw = f.sign(t, tokenOpts{nbf: testNow.Add(20 * time.Second)})
	if _, err := f.verifier.Verify(context.Background(), raw); err != nil {
		t.Fatalf("expected success within leeway, got %v", err)
	}
}

func TestVerifyRejectsSymmetricAlgorithm(t *testing.T) {
	f := newFixture(t)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": testNow.Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = DefaultKid
	raw, err := tok.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = f.verifier.Verify(context.Background(), raw)
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken for HS256, got %v", err)
	}
}

func TestVerifyRejectsWrongAudienceAndIssuer(t *testing.T) {
	f := newFixture(t)

	raw := f.sign(t, tokenOpts{audience: "other-audience"})
	if _, err := f.verifier.Verify(context.Background(), raw); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken for wrong audience, got %v", err)
	}

	raw = f.sign(t, tokenOpts{issuer: "other-issuer"})
	if _, err := f.verifier.Verify(context.Background(), raw); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken for wrong issuer, got %v", err)
	}
}

func TestVerifyUnknownKid(t *testing.T) {
	f := newFixture(t)
	raw := f.sign(t, tokenOpts{kid: "rotated-away"})

	_, err := f.verifier.Verify(context.Background(), raw)
	if !errors.Is(err, keys.ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable, got %v", err)
	}
}

func TestVerifyMissingKidFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	raw := f.sign(t, tokenOpts{noKid: true})

	if _, err := f.verifier.Verify(context.Background(), raw); err != nil {
		t.Fatalf("expected default-kid fallback to succeed, got %v", err)
	}
}

func TestVerifyGarbageInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Verify(context.Background(), "Bearer not.a.token")
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSignature(t *testing.T) {
	f := newFixture(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user-1",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": testNow.Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = DefaultKid
	raw, err := tok.SignedString(other)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = f.verifier.Verify(context.Background(), raw)
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken for forged signature, got %v", err)
	}
}
