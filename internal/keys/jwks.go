package keys

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Set is a JSON Web Key Set document as published by the issuing authority
// (RFC 7517). Only the fields needed for RS256 verification are decoded.
type Set struct {
	Keys []JWK `json:"keys"`
}

// JWK is a single published key. N and E are base64url-encoded per RFC 7517.
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Find returns the key with the given kid, or nil if the set has none.
func (s *Set) Find(kid string) *JWK {
	for i := range s.Keys {
		if s.Keys[i].Kid == kid {
			return &s.Keys[i]
		}
	}
	return nil
}

// RSAPublicKey converts the JWK into an *rsa.PublicKey.
// Only RSA keys are supported; the gateway verifies RS256 exclusively.
func (k *JWK) RSAPublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("keys: unsupported key type %q", k.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("keys: invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("keys: invalid exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("keys: non-positive exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
