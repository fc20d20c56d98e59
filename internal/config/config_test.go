package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App: AppConfig{Env: "local", Port: 8080, AllowedOrigins: []string{"http://localhost:4200"}},
		Auth: AuthConfig{
			JWKSURL:  "http://127.0.0.1/auth/.well-known/jwks.json",
			Issuer:   "ava-auth-service",
			Audience: "ava-microservices",
		},
		Upstreams: UpstreamConfig{
			AuthServiceURL:           "http://auth_service:8000",
			LearningServiceURL:       "http://learning_service:8000",
			RecommendationServiceURL: "http://recommendation_service:8000",
			Timeout:                  30 * time.Second,
		},
		RateLimit: RateLimitConfig{Max: 100, Window: 15 * time.Minute},
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_RejectsBadUpstreamURL(t *testing.T) {
	c := validConfig()
	c.Upstreams.LearningServiceURL = "not-a-url"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for bad upstream url")
	}
}

func TestValidate_RejectsMissingIssuerAndAudience(t *testing.T) {
	c := validConfig()
	c.Auth.Issuer = ""
	c.Auth.Audience = ""
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "JWT_ISSUER") || !strings.Contains(err.Error(), "JWT_AUDIENCE") {
		t.Fatalf("expected both issuer and audience errors, got %v", err)
	}
}

func TestValidate_RedisPortOnlyCheckedWhenHostSet(t *testing.T) {
	c := validConfig()
	c.Redis = RedisConfig{}
	if err := c.Validate(); err != nil {
		t.Fatalf("redis should be optional, got %v", err)
	}

	c.Redis = RedisConfig{Host: "localhost", Port: 0}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected REDIS_PORT error when host is set")
	}
}

func TestValidate_RejectsZeroRateLimit(t *testing.T) {
	c := validConfig()
	c.RateLimit.Max = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected RATE_LIMIT_MAX error")
	}
}

func TestLoad_AppliesGatewayDefaults(t *testing.T) {
	// No env set in the test process for these keys; Load should fall back
	// to the documented defaults.
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Auth.JWKSURL != defaultJWKSURL {
		t.Fatalf("unexpected jwks url %q", c.Auth.JWKSURL)
	}
	if c.Auth.Issuer != defaultIssuer || c.Auth.Audience != defaultAudience {
		t.Fatalf("unexpected issuer/audience %q %q", c.Auth.Issuer, c.Auth.Audience)
	}
	if c.Upstreams.Timeout != 30*time.Second {
		t.Fatalf("unexpected upstream timeout %v", c.Upstreams.Timeout)
	}
	if c.RateLimit.Max != 100 || c.RateLimit.Window != 15*time.Minute {
		t.Fatalf("unexpected rate limit defaults %+v", c.RateLimit)
	}
	if len(c.App.AllowedOrigins) != 1 || c.App.AllowedOrigins[0] != "http://localhost:4200" {
		t.Fatalf("unexpected origins %v", c.App.AllowedOrigins)
	}
}
