package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the gateway process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	Auth      AuthConfig
	Upstreams UpstreamConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Env  string
	Port int

	// AllowedOrigins is the CORS origin allow-list.
	AllowedOrigins []string
}

type AuthConfig struct {
	// JWKSURL points at the key-set document of the issuing authority.
	// Defaults to a loopback path through the gateway itself: direct requests
	// to the auth service with an underscore hostname trip its host-header
	// validation, and the JWKS endpoint needs no credential anyway.
	JWKSURL string

	Issuer   string
	Audience string
}

type UpstreamConfig struct {
	AuthServiceURL           string
	LearningServiceURL       string
	RecommendationServiceURL string

	// Timeout bounds every forwarded request.
	Timeout time.Duration
}

// RedisConfig is optional. When Host is empty the gateway falls back to an
// in-process rate limiter, which is fine for single-instance deployments.
type RedisConfig struct {
	Host string
	Port int
}

type RateLimitConfig struct {
	// Max requests admitted per client address within Window.
	Max    int
	Window time.Duration
}

const (
	defaultJWKSURL  = "http://127.0.0.1/auth/.well-known/jwks.json"
	defaultIssuer   = "ava-auth-service"
	defaultAudience = "ava-microservices"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = optInt("APP_PORT", 80, &parseErrs)
	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.App.AllowedOrigins = append(c.App.AllowedOrigins, o)
			}
		}
	} else {
		c.App.AllowedOrigins = []string{"http://localhost:4200"}
	}

	c.Auth.JWKSURL = envOr("AUTH_SERVICE_JWKS_URL", defaultJWKSURL)
	c.Auth.Issuer = envOr("JWT_ISSUER", defaultIssuer)
	c.Auth.Audience = envOr("JWT_AUDIENCE", defaultAudience)

	c.Upstreams.AuthServiceURL = envOr("AUTH_SERVICE_URL", "http://auth_service:8000")
	c.Upstreams.LearningServiceURL = envOr("LEARNING_SERVICE_URL", "http://learning_service:8000")
	c.Upstreams.RecommendationServiceURL = envOr("RECOMMENDATION_SERVICE_URL", "http://recommendation_service:8000")
	c.Upstreams.Timeout = optDuration("UPSTREAM_TIMEOUT", 30*time.Second)

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		c.Redis.Port = optInt("REDIS_PORT", 6379, &parseErrs)
	}

	c.RateLimit.Max = optInt("RATE_LIMIT_MAX", 100, &parseErrs)
	c.RateLimit.Window = optDuration("RATE_LIMIT_WINDOW", 15*time.Minute)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env != "" && !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	for name, raw := range map[string]string{
		"AUTH_SERVICE_JWKS_URL":      c.Auth.JWKSURL,
		"AUTH_SERVICE_URL":           c.Upstreams.AuthServiceURL,
		"LEARNING_SERVICE_URL":       c.Upstreams.LearningServiceURL,
		"RECOMMENDATION_SERVICE_URL": c.Upstreams.RecommendationServiceURL,
	} {
		if err := validURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.Auth.Issuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required"))
	}
	if c.Auth.Audience == "" {
		errs = append(errs, errors.New("JWT_AUDIENCE is required"))
	}

	if c.Upstreams.Timeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.RateLimit.Max <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func optInt(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func optDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func validURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
