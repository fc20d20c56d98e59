package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"time"

	"ava-gateway/internal/token"
	"ava-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TokenVerifier is the verification contract the router depends on.
// Satisfied by *token.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (token.Claims, error)
}

type Options struct {
	// UpstreamTimeout bounds each forwarded request. Default 30s.
	UpstreamTimeout time.Duration

	// Recorder receives one event per terminal request state.
	Recorder Recorder

	// DevMode includes failure details in error bodies. Never enable in
	// production contexts.
	DevMode bool

	// Transport overrides the proxy transport (tests).
	Transport http.RoundTripper
}

// Gateway is the enforcement router: per request it matches a rule,
// applies the rule's mode, injects identity headers, and forwards.
//
// Request states: Received -> RuleMatched ->
// {Unenforced | Authenticating -> {Authenticated | Rejected}} ->
// Forwarded -> {Responded | UpstreamFailed}.
type Gateway struct {
	verifier TokenVerifier
	table    *Table
	recorder Recorder
	timeout  time.Duration
	devMode  bool

	transport http.RoundTripper
	proxies   map[string]*httputil.ReverseProxy
}

func New(verifier TokenVerifier, table *Table, opts Options) (*Gateway, error) {
	if verifier == nil {
		return nil, errors.New("gateway: token verifier is required")
	}
	if table == nil || len(table.rules) == 0 {
		return nil, errors.New("gateway: rule table is required")
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 30 * time.Second
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	g := &Gateway{
		verifier:  verifier,
		table:     table,
		recorder:  opts.Recorder,
		timeout:   opts.UpstreamTimeout,
		devMode:   opts.DevMode,
		transport: opts.Transport,
		proxies:   make(map[string]*httputil.ReverseProxy, len(table.rules)),
	}
	for i := range table.rules {
		rule := &table.rules[i]
		g.proxies[rule.Prefix] = g.newProxy(rule)
	}
	return g, nil
}

// Handler dispatches every request that is not a local gateway endpoint.
// Mount it as the catch-all (gin NoRoute).
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		g.ensureRequestID(c)

		// Anti-spoof: whatever the caller pre-set is gone before any
		// decision is made.
		stripIdentityHeaders(c.Request.Header)

		rule := g.table.Match(c.Request.URL.Path)
		if rule == nil {
			g.record(c, "", OutcomeNotFound, CodeEndpointNotFound, "")
			g.respondError(c, http.StatusNotFound, "Not Found",
				"The requested endpoint does not exist", CodeEndpointNotFound, "")
			return
		}

		userID := ""
		switch rule.Mode {
		case ModeRequired:
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				g.record(c, rule.Mode, OutcomeRejected, CodeMissingAuthHeader, "")
				g.respondError(c, http.StatusUnauthorized, "Unauthorized",
					"Authorization header is required", CodeMissingAuthHeader, "")
				return
			}
			claims, err := g.verifier.Verify(c.Request.Context(), authHeader)
			if err != nil {
				code := errorCode(err)
				logger.FromGin(c).Warn("token verification failed",
					"path", c.Request.URL.Path, "code", code, "err", err)
				g.record(c, rule.Mode, OutcomeRejected, code, "")
				g.respondError(c, http.StatusUnauthorized, "Unauthorized",
					"Invalid or expired token", code, err.Error())
				return
			}
			injectIdentity(c.Request.Header, claims.Identity())
			userID = claims.Subject

		case ModeOptional:
			if authHeader := c.GetHeader("Authorization"); authHeader != "" {
				claims, err := g.verifier.Verify(c.Request.Context(), authHeader)
				if err != nil {
					// Optional routes never block: log and forward
					// unauthenticated.
					logger.FromGin(c).Warn("optional token verification failed",
						"path", c.Request.URL.Path, "err", err)
				} else {
					injectIdentity(c.Request.Header, claims.Identity())
					userID = claims.Subject
				}
			}

		case ModeNone:
			// Forward unconditionally.
		}

		g.forward(c, rule, userID)
	}
}

// ensureRequestID assigns a request id when the inbound request carries none
// and mirrors it onto the response for correlation.
func (g *Gateway) ensureRequestID(c *gin.Context) {
	rid := c.GetHeader(HeaderRequestID)
	if rid == "" {
		rid = c.Writer.Header().Get(HeaderRequestID)
	}
	if rid == "" {
		rid = uuid.NewString()
	}
	c.Request.Header.Set(HeaderRequestID, rid)
	c.Writer.Header().Set(HeaderRequestID, rid)
}

func (g *Gateway) record(c *gin.Context, mode Mode, outcome Outcome, code, userID string) {
	g.recorder.Record(Event{
		RequestID: c.Writer.Header().Get(HeaderRequestID),
		Path:      c.Request.URL.Path,
		Mode:      mode,
		Outcome:   outcome,
		Code:      code,
		UserID:    userID,
		ClientIP:  c.ClientIP(),
	})
}

// errorCode maps verification failures onto the wire taxonomy. Everything
// unrecognized, key availability included, surfaces as INVALID_TOKEN.
func errorCode(err error) string {
	switch {
	case errors.Is(err, token.ErrExpiredToken):
		return CodeTokenExpired
	case errors.Is(err, token.ErrMalformedToken):
		return CodeMalformedToken
	case errors.Is(err, token.ErrTokenNotYetValid):
		return CodeTokenNotActive
	default:
		return CodeInvalidToken
	}
}
