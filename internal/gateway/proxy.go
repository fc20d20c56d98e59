package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httputil"

	"ava-gateway/internal/token"

	"github.com/gin-gonic/gin"
)

type proxyResultKey struct{}

type proxyResult struct {
	failed bool
}

// newProxy builds the reverse proxy for one rule. The proxy rewrites the
// path onto the downstream mount point and masquerades the Host header as
// the target (the Django upstreams validate Host).
func (g *Gateway) newProxy(rule *compiledRule) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Transport: g.transport,
		Director: func(req *http.Request) {
			inboundHost := req.Host
			scheme := "http"
			if req.TLS != nil {
				scheme = "https"
			}

			req.URL.Scheme = rule.target.Scheme
			req.URL.Host = rule.target.Host
			req.URL.Path = rule.RewritePath(req.URL.Path)
			req.Host = rule.target.Host

			req.Header.Set("X-Forwarded-Host", inboundHost)
			req.Header.Set("X-Forwarded-Proto", scheme)
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			// Connectivity and timeout failures become a clean 503; raw
			// transport errors never reach the caller.
			if res, ok := req.Context().Value(proxyResultKey{}).(*proxyResult); ok {
				res.failed = true
			}

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			body := errorBody{
				Error:     "Service Unavailable",
				Message:   "The requested service is temporarily unavailable",
				Code:      CodeServiceUnavailable,
				RequestID: w.Header().Get(HeaderRequestID),
			}
			if g.devMode {
				body.Details = err.Error()
			}
			_ = json.NewEncoder(w).Encode(body)
		},
	}
}

// forward hands the request to the rule's downstream with a bounded timeout
// and records the terminal state. The timeout cancel runs before forward
// returns, so a timed-out upstream call cannot leak past the response.
func (g *Gateway) forward(c *gin.Context, rule *compiledRule, userID string) {
	res := &proxyResult{}
	ctx := context.WithValue(c.Request.Context(), proxyResultKey{}, res)
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.proxies[rule.Prefix].ServeHTTP(c.Writer, c.Request.WithContext(ctx))

	outcome := OutcomeForwarded
	code := ""
	if res.failed {
		outcome = OutcomeUpstreamFailed
		code = CodeServiceUnavailable
	}
	g.record(c, rule.Mode, outcome, code, userID)
	c.Abort()
}

// stripIdentityHeaders removes any caller-supplied identity headers so a
// public client can never spoof who they are. Runs for every matched route,
// enforced or not.
func stripIdentityHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserEmail)
	h.Del(HeaderUsername)
	h.Del(HeaderUserRoles)
}

// injectIdentity sets the identity headers derived from a verified token.
func injectIdentity(h http.Header, id token.Identity) {
	h.Set(HeaderUserID, id.UserID)
	h.Set(HeaderUserEmail, id.Email)
	h.Set(HeaderUsername, id.Username)

	roles, err := json.Marshal(id.Roles)
	if err != nil {
		// Roles are a plain string slice; marshal cannot realistically fail.
		roles = []byte(`["` + token.DefaultRole + `"]`)
	}
	h.Set(HeaderUserRoles, string(roles))
}
