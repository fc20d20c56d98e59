package gateway

import (
	"github.com/gin-gonic/gin"
)

// Stable machine-readable error codes. Part of the public API surface;
// clients branch on these, so keep them stable.
const (
	CodeMissingAuthHeader  = "MISSING_AUTH_HEADER"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeMalformedToken     = "MALFORMED_TOKEN"
	CodeTokenNotActive     = "TOKEN_NOT_ACTIVE"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeEndpointNotFound   = "ENDPOINT_NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Identity headers injected for downstream services. Inbound copies are
// always stripped first; only the edge may set these.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUsername  = "X-User-Username"
	HeaderUserRoles = "X-User-Roles"

	HeaderRequestID = "X-Request-Id"
)

// errorBody is the wire shape of every gateway-originated error.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Details   string `json:"details,omitempty"`
}

// respondError writes the structured error and aborts the chain.
// details is only emitted in development so internals never leak.
func (g *Gateway) respondError(c *gin.Context, status int, errText, message, code, details string) {
	body := errorBody{
		Error:     errText,
		Message:   message,
		Code:      code,
		RequestID: c.Writer.Header().Get(HeaderRequestID),
	}
	if g.devMode {
		body.Details = details
	}
	c.AbortWithStatusJSON(status, body)
}
