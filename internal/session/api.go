package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrRefreshTokenInvalid marks a terminal refresh failure: the refresh
// token itself was rejected by the auth service. Any other refresh error is
// transient and leaves the session alone.
var ErrRefreshTokenInvalid = errors.New("session: refresh token invalid")

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the cached profile. Roles are resolved from the access token's
// claims when the profile itself carries none.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
}

// LoginResult is the auth service's login response through the gateway.
type LoginResult struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

// AuthAPI is the network contract the Manager depends on.
type AuthAPI interface {
	Login(ctx context.Context, creds Credentials) (LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Profile(ctx context.Context, accessToken string) (User, error)
}

// Client talks to the auth endpoints through the gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var out LoginResult
	if err := c.post(ctx, "/auth/login/", "", creds, &out); err != nil {
		return LoginResult{}, err
	}
	if out.Access == "" || out.Refresh == "" {
		return LoginResult{}, errors.New("session: login response missing tokens")
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]string{"refresh": refreshToken}
	var out struct {
		Access string `json:"access"`
	}
	err := c.post(ctx, "/auth/refresh/", "", body, &out)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusForbidden) {
			return "", fmt.Errorf("%w: %v", ErrRefreshTokenInvalid, err)
		}
		return "", err
	}
	if out.Access == "" {
		return "", errors.New("session: refresh response missing access token")
	}
	return out.Access, nil
}

func (c *Client) Profile(ctx context.Context, accessToken string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/profile/", nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out User
	if err := c.do(req, &out); err != nil {
		return User{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("session: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: string(snippet)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("session: malformed response: %w", err)
	}
	return nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("session: unexpected status %d: %s", e.status, e.body)
}
