package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login/" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode credentials: %v", err)
		}
		if creds.Username != "ada" {
			t.Errorf("username = %q", creds.Username)
		}
		json.NewEncoder(w).Encode(LoginResult{
			Access:  "access-1",
			Refresh: "refresh-1",
			User:    User{ID: "user-1", Username: "ada"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	res, err := c.Login(context.Background(), Credentials{Username: "ada", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Access != "access-1" || res.Refresh != "refresh-1" || res.User.ID != "user-1" {
		t.Fatalf("Login result = %+v", res)
	}
}

func TestClientLoginMissingTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"user": map[string]string{"id": "user-1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if _, err := c.Login(context.Background(), Credentials{}); err == nil {
		t.Fatal("Login succeeded without tokens in response")
	}
}

func TestClientRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refresh/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["refresh"] != "refresh-1" {
			t.Errorf("refresh body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"access": "access-2"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	access, err := c.Refresh(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if access != "access-2" {
		t.Fatalf("access = %q", access)
	}
}

func TestClientRefreshRejectedIsTerminal(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewClient(srv.URL, nil)
		_, err := c.Refresh(context.Background(), "stale")
		srv.Close()
		if !errors.Is(err, ErrRefreshTokenInvalid) {
			t.Errorf("status %d: err = %v, want ErrRefreshTokenInvalid", status, err)
		}
	}
}

func TestClientRefreshServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Refresh(context.Background(), "refresh-1")
	if err == nil {
		t.Fatal("Refresh succeeded on 502")
	}
	if errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatal("502 classified as terminal")
	}
}

func TestClientProfileSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(User{ID: "user-1", Roles: []string{"student"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	u, err := c.Profile(context.Background(), "access-1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if u.ID != "user-1" {
		t.Fatalf("Profile user = %+v", u)
	}
}
