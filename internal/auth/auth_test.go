package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func request(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/reviews/abc", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	return req
}

func TestAuthenticate(t *testing.T) {
	a := &TokenAuthenticator{Token: "secret"}

	claims, err := a.Authenticate(request("Bearer secret"))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.Subject != "operator" || claims.Token != "secret" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := a.Authenticate(request("Bearer wrong")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := a.Authenticate(request("")); !errors.Is(err, ErrMissingBearer) {
		t.Fatalf("expected missing bearer, got %v", err)
	}
	if _, err := a.Authenticate(request("Basic secret")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for non-bearer, got %v", err)
	}
	if _, err := a.Authenticate(request("Bearer ")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for empty bearer, got %v", err)
	}
}

func TestAuthenticateUnconfigured(t *testing.T) {
	a := &TokenAuthenticator{}
	if _, err := a.Authenticate(request("Bearer anything")); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestNewAuthenticatorFromEnv(t *testing.T) {
	t.Setenv("VERITA_API_TOKEN", "env-token")
	a := NewAuthenticatorFromEnv()
	if a.Token != "env-token" {
		t.Fatalf("expected env token, got %q", a.Token)
	}
}
