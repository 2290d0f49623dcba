package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthenticateNone(t *testing.T) {
	h := NewHandler()
	authCtx, err := h.Authenticate(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authCtx.Method != MethodNone {
		t.Errorf("method = %s, want none", authCtx.Method)
	}
	if authCtx.IsExpired() {
		t.Error("context without expiry should never expire")
	}
}

func TestAuthenticateBearerToken(t *testing.T) {
	h := NewHandler()

	t.Run("opaque token", func(t *testing.T) {
		authCtx, err := h.Authenticate(context.Background(), Config{
			Method:      MethodBearerToken,
			BearerToken: "opaque-token-value",
		})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if got := authCtx.Headers["Authorization"]; got != "Bearer opaque-token-value" {
			t.Errorf("Authorization = %q", got)
		}
		if !authCtx.ExpiresAt.IsZero() {
			t.Error("opaque token should have no expiry")
		}
	})

	t.Run("jwt exp claim", func(t *testing.T) {
		exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "scanner",
			"exp": exp.Unix(),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}

		authCtx, err := h.Authenticate(context.Background(), Config{
			Method:      MethodBearerToken,
			BearerToken: signed,
		})
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if !authCtx.ExpiresAt.Equal(exp) {
			t.Errorf("expires_at = %v, want %v", authCtx.ExpiresAt, exp)
		}
		if authCtx.IsExpired() {
			t.Error("token expiring in 2h should not count as expired")
		}
	})
}

func TestAuthenticateBasicAuth(t *testing.T) {
	h := NewHandler()
	authCtx, err := h.Authenticate(context.Background(), Config{
		Method:   MethodBasicAuth,
		Username: "scanner",
		Password: "s3cret",
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("scanner:s3cret"))
	if got := authCtx.Headers["Authorization"]; got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestAuthenticateAPIKey(t *testing.T) {
	h := NewHandler()
	tests := []struct {
		name     string
		location string
		check    func(t *testing.T, c *Context)
	}{
		{"default header", "", func(t *testing.T, c *Context) {
			if c.Headers["X-API-Key"] != "key-123" {
				t.Errorf("headers = %v", c.Headers)
			}
		}},
		{"query", "query", func(t *testing.T, c *Context) {
			if c.QueryParams["X-API-Key"] != "key-123" {
				t.Errorf("query params = %v", c.QueryParams)
			}
		}},
		{"cookie", "cookie", func(t *testing.T, c *Context) {
			if c.Cookies["X-API-Key"] != "key-123" {
				t.Errorf("cookies = %v", c.Cookies)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authCtx, err := h.Authenticate(context.Background(), Config{
				Method:         MethodAPIKey,
				APIKey:         "key-123",
				APIKeyLocation: tt.location,
			})
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			tt.check(t, authCtx)
		})
	}
}

func TestOAuth2ClientCredentials(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = map[string]string{
			"grant_type": r.PostForm.Get("grant_type"),
			"audience":   r.PostForm.Get("audience"),
			"scope":      r.PostForm.Get("scope"),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "granted-token",
			"token_type":    "Bearer",
			"expires_in":    120,
			"refresh_token": "refresh-me",
		})
	}))
	defer server.Close()

	h := NewHandler()
	authCtx, err := h.Authenticate(context.Background(), Config{
		Method:       MethodOAuth2ClientCreds,
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL + "/token",
		Scope:        "read:findings",
		Audience:     "https://api.example.com",
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if gotForm["grant_type"] != "client_credentials" {
		t.Errorf("grant_type = %q", gotForm["grant_type"])
	}
	if gotForm["audience"] != "https://api.example.com" {
		t.Errorf("audience = %q", gotForm["audience"])
	}
	if authCtx.BearerToken != "granted-token" {
		t.Errorf("bearer token = %q", authCtx.BearerToken)
	}
	if authCtx.RefreshToken != "refresh-me" {
		t.Errorf("refresh token = %q", authCtx.RefreshToken)
	}
	if authCtx.ExpiresAt.IsZero() {
		t.Error("expires_at should be set from expires_in")
	}
	// 120s expiry sits inside the 60s refresh buffer boundary only near
	// the end; right after issue it must not be expired.
	if authCtx.IsExpired() {
		t.Error("fresh 120s token should not be expired")
	}
}

func TestOAuth2ClientCredentialsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	h := NewHandler()
	_, err := h.Authenticate(context.Background(), Config{
		Method:   MethodOAuth2ClientCreds,
		ClientID: "client",
		TokenURL: server.URL + "/token",
	})
	if err == nil {
		t.Fatal("expected error for non-200 token endpoint")
	}
}

func TestOAuth2Password(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "password" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("username") != "alex" || r.PostForm.Get("password") != "pw" {
			t.Errorf("credentials = %q/%q", r.PostForm.Get("username"), r.PostForm.Get("password"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "password-token",
			"token_type":   "Bearer",
		})
	}))
	defer server.Close()

	h := NewHandler()
	authCtx, err := h.Authenticate(context.Background(), Config{
		Method:   MethodOAuth2Password,
		ClientID: "client",
		TokenURL: server.URL + "/token",
		Username: "alex",
		Password: "pw",
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authCtx.BearerToken != "password-token" {
		t.Errorf("bearer token = %q", authCtx.BearerToken)
	}
	// Provider omitted expires_in: default one hour.
	if authCtx.ExpiresAt.Before(time.Now().Add(55 * time.Minute)) {
		t.Errorf("default expiry too soon: %v", authCtx.ExpiresAt)
	}
}

func TestSessionCookie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alex" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "session-abc", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "csrf", Value: "token-xyz", Path: "/"})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := NewHandler()
	authCtx, err := h.Authenticate(context.Background(), Config{
		Method:            MethodSessionCookie,
		LoginURL:          server.URL + "/login",
		Username:          "alex",
		Password:          "pw",
		SessionCookieName: "sid",
		CSRFTokenName:     "csrf",
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authCtx.Cookies["sid"] != "session-abc" {
		t.Errorf("cookies = %v", authCtx.Cookies)
	}
	if authCtx.Headers["X-CSRF-Token"] != "token-xyz" {
		t.Errorf("csrf header = %q", authCtx.Headers["X-CSRF-Token"])
	}
}

func TestSessionCookieLoginFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	h := NewHandler()
	_, err := h.Authenticate(context.Background(), Config{
		Method:   MethodSessionCookie,
		LoginURL: server.URL + "/login",
	})
	if err == nil {
		t.Fatal("expected error for 4xx login response")
	}
}

func TestAWSSignatureMarkers(t *testing.T) {
	h := NewHandler()
	authCtx, err := h.Authenticate(context.Background(), Config{
		Method:       MethodAWSSignatureV4,
		AWSAccessKey: "AKIA123",
		AWSSecretKey: "shhh",
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authCtx.Headers["x-vulx-aws-region"] != "us-east-1" {
		t.Errorf("region default = %q", authCtx.Headers["x-vulx-aws-region"])
	}
	if authCtx.Headers["x-vulx-aws-service"] != "execute-api" {
		t.Errorf("service default = %q", authCtx.Headers["x-vulx-aws-service"])
	}
}

func TestUnsupportedMethod(t *testing.T) {
	h := NewHandler()
	if _, err := h.Authenticate(context.Background(), Config{Method: "carrier_pigeon"}); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}

func TestRefresh(t *testing.T) {
	rotated := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		resp := map[string]interface{}{
			"access_token": "new-token",
			"expires_in":   1800,
		}
		if rotated {
			resp["refresh_token"] = "rotated-refresh"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	h := NewHandler()
	old := &Context{Method: MethodOAuth2ClientCreds, RefreshToken: "old-refresh"}
	cfg := Config{ClientID: "client", TokenRefreshURL: server.URL + "/refresh"}

	refreshed, err := h.Refresh(context.Background(), old, cfg)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.BearerToken != "new-token" {
		t.Errorf("bearer = %q", refreshed.BearerToken)
	}
	if refreshed.RefreshToken != "old-refresh" {
		t.Error("refresh token should be preserved when server does not rotate")
	}

	rotated = true
	refreshed, err = h.Refresh(context.Background(), old, cfg)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken != "rotated-refresh" {
		t.Error("rotated refresh token should replace the old one")
	}
}

func TestRefreshRequiresTokenAndURL(t *testing.T) {
	h := NewHandler()
	if _, err := h.Refresh(context.Background(), &Context{}, Config{}); err == nil {
		t.Fatal("expected error without refresh token and URL")
	}
}

func TestIsExpiredBuffer(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"no expiry", time.Time{}, false},
		{"well in future", time.Now().Add(10 * time.Minute), false},
		{"inside buffer", time.Now().Add(30 * time.Second), true},
		{"already past", time.Now().Add(-time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Context{ExpiresAt: tt.expiresAt}
			if got := c.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}
