// Package auth acquires credentials for authenticated scanning. A
// Handler turns an AuthConfig into an AuthContext that engine adapters
// attach to every request they send.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/vulx-io/vulx/internal/logger"
)

// Method identifies an authentication flow.
type Method string

const (
	MethodNone              Method = "none"
	MethodBearerToken       Method = "bearer_token"
	MethodBasicAuth         Method = "basic_auth"
	MethodAPIKey            Method = "api_key"
	MethodOAuth2ClientCreds Method = "oauth2_client_credentials"
	MethodOAuth2Password    Method = "oauth2_password"
	MethodSessionCookie     Method = "session_cookie"
	MethodCustomHeaders     Method = "custom_headers"
	MethodAWSSignatureV4    Method = "aws_signature_v4"
)

// DefaultExpiryBuffer is how long before expiry a token counts as expired.
const DefaultExpiryBuffer = 60 * time.Second

// Config describes how to authenticate against a scan target.
type Config struct {
	Method Method `json:"method"`

	// Bearer / API key
	BearerToken    string `json:"bearer_token,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	APIKeyHeader   string `json:"api_key_header,omitempty"`   // default X-API-Key
	APIKeyLocation string `json:"api_key_location,omitempty"` // header, query, cookie

	// Basic auth / password grant / session login
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// OAuth2
	ClientID     string `json:"oauth2_client_id,omitempty"`
	ClientSecret string `json:"oauth2_client_secret,omitempty"`
	TokenURL     string `json:"oauth2_token_url,omitempty"`
	Scope        string `json:"oauth2_scope,omitempty"`
	Audience     string `json:"oauth2_audience,omitempty"`

	// Session cookie
	LoginURL          string            `json:"login_url,omitempty"`
	LoginBody         map[string]string `json:"login_body,omitempty"`
	LoginMethod       string            `json:"login_method,omitempty"` // default POST
	SessionCookieName string            `json:"session_cookie_name,omitempty"`
	CSRFTokenName     string            `json:"csrf_token_name,omitempty"`

	// Custom headers
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`

	// AWS
	AWSAccessKey string `json:"aws_access_key,omitempty"`
	AWSSecretKey string `json:"aws_secret_key,omitempty"`
	AWSRegion    string `json:"aws_region,omitempty"`
	AWSService   string `json:"aws_service,omitempty"`

	// Token refresh
	TokenRefreshURL string        `json:"token_refresh_url,omitempty"`
	RefreshToken    string        `json:"refresh_token,omitempty"`
	ExpiryBuffer    time.Duration `json:"-"`
}

// Context carries acquired credentials into the scan engines.
type Context struct {
	Method       Method            `json:"method"`
	BearerToken  string            `json:"bearer_token,omitempty"`
	APIKey       string            `json:"api_key,omitempty"`
	APIKeyHeader string            `json:"api_key_header,omitempty"`
	Cookies      map[string]string `json:"cookies,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	QueryParams  map[string]string `json:"query_params,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`

	buffer time.Duration
}

// IsExpired reports whether the credentials are expired or inside the
// refresh buffer. Credentials without an expiry never expire.
func (c *Context) IsExpired() bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	buffer := c.buffer
	if buffer == 0 {
		buffer = DefaultExpiryBuffer
	}
	return !time.Now().Before(c.ExpiresAt.Add(-buffer))
}

// Handler performs authentication flows.
type Handler struct {
	client *http.Client
	log    *logger.Logger
}

// NewHandler builds a handler with a 30 second HTTP timeout.
func NewHandler() *Handler {
	return &Handler{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    logger.NewLogger("AUTH"),
	}
}

// Authenticate runs the configured flow and returns a scan context.
func (h *Handler) Authenticate(ctx context.Context, cfg Config) (*Context, error) {
	h.log.Info("Authenticating using method: " + string(cfg.Method))

	switch cfg.Method {
	case MethodNone, "":
		return &Context{Method: MethodNone}, nil
	case MethodBearerToken:
		return h.bearerToken(cfg), nil
	case MethodBasicAuth:
		return basicAuth(cfg), nil
	case MethodAPIKey:
		return apiKey(cfg), nil
	case MethodOAuth2ClientCreds:
		return h.oauth2ClientCredentials(ctx, cfg)
	case MethodOAuth2Password:
		return h.oauth2Password(ctx, cfg)
	case MethodSessionCookie:
		return h.sessionCookie(ctx, cfg)
	case MethodCustomHeaders:
		return customHeaders(cfg), nil
	case MethodAWSSignatureV4:
		return awsSignature(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported auth method: %s", cfg.Method)
	}
}

func (h *Handler) bearerToken(cfg Config) *Context {
	authCtx := &Context{
		Method:      MethodBearerToken,
		BearerToken: cfg.BearerToken,
		Headers:     map[string]string{"Authorization": "Bearer " + cfg.BearerToken},
		buffer:      cfg.ExpiryBuffer,
	}
	if exp, ok := jwtExpiry(cfg.BearerToken); ok {
		authCtx.ExpiresAt = exp
	}
	return authCtx
}

// jwtExpiry sniffs the exp claim from a JWT without verifying the
// signature. Opaque tokens report no expiry.
func jwtExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func basicAuth(cfg Config) *Context {
	encoded := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	return &Context{
		Method:  MethodBasicAuth,
		Headers: map[string]string{"Authorization": "Basic " + encoded},
		buffer:  cfg.ExpiryBuffer,
	}
}

func apiKey(cfg Config) *Context {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}

	authCtx := &Context{
		Method:       MethodAPIKey,
		APIKey:       cfg.APIKey,
		APIKeyHeader: header,
		Cookies:      map[string]string{},
		Headers:      map[string]string{},
		QueryParams:  map[string]string{},
		buffer:       cfg.ExpiryBuffer,
	}

	switch cfg.APIKeyLocation {
	case "query":
		authCtx.QueryParams[header] = cfg.APIKey
	case "cookie":
		authCtx.Cookies[header] = cfg.APIKey
	default:
		authCtx.Headers[header] = cfg.APIKey
	}
	return authCtx
}

func (h *Handler) oauth2ClientCredentials(ctx context.Context, cfg Config) (*Context, error) {
	conf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	if cfg.Scope != "" {
		conf.Scopes = strings.Fields(cfg.Scope)
	}
	if cfg.Audience != "" {
		conf.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, h.client)
	token, err := conf.Token(ctx)
	if err != nil {
		h.log.Error("OAuth2 authentication failed", err)
		return nil, fmt.Errorf("oauth2 token request failed: %w", err)
	}

	return h.contextFromToken(MethodOAuth2ClientCreds, token, cfg), nil
}

func (h *Handler) oauth2Password(ctx context.Context, cfg Config) (*Context, error) {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	if cfg.Scope != "" {
		conf.Scopes = strings.Fields(cfg.Scope)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, h.client)
	token, err := conf.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
	if err != nil {
		h.log.Error("OAuth2 password auth failed", err)
		return nil, fmt.Errorf("oauth2 password grant failed: %w", err)
	}

	return h.contextFromToken(MethodOAuth2Password, token, cfg), nil
}

func (h *Handler) contextFromToken(method Method, token *oauth2.Token, cfg Config) *Context {
	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		// Provider omitted expires_in.
		expiresAt = time.Now().Add(3600 * time.Second)
	}
	return &Context{
		Method:       method,
		BearerToken:  token.AccessToken,
		Headers:      map[string]string{"Authorization": "Bearer " + token.AccessToken},
		ExpiresAt:    expiresAt,
		RefreshToken: token.RefreshToken,
		buffer:       cfg.ExpiryBuffer,
	}
}

func (h *Handler) sessionCookie(ctx context.Context, cfg Config) (*Context, error) {
	loginBody := cfg.LoginBody
	if loginBody == nil {
		loginBody = map[string]string{
			"username": cfg.Username,
			"password": cfg.Password,
		}
	}

	method := strings.ToUpper(cfg.LoginMethod)
	if method == "" {
		method = http.MethodPost
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: h.client.Timeout}

	var req *http.Request
	switch method {
	case http.MethodGet:
		loginURL, err := url.Parse(cfg.LoginURL)
		if err != nil {
			return nil, fmt.Errorf("parse login url: %w", err)
		}
		query := loginURL.Query()
		for k, v := range loginBody {
			query.Set(k, v)
		}
		loginURL.RawQuery = query.Encode()
		req, err = http.NewRequestWithContext(ctx, method, loginURL.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("build login request: %w", err)
		}
	default:
		payload, err := json.Marshal(loginBody)
		if err != nil {
			return nil, fmt.Errorf("encode login body: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, method, cfg.LoginURL, strings.NewReader(string(payload)))
		if err != nil {
			return nil, fmt.Errorf("build login request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		h.log.Error("Session authentication failed", err)
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	cookies := map[string]string{}
	if reqURL := resp.Request.URL; reqURL != nil {
		for _, cookie := range jar.Cookies(reqURL) {
			cookies[cookie.Name] = cookie.Value
		}
	}

	// The jar drops cookies scoped to other paths; fall back to the raw
	// Set-Cookie headers when the expected session cookie is missing.
	if cfg.SessionCookieName != "" {
		if _, ok := cookies[cfg.SessionCookieName]; !ok {
			for _, header := range resp.Header.Values("Set-Cookie") {
				if !strings.Contains(header, cfg.SessionCookieName) {
					continue
				}
				if name, value, ok := parseSetCookie(header); ok {
					cookies[name] = value
				}
			}
		}
	}

	headers := map[string]string{}
	if cfg.CSRFTokenName != "" {
		if token, ok := cookies[cfg.CSRFTokenName]; ok {
			headers["X-CSRF-Token"] = token
		}
	}

	return &Context{
		Method:  MethodSessionCookie,
		Cookies: cookies,
		Headers: headers,
		buffer:  cfg.ExpiryBuffer,
	}, nil
}

func parseSetCookie(header string) (name, value string, ok bool) {
	pair := strings.SplitN(strings.SplitN(header, ";", 2)[0], "=", 2)
	if len(pair) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1]), true
}

func customHeaders(cfg Config) *Context {
	headers := make(map[string]string, len(cfg.CustomHeaders))
	for k, v := range cfg.CustomHeaders {
		headers[k] = v
	}
	return &Context{
		Method:  MethodCustomHeaders,
		Headers: headers,
		buffer:  cfg.ExpiryBuffer,
	}
}

// awsSignature provides the credentials as marker headers; actual
// request signing happens per-request inside the engines.
func awsSignature(cfg Config) *Context {
	region := cfg.AWSRegion
	if region == "" {
		region = "us-east-1"
	}
	service := cfg.AWSService
	if service == "" {
		service = "execute-api"
	}
	return &Context{
		Method: MethodAWSSignatureV4,
		Headers: map[string]string{
			"x-vulx-aws-access-key": cfg.AWSAccessKey,
			"x-vulx-aws-secret-key": cfg.AWSSecretKey,
			"x-vulx-aws-region":     region,
			"x-vulx-aws-service":    service,
		},
		buffer: cfg.ExpiryBuffer,
	}
}

// Refresh exchanges the context's refresh token for a new access token.
// The old refresh token is preserved when the server does not rotate it.
func (h *Handler) Refresh(ctx context.Context, authCtx *Context, cfg Config) (*Context, error) {
	if authCtx == nil || authCtx.RefreshToken == "" || cfg.TokenRefreshURL == "" {
		return nil, fmt.Errorf("no refresh token or refresh URL available")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {authCtx.RefreshToken},
		"client_id":     {cfg.ClientID},
	}
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenRefreshURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var tokenData struct {
		AccessToken  string `json:"access_token"`
		ExpiresIn    int64  `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenData); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}

	expiresIn := tokenData.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	refreshToken := tokenData.RefreshToken
	if refreshToken == "" {
		refreshToken = authCtx.RefreshToken
	}

	return &Context{
		Method:       authCtx.Method,
		BearerToken:  tokenData.AccessToken,
		Headers:      map[string]string{"Authorization": "Bearer " + tokenData.AccessToken},
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
		RefreshToken: refreshToken,
		buffer:       cfg.ExpiryBuffer,
	}, nil
}
