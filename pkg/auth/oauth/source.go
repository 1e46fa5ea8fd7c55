package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/auth"
)

// renewSkew is subtracted from the token expiry so a token is never handed
// out moments before the remote rejects it.
const renewSkew = 60 * time.Second

// fallbackTTL is assumed when the token endpoint reports no lifetime and the
// access token is not a parseable JWT.
const fallbackTTL = 5 * time.Minute

type sourceConfig struct {
	TenantURL          string `json:"tenantUrl"`
	ClientID           string `json:"clientId"`
	ClientSecret       string `json:"clientSecret"`
	HTTPTimeoutSeconds int    `json:"httpTimeoutSeconds,omitempty"`
}

type source struct {
	cfg        sourceConfig
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewSourceFromJSON(raw json.RawMessage) (auth.CredentialSource, error) {
	var cfg sourceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("oauth auth: invalid config: %w", err)
	}
	cfg.TenantURL = strings.TrimRight(strings.TrimSpace(cfg.TenantURL), "/")
	if cfg.TenantURL == "" {
		return nil, errors.New("oauth auth: tenantUrl is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("oauth auth: clientId and clientSecret are required")
	}
	timeout := 10 * time.Second
	if cfg.HTTPTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	}
	return &source{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}, nil
}

// Token returns a cached machine-to-machine access token, logging in again
// when the cached one is within renewSkew of expiry.
func (s *source) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt.Add(-renewSkew)) {
		return s.token, nil
	}

	token, expiresAt, err := s.login(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = expiresAt
	return token, nil
}

func (s *source) login(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TenantURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("oauth token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, fmt.Errorf("oauth token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", time.Time{}, fmt.Errorf("oauth token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", time.Time{}, errors.New("oauth token response: empty access_token")
	}

	return out.AccessToken, s.expiry(out.AccessToken, out.ExpiresIn), nil
}

// expiry derives the token lifetime, preferring the JWT exp claim over the
// endpoint's expires_in hint. The signature is not verified here; the remote
// is the authority on validity, this is only a renewal schedule.
func (s *source) expiry(token string, expiresIn int) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if expiresIn > 0 {
		return s.now().Add(time.Duration(expiresIn) * time.Second)
	}
	return s.now().Add(fallbackTTL)
}

func init() {
	auth.RegisterProvider("oauth", NewSourceFromJSON)
}
