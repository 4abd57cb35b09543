// ABOUTME: OAuth2 refresh-token grant provider with cached expiry tracking
// ABOUTME: Deduplicates concurrent refreshes so callers share one round-trip

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// expiryBuffer is subtracted from the token lifetime so a refresh happens
// before the server-side deadline, not at it.
const expiryBuffer = 60 * time.Second

// RefreshTokenProvider acquires access tokens from an OAuth2 token endpoint
// using the refresh_token grant. The refresh token rotates when the endpoint
// returns a replacement. Safe for concurrent use; overlapping refreshes are
// collapsed into a single request.
type RefreshTokenProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu           sync.RWMutex
	refreshToken string
	cred         Credential
	expiresAt    time.Time

	sf singleflight.Group
}

// tokenResponse is the OAuth token endpoint's JSON answer.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// NewRefreshTokenProvider builds a provider for the given token endpoint.
// If httpClient is nil, a default client with a 30s timeout is used.
func NewRefreshTokenProvider(tokenURL, clientID, clientSecret, refreshToken string, httpClient *http.Client) *RefreshTokenProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RefreshTokenProvider{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		httpClient:   httpClient,
	}
}

// Token returns a valid access token, refreshing first when the cached one is
// missing or within the expiry buffer. Concurrent callers share one refresh.
func (p *RefreshTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, valid := p.cred.AccessToken, time.Now().Before(p.expiresAt)
	p.mu.RUnlock()

	if token != "" && valid {
		return token, nil
	}

	return p.Refresh(ctx)
}

// Credential returns the latest snapshot without triggering I/O.
func (p *RefreshTokenProvider) Credential() Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cred
}

// Refresh forces a refresh grant regardless of the cached token's age.
// Overlapping calls are deduplicated; every caller observes the same outcome.
func (p *RefreshTokenProvider) Refresh(ctx context.Context) (string, error) {
	token, err, _ := p.sf.Do("refresh", func() (interface{}, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (p *RefreshTokenProvider) refresh(ctx context.Context) (string, error) {
	p.mu.RLock()
	refreshToken := p.refreshToken
	p.mu.RUnlock()

	if refreshToken == "" {
		return "", fmt.Errorf("no refresh token available")
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token refresh failed (status %d): %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	cred, err := FromToken(tr.AccessToken)
	if err != nil {
		// Opaque tokens still work; expiry tracking falls back to expires_in.
		slog.Debug("Token claims not decodable", "error", err)
	}

	p.mu.Lock()
	p.cred = cred
	if tr.RefreshToken != "" {
		p.refreshToken = tr.RefreshToken
	}
	p.expiresAt = expiryFrom(tr.ExpiresIn, cred)
	p.mu.Unlock()

	slog.Debug("Access token refreshed", "expires_at", p.expiresAt)
	return tr.AccessToken, nil
}

// expiryFrom derives the local validity deadline, preferring the endpoint's
// expires_in, then the token's own exp claim, then a conservative default.
func expiryFrom(expiresIn int, cred Credential) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn)*time.Second - expiryBuffer)
	}
	if cred.Claims != nil && !cred.Claims.Expiry.IsZero() {
		return cred.Claims.Expiry.Add(-expiryBuffer)
	}
	return time.Now().Add(5 * time.Minute)
}
