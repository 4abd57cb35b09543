// ABOUTME: Tests for the refresh-token provider
// ABOUTME: Verifies caching, rotation, dedup of concurrent refreshes, and failures

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// newTokenEndpoint serves the refresh_token grant, counting calls and
// recording the refresh tokens it was sent.
func newTokenEndpoint(t *testing.T, calls *atomic.Int64, seen *[]string, mu *sync.Mutex, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			time.Sleep(delay)
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			http.Error(w, "unexpected grant", http.StatusBadRequest)
			return
		}
		if mu != nil && seen != nil {
			mu.Lock()
			*seen = append(*seen, r.PostForm.Get("refresh_token"))
			mu.Unlock()
		}
		n := calls.Add(1)

		access := mintToken(t, jwt.MapClaims{
			"sub":   "user-1",
			"roles": []string{"viewer"},
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  access,
			"refresh_token": fmt.Sprintf("rt-%d", n+1),
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	}))
}

func TestRefreshTokenProvider_TokenCachesUntilExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenEndpoint(t, &calls, nil, nil, 0)
	defer srv.Close()

	p := NewRefreshTokenProvider(srv.URL, "dashboard", "secret", "rt-1", nil)

	first, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("first Token failed: %v", err)
	}
	second, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("second Token failed: %v", err)
	}

	if first != second {
		t.Error("Cached token should be reused while valid")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Token endpoint called %d times, want 1", got)
	}
	if !p.Credential().HasAnyRole("viewer") {
		t.Error("Credential snapshot should carry decoded roles")
	}
}

func TestRefreshTokenProvider_RotatesRefreshToken(t *testing.T) {
	var calls atomic.Int64
	var seen []string
	var mu sync.Mutex
	srv := newTokenEndpoint(t, &calls, &seen, &mu, 0)
	defer srv.Close()

	p := NewRefreshTokenProvider(srv.URL, "dashboard", "secret", "rt-1", nil)

	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh failed: %v", err)
	}
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("Endpoint saw %d refresh tokens, want 2", len(seen))
	}
	if seen[0] != "rt-1" {
		t.Errorf("First grant used %q, want rt-1", seen[0])
	}
	if seen[1] != "rt-2" {
		t.Errorf("Second grant should use the rotated token, got %q", seen[1])
	}
}

func TestRefreshTokenProvider_ConcurrentCallersShareOneRefresh(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenEndpoint(t, &calls, nil, nil, 50*time.Millisecond)
	defer srv.Close()

	p := NewRefreshTokenProvider(srv.URL, "dashboard", "secret", "rt-1", nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Token(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Token failed: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Token endpoint called %d times, want 1 (singleflight)", got)
	}
}

func TestRefreshTokenProvider_RefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token expired"}`))
	}))
	defer srv.Close()

	p := NewRefreshTokenProvider(srv.URL, "dashboard", "secret", "rt-dead", nil)

	_, err := p.Token(context.Background())
	if err == nil {
		t.Fatal("Expected error from failed refresh")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("Error should mention the status, got: %v", err)
	}
}

func TestRefreshTokenProvider_NoRefreshToken(t *testing.T) {
	p := NewRefreshTokenProvider("http://127.0.0.1:0", "dashboard", "secret", "", nil)

	if _, err := p.Token(context.Background()); err == nil {
		t.Fatal("Expected error when no refresh token is configured")
	}
}

func TestRefreshTokenProvider_SendsClientCredentials(t *testing.T) {
	var gotUser, gotPass string
	var ok bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, ok = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"opaque","expires_in":300}`))
	}))
	defer srv.Close()

	p := NewRefreshTokenProvider(srv.URL, "dashboard", "hunter2", "rt-1", nil)
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if !ok || gotUser != "dashboard" || gotPass != "hunter2" {
		t.Errorf("Basic auth = (%q, %q, %v), want (dashboard, hunter2, true)", gotUser, gotPass, ok)
	}
}
