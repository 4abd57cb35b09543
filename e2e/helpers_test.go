// ABOUTME: Test helpers for e2e tests
// ABOUTME: Runs a fake compliance API with a rotating bearer token, list/search routes, and writes

package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lmmcdev/compliance-frontend-sub001/auth"
	"github.com/lmmcdev/compliance-frontend-sub001/cache"
	"github.com/lmmcdev/compliance-frontend-sub001/client"
	"github.com/lmmcdev/compliance-frontend-sub001/models"
)

const (
	e2eSecret   = "e2e-secret"
	e2eClientID = "compliance-dashboard"
)

// license is the domain shape these tests move through the stack. The SDK
// itself is schema-agnostic; only the tests know this type.
type license struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// complianceAPI is a fake of the remote service: an OAuth token endpoint plus
// a license collection. Only the bearer token issued most recently is
// accepted, so revoking access forces clients through the refresh path.
type complianceAPI struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	currentToken string
	tokenCalls   int
	hits         map[string]int
	licenses     []license
}

func newComplianceAPI(t *testing.T) *complianceAPI {
	t.Helper()

	api := &complianceAPI{
		t:    t,
		hits: make(map[string]int),
		licenses: []license{
			{ID: "lic-1", Status: "active"},
			{ID: "lic-2", Status: "expired"},
			{ID: "lic-3", Status: "active"},
		},
	}
	api.currentToken = mintToken(t, []string{"compliance.read", "compliance.write"}, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", api.handleToken)
	mux.HandleFunc("/v1/licenses", api.handleLicenses)
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)

	return api
}

func mintToken(t *testing.T, roles []string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   "e2e-user",
		"tid":   "e2e-tenant",
		"aud":   "compliance-api",
		"name":  "E2E User",
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(e2eSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func (a *complianceAPI) URL() string { return a.server.URL }

// revokeAccess invalidates the token currently in circulation, as an IdP
// would after session revocation. The next API call sees a 401.
func (a *complianceAPI) revokeAccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentToken = ""
}

// hitCount returns how many requests arrived for a request URI (including
// ones rejected with 401).
func (a *complianceAPI) hitCount(uri string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[uri]
}

func (a *complianceAPI) tokenCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokenCalls
}

func (a *complianceAPI) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	user, _, ok := r.BasicAuth()
	if !ok || user != e2eClientID {
		http.Error(w, "bad client credentials", http.StatusUnauthorized)
		return
	}
	if r.PostFormValue("grant_type") != "refresh_token" || r.PostFormValue("refresh_token") == "" {
		http.Error(w, "unsupported grant", http.StatusBadRequest)
		return
	}

	token := mintToken(a.t, []string{"compliance.read", "compliance.write"}, time.Hour)

	a.mu.Lock()
	a.tokenCalls++
	a.currentToken = token
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   3600,
	})
}

func (a *complianceAPI) handleLicenses(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.hits[r.URL.RequestURI()]++
	current := a.currentToken
	a.mu.Unlock()

	if current == "" || r.Header.Get("Authorization") != "Bearer "+current {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "token is no longer valid"},
		})
		return
	}

	if r.Header.Get("X-User-Context") == "" {
		a.t.Error("expected X-User-Context header on authenticated request")
	}

	switch r.Method {
	case http.MethodGet:
		term := r.URL.Query().Get("q")
		a.mu.Lock()
		var matched []license
		for _, l := range a.licenses {
			if term == "" || strings.Contains(l.ID, term) || strings.Contains(l.Status, term) {
				matched = append(matched, l)
			}
		}
		a.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Page[license]{
			Items:      matched,
			TotalCount: len(matched),
		})

	case http.MethodPost:
		var l license
		if err := json.NewDecoder(r.Body).Decode(&l); err != nil || l.ID == "" {
			http.Error(w, "bad license", http.StatusBadRequest)
			return
		}
		a.mu.Lock()
		a.licenses = append(a.licenses, l)
		a.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(l)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// newSDK wires the client the way the dashboard does: refresh-token provider
// against the API's own token endpoint, shared query cache.
func newSDK(t *testing.T, api *complianceAPI, ttl time.Duration) (*client.Client, *cache.Store) {
	t.Helper()

	provider := auth.NewRefreshTokenProvider(
		api.URL()+"/oauth/token", e2eClientID, "e2e-client-secret", "e2e-refresh-token",
		api.server.Client(),
	)

	c := client.New(api.URL(), provider)
	c.SetHTTPClient(api.server.Client())

	store := cache.New(ttl)
	t.Cleanup(store.Close)

	return c, store
}

func readOptions() *client.Options {
	return &client.Options{RequiredRoles: []string{"compliance.read"}}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}
