// ABOUTME: Authenticated HTTP client for the compliance API
// ABOUTME: Injects bearer tokens, gates calls by role, and retries once after a 401 refresh

package client

import (
	"bytes"
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

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lmmcdev/compliance-frontend-sub001/apierror"
	"github.com/lmmcdev/compliance-frontend-sub001/auth"
	"github.com/lmmcdev/compliance-frontend-sub001/metrics"
	"github.com/lmmcdev/compliance-frontend-sub001/models"
)

const defaultTimeout = 30 * time.Second

// Refresher is implemented by token providers that can force a new token
// after the API rejects the current one. Providers without it get one more
// Token call instead.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Client is the authenticated HTTP client every query and mutation goes
// through. It owns the latest credential snapshot and nothing else: all
// UI-facing state lives in the engines layered on top.
type Client struct {
	baseURL    string
	httpClient *http.Client
	provider   auth.TokenProvider
	timeout    time.Duration

	mu   sync.RWMutex
	cred auth.Credential

	onAuthLost func(reason string)
	collector  *metrics.Collector
	sf         singleflight.Group
}

// New creates a client for the API at baseURL. A missing scheme defaults to
// https, matching how operators write host:port shorthand. provider may be
// nil for anonymous-only use.
func New(baseURL string, provider auth.TokenProvider) *Client {
	if baseURL != "" && !strings.HasPrefix(baseURL, "https://") && !strings.HasPrefix(baseURL, "http://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		httpClient: NewHTTPClient(TransportConfig{}),
		provider:   provider,
		timeout:    defaultTimeout,
	}
	if provider != nil {
		c.cred = provider.Credential()
	}
	return c
}

// SetHTTPClient allows overriding the HTTP client (useful for testing and
// for wiring a proxied transport).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetTimeout changes the default per-call timeout. Zero disables it.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// OnAuthLost registers the redirect collaborator invoked when a call fails
// terminally for authentication reasons (401 after the refresh-and-retry
// cycle, or a failed refresh).
func (c *Client) OnAuthLost(fn func(reason string)) {
	c.onAuthLost = fn
}

// Instrument attaches a metrics collector.
func (c *Client) Instrument(m *metrics.Collector) {
	c.collector = m
}

// SetCredential replaces the credential snapshot. This is the bridge for an
// external token broker that refreshes tokens on its own schedule.
func (c *Client) SetCredential(cred auth.Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

// Credential returns the current credential snapshot.
func (c *Client) Credential() auth.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// Get issues an authenticated GET.
func (c *Client) Get(ctx context.Context, path string, opts *Options) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Opts: deref(opts)})
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}, opts *Options) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Opts: deref(opts)})
}

// Put issues an authenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}, opts *Options) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body, Opts: deref(opts)})
}

// Patch issues an authenticated PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}, opts *Options) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body, Opts: deref(opts)})
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string, opts *Options) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Opts: deref(opts)})
}

func deref(opts *Options) Options {
	if opts == nil {
		return Options{}
	}
	return *opts
}

// Do runs one logical API call: token resolution, local role gate, dispatch,
// and at most one refresh-and-retry cycle on 401. Errors are always
// *apierror.Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if c.collector != nil {
		c.collector.RequestStarted()
		defer c.collector.RequestFinished()
	}

	resp, err := c.do(ctx, req)

	if c.collector != nil {
		kind := "success"
		if err != nil {
			kind = string(apierror.KindOf(err))
		}
		c.collector.RecordRequest(kind, time.Since(start).Seconds())
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	token, cred, err := c.resolveToken(ctx, req.Opts)
	if err != nil {
		return nil, err
	}

	// Local role gate. Runs before any API I/O so unauthorized views fail
	// fast instead of burning a round-trip on a guaranteed 403.
	if len(req.Opts.RequiredRoles) > 0 && !req.Opts.SkipRoleValidation {
		if !cred.HasAnyRole(req.Opts.RequiredRoles...) {
			slog.Warn("Role validation denied request",
				"path", req.Path,
				"method", req.Method,
				"required_roles", req.Opts.RequiredRoles,
				"user_roles", cred.Roles,
			)
			return nil, apierror.RoleGate(req.Opts.RequiredRoles, cred.Roles)
		}
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	timeout := c.timeout
	if req.Opts.Timeout > 0 {
		timeout = req.Opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	start := time.Now()
	slog.Info("Request started",
		"request_id", requestID,
		"method", req.Method,
		"path", req.Path,
	)

	status, header, respBody, err := c.send(ctx, req, body, contentType, token, cred, requestID)
	if err != nil {
		return nil, err
	}

	// One refresh-and-retry cycle. A second 401 is terminal: the session is
	// gone and the redirect collaborator takes over.
	if status == http.StatusUnauthorized && !req.Opts.Anonymous {
		newToken, refreshErr := c.refreshToken(ctx)
		if refreshErr != nil {
			c.authLost("token refresh failed")
			return nil, apierror.Wrap(apierror.KindUnauthenticated, refreshErr, "session expired and token refresh failed")
		}

		slog.Info("Retrying request after token refresh", "request_id", requestID, "path", req.Path)
		cred = c.Credential()
		status, header, respBody, err = c.send(ctx, req, body, contentType, newToken, cred, requestID)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			c.authLost("unauthorized after token refresh")
			return nil, apierror.FromStatus(status, respBody)
		}
	}

	slog.Info("Request completed",
		"request_id", requestID,
		"method", req.Method,
		"path", req.Path,
		"status", status,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if status < 200 || status >= 300 {
		return nil, apierror.FromStatus(status, respBody)
	}

	return &Response{
		Status:    status,
		Header:    header,
		Body:      respBody,
		RequestID: requestID,
	}, nil
}

// send performs a single HTTP attempt and reads the body fully.
func (c *Client) send(ctx context.Context, req Request, body []byte, contentType, token string, cred auth.Credential, requestID string) (int, http.Header, []byte, error) {
	httpReq, err := c.buildRequest(ctx, req, body, contentType, token, cred, requestID)
	if err != nil {
		return 0, nil, nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, nil, apierror.FromTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, apierror.FromTransport(err)
	}

	return resp.StatusCode, resp.Header, respBody, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request, body []byte, contentType, token string, cred auth.Credential, requestID string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
		if req.wrapBody != nil {
			bodyReader = req.wrapBody(bodyReader)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.urlFor(req.Path, req.Query), bodyReader)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindTransport, err, "failed to create request")
	}
	if body != nil {
		httpReq.ContentLength = int64(len(body))
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil && contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if len(cred.Roles) > 0 {
		rolesJSON, err := json.Marshal(cred.Roles)
		if err == nil {
			httpReq.Header.Set("X-User-Roles", string(rolesJSON))
		}
	}
	if cred.Claims != nil {
		userContext := models.UserContext{
			Subject:  cred.Claims.Subject,
			Tenant:   cred.Claims.Tenant,
			Audience: cred.Claims.Audience,
			Object:   cred.Claims.ObjectID,
		}
		if contextJSON, err := json.Marshal(userContext); err == nil {
			httpReq.Header.Set("X-User-Context", string(contextJSON))
		}
	}
	if req.Opts.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.Opts.IdempotencyKey)
	}
	for k, v := range req.Opts.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// resolveToken returns the bearer token and credential for a call. The
// snapshot wins while its token is unexpired; otherwise the provider is
// asked, so a call is never knowingly dispatched with a dead token.
func (c *Client) resolveToken(ctx context.Context, opts Options) (string, auth.Credential, error) {
	if opts.Anonymous {
		return "", auth.Credential{}, nil
	}

	c.mu.RLock()
	cred := c.cred
	c.mu.RUnlock()

	if cred.HasToken() && !cred.Expired(0) {
		return cred.AccessToken, cred, nil
	}

	if c.provider == nil {
		if cred.HasToken() {
			// Expired with no refresh path: let the server arbitrate.
			return cred.AccessToken, cred, nil
		}
		return "", cred, apierror.New(apierror.KindUnauthenticated, "no access token available")
	}

	token, err := c.provider.Token(ctx)
	if err != nil {
		return "", cred, apierror.Wrap(apierror.KindUnauthenticated, err, "failed to acquire access token")
	}

	newCred, _ := auth.FromToken(token)
	c.mu.Lock()
	c.cred = newCred
	c.mu.Unlock()

	return token, newCred, nil
}

// refreshToken forces one token refresh, deduplicated across concurrent 401s
// so a burst of rejected calls produces a single refresh round-trip.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	if c.provider == nil {
		return "", fmt.Errorf("no token provider configured")
	}

	token, err, _ := c.sf.Do("refresh", func() (interface{}, error) {
		if r, ok := c.provider.(Refresher); ok {
			return r.Refresh(ctx)
		}
		return c.provider.Token(ctx)
	})
	if c.collector != nil {
		c.collector.TokenRefresh(err == nil)
	}
	if err != nil {
		return "", err
	}

	newCred, _ := auth.FromToken(token.(string))
	c.mu.Lock()
	c.cred = newCred
	c.mu.Unlock()

	return token.(string), nil
}

func (c *Client) authLost(reason string) {
	slog.Warn("Authentication lost", "reason", reason)
	c.mu.Lock()
	c.cred = auth.Credential{}
	c.mu.Unlock()
	if c.onAuthLost != nil {
		c.onAuthLost(reason)
	}
}

func (c *Client) urlFor(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// encodeBody materializes the request body once so the refresh-and-retry
// cycle can replay it.
func encodeBody(req Request) ([]byte, string, error) {
	if req.rawBody != nil {
		return req.rawBody, req.contentType, nil
	}
	if req.Body == nil {
		return nil, "", nil
	}

	switch b := req.Body.(type) {
	case []byte:
		return b, "application/json", nil
	case json.RawMessage:
		return b, "application/json", nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, "", apierror.Wrap(apierror.KindTransport, err, "failed to read request body")
		}
		return data, "application/json", nil
	default:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", apierror.Wrap(apierror.KindValidation, err, "failed to encode request body")
		}
		return data, "application/json", nil
	}
}
