// ABOUTME: Request, Options, and Response types for the API client
// ABOUTME: DecodeJSON validates response shape before callers consume it

package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lmmcdev/compliance-frontend-sub001/apierror"
)

// Options tune a single call. The zero value means: authentication required,
// no role requirement, client-default timeout.
type Options struct {
	// RequiredRoles gates the call locally: the credential must hold at
	// least one of them or the call fails before any network I/O.
	RequiredRoles []string

	// SkipRoleValidation bypasses the local role gate and defers entirely
	// to the server's authorization.
	SkipRoleValidation bool

	// Anonymous sends the request without a bearer token and without
	// touching the token provider.
	Anonymous bool

	// Headers are merged into the request, overriding defaults on conflict.
	Headers map[string]string

	// Timeout overrides the client default for this call. It spans the
	// whole logical call, including a refresh-and-retry cycle.
	Timeout time.Duration

	// IdempotencyKey is echoed as the Idempotency-Key header so the server
	// can deduplicate a write that gets resent after a token refresh.
	IdempotencyKey string
}

// Request describes one API call for Do. The verb helpers build these.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is JSON-encoded unless it is []byte, json.RawMessage, or an
	// io.Reader, which are sent as-is.
	Body interface{}

	Opts Options

	// Prepared bodies (uploads) bypass JSON encoding.
	rawBody     []byte
	contentType string
	wrapBody    func(io.Reader) io.Reader
}

// Response is a fully read API response. Body is never nil for 2xx results;
// RequestID is the correlation ID the call was sent with.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

// DecodeJSON unmarshals a response body into T after validating its shape:
// null, non-JSON, or a JSON kind that cannot populate T all surface as
// validation errors instead of silently yielding zero values.
func DecodeJSON[T any](resp *Response) (T, error) {
	var out T

	if len(resp.Body) == 0 {
		return out, apierror.New(apierror.KindValidation, "empty response body")
	}
	if !gjson.ValidBytes(resp.Body) {
		return out, apierror.New(apierror.KindValidation, "response body is not valid JSON")
	}

	parsed := gjson.ParseBytes(resp.Body)
	if parsed.Type == gjson.Null {
		return out, apierror.New(apierror.KindValidation, "response body is null")
	}

	switch reflect.TypeOf(&out).Elem().Kind() {
	case reflect.Slice, reflect.Array:
		if !parsed.IsArray() {
			return out, apierror.New(apierror.KindValidation, "expected a JSON array, got %s", jsonKind(parsed))
		}
	case reflect.Struct, reflect.Map:
		if !parsed.IsObject() {
			return out, apierror.New(apierror.KindValidation, "expected a JSON object, got %s", jsonKind(parsed))
		}
	}

	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, apierror.Wrap(apierror.KindValidation, err, "failed to decode response")
	}
	return out, nil
}

func jsonKind(r gjson.Result) string {
	switch {
	case r.IsArray():
		return "array"
	case r.IsObject():
		return "object"
	default:
		return r.Type.String()
	}
}
