// ABOUTME: Error taxonomy for the compliance API data-access layer
// ABOUTME: Classifies local, HTTP, and transport failures into stable kinds

package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind identifies the class of a request failure. Callers branch on kinds,
// never on error strings or concrete transport errors.
type Kind string

const (
	// KindInsufficientPermissions is the local role-gate failure. It is
	// raised before any network I/O and carries the required and actual
	// role sets.
	KindInsufficientPermissions Kind = "insufficient_permissions"

	// KindUnauthenticated is a 401 that survived the one refresh-and-retry
	// cycle, or a request that needed auth with no token available.
	KindUnauthenticated Kind = "unauthenticated"

	// KindForbidden is a server-side 403. Distinct from the local role gate:
	// the server's answer is authoritative.
	KindForbidden Kind = "forbidden"

	// KindNotFound is a 404.
	KindNotFound Kind = "not_found"

	// KindServerError is any status >= 500, plus the 4xx statuses the
	// taxonomy has no dedicated kind for. Never retried automatically;
	// idempotency of the underlying operation is unknown at this layer.
	KindServerError Kind = "server_error"

	// KindTimeout is a transport deadline exceeded.
	KindTimeout Kind = "timeout"

	// KindCancelled is a superseded or explicitly aborted request. Query and
	// mutation engines swallow it; it reflects internal arbitration, not a
	// real failure.
	KindCancelled Kind = "cancelled"

	// KindValidation is a locally detected malformed response shape,
	// raised before any caller consumes the payload.
	KindValidation Kind = "validation_error"

	// KindTransport is a dial or protocol failure that is neither a timeout
	// nor a cancellation (connection refused, DNS, TLS handshake).
	KindTransport Kind = "transport_error"
)

// Error is the typed failure surfaced by the client and stored by the query
// and mutation engines. Message is safe to render inline in the UI.
type Error struct {
	Kind    Kind
	Message string
	Status  int // HTTP status when the server answered, 0 otherwise

	// RequiredRoles and ActualRoles are populated for role-gate failures.
	RequiredRoles []string
	ActualRoles   []string

	Err error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from any error. Unknown errors report
// KindTransport since they can only have come from the wire.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransport
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// IsCancelled reports whether err is the internal-arbitration kind that
// engines must swallow rather than surface.
func IsCancelled(err error) bool {
	return IsKind(err, KindCancelled)
}

// messagePaths are the JSON paths tried, in order, when extracting a
// human-readable message from an API error body. Dashboards behind this
// client have shipped all of these shapes at one point or another.
var messagePaths = []string{
	"error.message",
	"error_description",
	"error_message",
	"message",
	"error",
	"detail",
}

// FromStatus classifies a non-2xx HTTP response into an Error. The body, when
// present and JSON, is mined for a displayable message.
func FromStatus(status int, body []byte) *Error {
	message := extractMessage(body)

	switch {
	case status == http.StatusUnauthorized:
		if message == "" {
			message = "authentication required"
		}
		return &Error{Kind: KindUnauthenticated, Message: message, Status: status}
	case status == http.StatusForbidden:
		if message == "" {
			message = "access denied by the server"
		}
		return &Error{Kind: KindForbidden, Message: message, Status: status}
	case status == http.StatusNotFound:
		if message == "" {
			message = "resource not found"
		}
		return &Error{Kind: KindNotFound, Message: message, Status: status}
	case status >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("server error (status %d)", status)
		}
		return &Error{Kind: KindServerError, Message: message, Status: status}
	default:
		if message == "" {
			message = fmt.Sprintf("request failed with status %d", status)
		}
		return &Error{Kind: KindServerError, Message: message, Status: status}
	}
}

// FromTransport classifies an error returned by the HTTP transport itself.
// Context expiry maps to Timeout or Cancelled depending on the cause; other
// net-level timeouts map to Timeout; everything else is a transport failure.
func FromTransport(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Message: "request cancelled", Err: err}
	case os.IsTimeout(err):
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	default:
		return &Error{Kind: KindTransport, Message: "request failed: " + err.Error(), Err: err}
	}
}

// extractMessage pulls the first non-empty message string out of a JSON error
// body. Returns "" when the body is absent, not JSON, or shaped unexpectedly.
func extractMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range messagePaths {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// RoleGate builds the InsufficientPermissions error for a failed local role
// check, carrying both sides so the UI can explain what is missing.
func RoleGate(required, actual []string) *Error {
	return &Error{
		Kind: KindInsufficientPermissions,
		Message: fmt.Sprintf("requires one of roles [%s], have [%s]",
			strings.Join(required, ", "), strings.Join(actual, ", ")),
		RequiredRoles: required,
		ActualRoles:   actual,
	}
}
