// ABOUTME: Wire envelopes shared by the client, engines, and CLI
// ABOUTME: JSON-serializable structures matching the compliance API contracts

package models

// Page is the list envelope the API wraps collection responses in. Items is
// the current window; TotalCount is the full collection size the server
// reports for pagination.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Page       int `json:"page,omitempty"`
	PageSize   int `json:"pageSize,omitempty"`
}

// Len returns the number of items in the current window.
func (p Page[T]) Len() int {
	return len(p.Items)
}

// UserContext is the identity summary forwarded on every authenticated
// request as the X-User-Context header, so backend audit logs can attribute
// calls without re-parsing the bearer token.
type UserContext struct {
	Subject  string `json:"subject"`
	Tenant   string `json:"tenant,omitempty"`
	Audience string `json:"audience,omitempty"`
	Object   string `json:"object,omitempty"`
}

// ErrorBody is the error envelope the API returns on non-2xx responses.
// Classification lives in apierror; this type exists for callers that need
// the raw shape.
type ErrorBody struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Code    int    `json:"code,omitempty"`
}
