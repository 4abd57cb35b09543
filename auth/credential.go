// ABOUTME: Credential snapshot and bearer-token claim introspection
// ABOUTME: Decodes JWT claims client-side (unverified) for headers and role gates

package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the identity fields the client needs from a bearer token.
// The token is decoded without signature verification: the remote API is the
// party that verifies, this layer only introspects for headers and gating.
type Claims struct {
	Subject  string   // sub
	Tenant   string   // tid
	Audience string   // aud (first value when the token carries several)
	ObjectID string   // oid
	Name     string   // name
	Roles    []string // roles
	Expiry   time.Time
}

// Credential is the latest known authentication state. The zero value is an
// anonymous credential. Instances are immutable snapshots; holders replace
// them wholesale when upstream auth state changes.
type Credential struct {
	AccessToken string
	Claims      *Claims
	Roles       []string
}

// FromToken builds a Credential by decoding the token's claims. A token whose
// payload cannot be decoded still yields a usable Credential (token only), so
// opaque non-JWT tokens keep working; the error reports the decode failure
// for callers that care.
func FromToken(token string) (Credential, error) {
	cred := Credential{AccessToken: token}
	if token == "" {
		return cred, nil
	}

	claims, err := ParseClaims(token)
	if err != nil {
		return cred, fmt.Errorf("failed to decode token claims: %w", err)
	}

	cred.Claims = claims
	cred.Roles = claims.Roles
	return cred, nil
}

// HasToken reports whether the credential carries an access token.
func (c Credential) HasToken() bool {
	return c.AccessToken != ""
}

// Expired reports whether the token is known to be expired within the given
// skew. Tokens without a decoded expiry are never reported expired here; the
// server remains the authority for those.
func (c Credential) Expired(skew time.Duration) bool {
	if c.Claims == nil || c.Claims.Expiry.IsZero() {
		return false
	}
	return !time.Now().Add(skew).Before(c.Claims.Expiry)
}

// HasAnyRole reports whether the credential holds at least one of the
// required roles. Comparison is case-insensitive. An empty requirement is
// always satisfied.
func (c Credential) HasAnyRole(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	held := make(map[string]struct{}, len(c.Roles))
	for _, r := range c.Roles {
		held[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	for _, r := range required {
		if _, ok := held[strings.ToLower(strings.TrimSpace(r))]; ok {
			return true
		}
	}
	return false
}

// MissingRoles returns the required roles the credential does not hold,
// preserving the requirement's order.
func (c Credential) MissingRoles(required ...string) []string {
	held := make(map[string]struct{}, len(c.Roles))
	for _, r := range c.Roles {
		held[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	var missing []string
	for _, r := range required {
		if _, ok := held[strings.ToLower(strings.TrimSpace(r))]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// ParseClaims decodes the claim set from a JWT without verifying its
// signature. Claim names follow the upstream identity provider: sub, tid,
// aud, oid, name, roles, exp.
func ParseClaims(token string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims := &Claims{
		Subject:  stringClaim(mapClaims, "sub"),
		Tenant:   stringClaim(mapClaims, "tid"),
		ObjectID: stringClaim(mapClaims, "oid"),
		Name:     stringClaim(mapClaims, "name"),
		Roles:    stringSliceClaim(mapClaims, "roles"),
	}

	if aud, err := mapClaims.GetAudience(); err == nil && len(aud) > 0 {
		claims.Audience = aud[0]
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiry = exp.Time
	}

	return claims, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}

// stringSliceClaim tolerates both array-of-strings and single-string shapes;
// identity providers emit either depending on how many values are assigned.
func stringSliceClaim(claims jwt.MapClaims, name string) []string {
	switch v := claims[name].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
