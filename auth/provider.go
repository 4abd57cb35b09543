// ABOUTME: Token provider contract consumed by the HTTP client
// ABOUTME: Includes a static implementation for tests and scripted use

package auth

import "context"

// TokenProvider supplies access tokens to the HTTP client. Token may block on
// a network round-trip (or an interactive flow owned by the embedding
// application); Credential returns the latest known snapshot without I/O.
//
// This layer consumes providers; it never drives login UI itself.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Credential() Credential
}

// StaticTokenProvider serves one fixed token. Useful in tests and one-shot
// scripts where the token is minted out of band.
type StaticTokenProvider struct {
	cred Credential
}

// NewStaticTokenProvider decodes the token's claims once and serves the
// resulting credential forever.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	cred, _ := FromToken(token)
	return &StaticTokenProvider{cred: cred}
}

func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return p.cred.AccessToken, nil
}

func (p *StaticTokenProvider) Credential() Credential {
	return p.cred
}
