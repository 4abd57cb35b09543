// ABOUTME: Generates signed JWT tokens for local compliancectl runs and demos
// ABOUTME: Claims match what the auth package decodes: sub, tid, aud, oid, name, roles

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <token-type> [role ...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Token types: valid, expired, norole\n")
		fmt.Fprintf(os.Stderr, "Signing secret comes from JWT_SECRET (default: dev-secret)\n")
		os.Exit(1)
	}

	tokenType := os.Args[1]
	roles := os.Args[2:]
	if len(roles) == 0 {
		roles = []string{"compliance.read"}
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   "demo-user-123",
		"tid":   "demo-tenant",
		"aud":   "compliance-api",
		"oid":   "00000000-0000-0000-0000-000000000123",
		"name":  "Demo User",
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	switch tokenType {
	case "valid":
		// defaults above
	case "expired":
		claims["iat"] = now.Add(-2 * time.Hour).Unix()
		claims["exp"] = now.Add(-time.Hour).Unix()
	case "norole":
		claims["roles"] = []string{}
	default:
		fmt.Fprintf(os.Stderr, "Unknown token type: %s\n", tokenType)
		os.Exit(1)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(signed)
}
