// Package main provides a CLI tool for generating test tokens for the
// custodia API. These tokens use the dev signing key and will NOT work
// in production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"custodia/internal/auth"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "custodia"
	defaultTokenTTL = time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	userID := flag.String("user-id", "", "User ID (UUID). Generated if empty.")
	email := flag.String("email", "dev@example.com", "Email claim")
	role := flag.String("role", "principal", "Role claim: principal, dpo or admin")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	signingKey := flag.String("signing-key", devSigningKey, "HS256 signing key")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Usage = printUsage
	flag.Parse()

	switch *role {
	case "principal", "dpo", "admin":
	default:
		fmt.Fprintf(os.Stderr, "unknown role: %s\n\n", *role)
		printUsage()
		os.Exit(1)
	}

	subject := *userID
	if subject == "" {
		subject = uuid.NewString()
	} else if _, err := uuid.Parse(subject); err != nil {
		fmt.Fprintf(os.Stderr, "user-id must be a UUID: %v\n", err)
		os.Exit(1)
	}

	issuer := auth.NewTokenIssuer(*signingKey, defaultIssuer, *ttl)
	token, err := issuer.IssueToken(subject, *email, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token generation failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			Type:      "Bearer",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub":   subject,
				"email": *email,
				"role":  *role,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer " + token,
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "\nuser_id: %s\nrole:    %s\nexpires: %s\n", subject, *role, ttl.String())
	fmt.Fprintf(os.Stderr, "\nAuthorization: Bearer %s\n", token)
}

func printUsage() {
	fmt.Println(`tokengen - Generate test tokens for the custodia API

WARNING: These tokens use the dev signing key and will NOT work in
         production. Only use for local development and testing.

Usage:
  tokengen [flags]

Examples:
  # Principal token with defaults
  tokengen

  # DPO token for the admin surface
  tokengen -role dpo

  # Token for a specific user with a custom TTL
  tokengen -user-id "550e8400-e29b-41d4-a716-446655440000" -ttl 15m

  # Output as JSON
  tokengen -json`)
	flag.PrintDefaults()
}
