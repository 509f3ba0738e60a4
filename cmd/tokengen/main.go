// Package main provides a CLI tool for generating test tokens for the agegate API.
// These tokens use the dev signing key and will NOT work in production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"agegate/internal/token"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "agegate"
	defaultTokenTTL = time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	userID := flag.String("user-id", "", "User ID (UUID). Generated if empty.")
	signingKey := flag.String("signing-key", devSigningKey, "JWT signing key (must match JWT_SIGNING_KEY)")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	flag.Usage = printUsage
	flag.Parse()

	uid := parseOrGenerateUUID(*userID)

	svc := token.NewService(*signingKey, defaultIssuer, *ttl)
	generated, err := svc.Generate(uid.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		printJSON(tokenOutput{
			Token:     generated,
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub": uid.String(),
				"iss": defaultIssuer,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Access Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Printf("User ID:    %s\n", uid)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(generated)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" -X POST http://localhost:8080/age/start")
}

func printUsage() {
	fmt.Println(`tokengen - Generate test tokens for the agegate API

WARNING: These tokens use the dev signing key by default and will NOT work in
         production. Only use for local development and testing.

Usage:
  tokengen [flags]

Examples:
  # Generate a token for a random user
  tokengen

  # Generate a token for a specific user
  tokengen -user-id "550e8400-e29b-41d4-a716-446655440000"

  # Generate with a custom TTL and output as JSON
  tokengen -ttl 15m -json`)
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func parseOrGenerateUUID(input string) uuid.UUID {
	if input == "" {
		return uuid.New()
	}
	parsed, err := uuid.Parse(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user-id UUID: %s\n", input)
		os.Exit(1)
	}
	return parsed
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
