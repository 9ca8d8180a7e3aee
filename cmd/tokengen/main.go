package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/socialhub/edge-gateway/internal/auth"
)

// tokengen mints a bearer token for local testing against protected
// routes. The secret comes from EDGE_AUTH__JWT_SECRET (or .env), the
// same variable the gateway reads.
func main() {
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tokengen [-ttl 24h] <subject>")
		os.Exit(1)
	}

	_ = godotenv.Load()
	secret := os.Getenv("EDGE_AUTH__JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "EDGE_AUTH__JWT_SECRET is not set")
		os.Exit(1)
	}

	token, err := auth.NewValidator(secret).Sign(flag.Arg(0), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Subject: %s\n", flag.Arg(0))
	fmt.Printf("Expires: %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Printf("\nAuthorization: Bearer %s\n", token)
}
