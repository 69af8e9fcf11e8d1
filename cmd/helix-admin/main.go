// ABOUTME: Admin utility for the helix backend.
// ABOUTME: Mints bearer tokens for the console and other API clients.

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/2389/helix-console/internal/auth"
)

var version = "dev"

func main() {
	secret := flag.String("secret", "", "JWT signing secret (defaults to $HELIX_JWT_SECRET)")
	subject := flag.String("subject", "", "Token subject, e.g. a user or device name")
	ttl := flag.Duration("ttl", 90*24*time.Hour, "Token lifetime")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("helix-admin %s\n", version)
		return
	}

	if err := run(*secret, *subject, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(secret, subject string, ttl time.Duration) error {
	if secret == "" {
		secret = os.Getenv("HELIX_JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("no signing secret: pass -secret or set HELIX_JWT_SECRET")
	}
	if subject == "" {
		return fmt.Errorf("no subject: pass -subject")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	verifier := auth.NewJWTVerifier([]byte(secret))
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "Token for %q, expires %s.\n",
		subject, time.Now().Add(ttl).Format(time.RFC3339))
	return nil
}
