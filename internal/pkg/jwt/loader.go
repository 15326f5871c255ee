// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
	"os"
	"strings"
)

// Config locates the auth service's public keys. PublicKeyPEM, when set, wins
// over PubPath so a deployment can pass the bundle through the environment.
type Config struct {
	PubPath      string
	PublicKeyPEM string
	Issuer       string
	Audience     string
}

func LoadVerifier(cfg Config) (*Verifier, error) {
	bundle := []byte(cfg.PublicKeyPEM)
	source := "JWT_PUBLIC_KEY"
	if strings.TrimSpace(cfg.PublicKeyPEM) == "" {
		b, err := os.ReadFile(cfg.PubPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public keys: %w", err)
		}
		bundle, source = b, cfg.PubPath
	}

	keys, err := ParseRSAPublicKeys(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to load public keys from %s: %w", source, err)
	}
	return NewVerifier(cfg.Issuer, cfg.Audience, keys...), nil
}
