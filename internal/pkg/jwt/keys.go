package jwt

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// ParseRSAPublicKeys reads every RSA key in a PEM bundle. The auth service
// publishes the next signing key next to the current one while it rotates, so
// a bundle may hold several PKIX ("PUBLIC KEY"), PKCS1 ("RSA PUBLIC KEY") or
// certificate blocks.
func ParseRSAPublicKeys(bundle []byte) ([]*rsa.PublicKey, error) {
	var keys []*rsa.PublicKey
	for rest := bundle; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		key, err := rsaKeyFromBlock(block)
		if err != nil {
			return nil, fmt.Errorf("key %d in bundle: %w", len(keys)+1, err)
		}
		if key != nil {
			keys = append(keys, key)
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no RSA public key found in PEM data")
	}
	return keys, nil
}

// rsaKeyFromBlock returns nil for block types that carry no public key.
func rsaKeyFromBlock(block *pem.Block) (*rsa.PublicKey, error) {
	var pub interface{}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
		pub = key
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		pub = cert.PublicKey
	default:
		return nil, nil
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaKey, nil
}
