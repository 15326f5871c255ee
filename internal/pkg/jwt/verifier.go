// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeAccess    = "access"
	PurposeWebsocket = "ws"
)

type Verifier struct {
	keys     []*rsa.PublicKey
	issuer   string
	audience string
}

// NewVerifier accepts tokens signed by any of keys.
func NewVerifier(issuer, audience string, keys ...*rsa.PublicKey) *Verifier {
	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
	}
}

// Verify validates a JWT token and returns the claims
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if len(v.keys) == 0 {
		return nil, fmt.Errorf("jwt verifier has no public key")
	}

	var (
		token *jwt.Token
		err   error
	)
	for _, pub := range v.keys {
		token, err = jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			// Verify signing method
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return pub, nil
		})
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", v.issuer, claims.Issuer)
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("invalid audience")
	}
	if claims.EmployeeID == "" {
		return nil, fmt.Errorf("token has no employee")
	}

	return claims, nil
}

// VerifyAccessToken verifies a staff API token.
func (v *Verifier) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeAccess {
		return nil, fmt.Errorf("token is not an access token")
	}
	return claims, nil
}

// VerifySocketToken accepts access tokens and the short-lived tokens POS
// terminals use to open the event socket.
func (v *Verifier) VerifySocketToken(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeAccess && claims.Purpose != PurposeWebsocket {
		return nil, fmt.Errorf("token cannot open a socket")
	}
	return claims, nil
}
