// internal/auth/tokens.go
//
// Package auth issues the signed resume tokens carried in HELLO_OK. A token
// binds a reconnecting socket to the player identity it was issued for; it
// is not an account system.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs and verifies resume tokens with an ed25519 key pair.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expire     time.Duration // 0 means no exp claim
}

// NewIssuer generates a fresh key pair. Tokens do not survive a process
// restart, which matches the no-persistence posture: a dead server means
// dead rooms anyway.
func NewIssuer() (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, expire: parseExpireEnv()}, nil
}

// parseExpireEnv reads TOKEN_EXPIRE_TIME ("never", "0", or a duration).
func parseExpireEnv() time.Duration {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "never" || raw == "0" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Printf("failed to parse TOKEN_EXPIRE_TIME: %v\n", err)
		os.Exit(1)
	}
	return d
}

// Issue creates a signed token with "sub" = playerID.
func (i *Issuer) Issue(playerID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": playerID,
	}
	if i.expire > 0 {
		claims["exp"] = time.Now().Add(i.expire).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// Verify checks the signature and returns the "sub" claim.
func (i *Issuer) Verify(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	playerID, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return playerID, nil
}
