// Package auth holds the JWT verification keys and claims used by the
// authentication middleware.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

// ClaimsKey is the request-context key under which verified claims are stored.
const ClaimsKey ctxKey = 1

// Roles recognised by the Authorize middleware.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Claims is the payload we expect inside the bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// HasRole reports whether the claims carry the given role.
func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Keys wraps the public key used to verify tokens issued by the user service.
type Keys struct {
	pubKey *rsa.PublicKey
}

// NewKeys parses the PEM encoded RSA public key.
func NewKeys(pubKeyPEM []byte) (*Keys, error) {
	if len(pubKeyPEM) == 0 {
		return nil, errors.New("public key pem is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pubKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	return &Keys{pubKey: key}, nil
}

// ValidateToken verifies the signature and returns the token's claims.
func (k *Keys) ValidateToken(tokenStr string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.pubKey, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}
	return claims, nil
}
