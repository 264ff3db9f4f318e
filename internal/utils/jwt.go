package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GetJwtSecretString returns the shared token-verification secret.
// Resolution order: SUPABASE_JWT_SECRET -> JWT_SECRET -> dev default.
// The dev default is disabled when MEDGATE_STRICT_JWT is 1/true, so a
// production deployment without a real secret fails closed.
func GetJwtSecretString() (string, error) {
	secret := strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET"))
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	}
	if secret == "" {
		strict := strings.EqualFold(strings.TrimSpace(os.Getenv("MEDGATE_STRICT_JWT")), "1") ||
			strings.EqualFold(strings.TrimSpace(os.Getenv("MEDGATE_STRICT_JWT")), "true")
		if !strict {
			secret = "dev_jwt_secret_123"
		}
	}
	if secret == "" {
		return "", fmt.Errorf("SUPABASE_JWT_SECRET environment variable not set")
	}
	return secret, nil
}

// GetJwtSecretBytes returns the resolved secret in []byte form.
func GetJwtSecretBytes() ([]byte, error) {
	s, err := GetJwtSecretString()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// MintToken issues an HS256 token shaped like the ones the hosted auth
// provider hands to the SPA (sub/email/role, aud "authenticated").
// Used by local tooling and tests; production tokens come from the
// auth provider itself.
func MintToken(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	secret, err := GetJwtSecretBytes()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"role":  "authenticated",
		"aud":   "authenticated",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
