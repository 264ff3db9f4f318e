package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ServiceKeyPrefix marks gateway-issued credentials for non-browser clients.
const ServiceKeyPrefix = "mg_sk_"

// GenerateServiceKey returns a new plaintext key and its lookup prefix.
// Only the bcrypt hash of the full key is persisted; the prefix (first 12
// chars) is stored in clear for indexed lookup.
func GenerateServiceKey() (key string, prefix string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate service key: %w", err)
	}
	key = ServiceKeyPrefix + base64.RawURLEncoding.EncodeToString(raw)
	return key, key[:12], nil
}

// HashServiceKey bcrypt-hashes a plaintext service key for storage.
func HashServiceKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckServiceKey compares a presented key against the stored hash.
func CheckServiceKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// LooksLikeServiceKey reports whether a credential carries the expected
// prefix, letting handlers reject garbage before the bcrypt compare.
func LooksLikeServiceKey(key string) bool {
	return strings.HasPrefix(key, ServiceKeyPrefix) && len(key) > len(ServiceKeyPrefix)+8
}
