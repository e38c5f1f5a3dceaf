package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// base64KeyPrefix marks keys stored in base64 in config and env vars.
	base64KeyPrefix = "base64:"

	pbkdf2Iterations = 100000
)

// keyDerivationSalt is a fixed context string: the derived key must be stable
// across restarts, so a random salt is not an option here.
var keyDerivationSalt = []byte("chat-storage-gateway/segment-key/v1")

// ResolveKey turns a configured key string into exactly KeySize raw bytes.
// Strings carrying the "base64:" prefix are decoded first; everything else is
// taken as raw bytes. A resolved key of any other length fails with
// ErrInvalidKey.
func ResolveKey(raw string) ([]byte, error) {
	key := []byte(raw)
	if strings.HasPrefix(raw, base64KeyPrefix) {
		decoded, err := base64.StdEncoding.DecodeString(raw[len(base64KeyPrefix):])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 encoding: %v", ErrInvalidKey, err)
		}
		key = decoded
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return key, nil
}

// DeriveKey derives a KeySize-byte key from an application-wide secret using
// PBKDF2-SHA256. Used when no explicit encryption key is configured.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty application secret", ErrInvalidKey)
	}
	return pbkdf2.Key([]byte(secret), keyDerivationSalt, pbkdf2Iterations, KeySize, sha256.New), nil
}
