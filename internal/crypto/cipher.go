package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// KeySize is the required length of the symmetric key in bytes (AES-256).
	KeySize = 32

	ivSize = aes.BlockSize
)

var (
	// ErrInvalidKey indicates a malformed or wrong-length encryption key.
	ErrInvalidKey = errors.New("invalid encryption key")

	// ErrEncryptionFailed indicates a cipher failure while encrypting.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed indicates a decode, format, or padding failure
	// while decrypting.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Cipher transforms a single segment. Both the single-segment and the chunked
// upload paths go through the same Cipher, so segment-level behavior is
// uniform regardless of path: when encryption is disabled the configured
// Cipher is the identity pass-through.
type Cipher interface {
	// Encrypt encrypts one segment and returns base64(iv || ciphertext).
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt reverses Encrypt.
	Decrypt(data []byte) ([]byte, error)

	// Enabled reports whether the cipher actually transforms data.
	Enabled() bool
}

// segmentCipher implements Cipher using AES-256 in CBC mode with PKCS#7
// padding and a fresh random IV per call. There is no authentication tag:
// decrypting tampered or wrong-key data either fails on padding or silently
// produces garbage, matching the stored format this gateway is compatible
// with.
type segmentCipher struct {
	key []byte
}

// NewSegmentCipher creates a Cipher for the given 32-byte key.
func NewSegmentCipher(key []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &segmentCipher{key: k}, nil
}

// Encrypt encrypts one segment and returns base64(iv || ciphertext).
func (c *segmentCipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: failed to generate IV: %v", ErrEncryptionFailed, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, ivSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[ivSize:], padded)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(out)))
	base64.StdEncoding.Encode(encoded, out)
	return encoded, nil
}

// Decrypt base64-decodes, splits off the leading IV, and decrypts the rest.
func (c *segmentCipher) Decrypt(data []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrDecryptionFailed, err)
	}
	raw = raw[:n]

	if len(raw) < ivSize+aes.BlockSize {
		return nil, fmt.Errorf("%w: payload too short", ErrDecryptionFailed)
	}
	iv, ciphertext := raw[:ivSize], raw[ivSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not block-aligned", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return unpadded, nil
}

// Enabled reports whether the cipher actually transforms data.
func (c *segmentCipher) Enabled() bool { return true }

// identityCipher passes segments through untouched. Used when encryption is
// disabled so callers never branch on the feature flag themselves.
type identityCipher struct{}

// NewIdentityCipher creates the pass-through Cipher.
func NewIdentityCipher() Cipher { return identityCipher{} }

func (identityCipher) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }
func (identityCipher) Decrypt(data []byte) ([]byte, error)      { return data, nil }
func (identityCipher) Enabled() bool                            { return false }

// pkcs7Pad appends PKCS#7 padding up to the given block size.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// pkcs7Unpad strips and validates PKCS#7 padding.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, fmt.Errorf("invalid padding byte %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-padLen], nil
}
