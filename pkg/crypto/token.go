package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const (
	DefaultTokenLength = 32 // 256 bits
)

var ErrEmptyToken = errors.New("token and hash cannot be empty")

// TokenPair is an opaque bearer token and the digest the issuer keeps.
type TokenPair struct {
	Token string // value handed to the client
	Hash  string // value kept by the issuer
}

func randomToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenLength
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewTokenPair generates a URL-safe random token of byteLength bytes
// (DefaultTokenLength when <= 0) and its SHA-256 digest.
func NewTokenPair(byteLength int) (*TokenPair, error) {
	token, err := randomToken(byteLength)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Token: token, Hash: HashToken(token)}, nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken compares token against a stored digest in constant time.
func VerifyToken(token, storedHash string) (bool, error) {
	if token == "" || storedHash == "" {
		return false, ErrEmptyToken
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1, nil
}
