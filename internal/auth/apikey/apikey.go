// Package apikey validates API keys against a configured set of SHA-256
// digests. Raw keys never appear in configuration; only their hashes do.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidKey = errors.New("invalid api key")

// KeyInfo identifies a validated key without revealing it.
type KeyInfo struct {
	ID string `json:"id"`
}

type Keyring struct {
	hashes [][]byte
}

// NewKeyring parses hex SHA-256 digests. Blank entries are ignored.
func NewKeyring(digests []string) (*Keyring, error) {
	k := &Keyring{}
	for _, d := range digests {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		b, err := hex.DecodeString(d)
		if err != nil || len(b) != sha256.Size {
			return nil, fmt.Errorf("api key digest %q is not a hex sha-256 hash", d)
		}
		k.hashes = append(k.hashes, b)
	}
	return k, nil
}

// Empty reports whether no keys are configured.
func (k *Keyring) Empty() bool {
	return k == nil || len(k.hashes) == 0
}

// Validate compares the hash of rawKey with every configured digest in
// constant time.
func (k *Keyring) Validate(rawKey string) (KeyInfo, error) {
	if rawKey == "" || k.Empty() {
		return KeyInfo{}, ErrInvalidKey
	}
	sum := sha256.Sum256([]byte(rawKey))
	match := 0
	for _, h := range k.hashes {
		match |= subtle.ConstantTimeCompare(sum[:], h)
	}
	if match != 1 {
		return KeyInfo{}, ErrInvalidKey
	}
	return KeyInfo{ID: hex.EncodeToString(sum[:4])}, nil
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateKey returns a random 32-byte hex key and its digest.
func GenerateKey() (raw, digest string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating api key: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, HashKey(raw), nil
}
