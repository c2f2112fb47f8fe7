// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token generates and hashes the single-use tokens sent by email.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Length is the number of random bytes in a raw token.
const Length = 32

// Generate returns a new hex-encoded raw token.
func Generate() (string, error) {
	b := make([]byte, Length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hash computes the SHA256 hash of a raw token. Only hashes are stored.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Expired reports whether expiresAt is not after now.
func Expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// GenerateWithHash returns a raw token and its hash.
func GenerateWithHash() (raw, hash string, err error) {
	raw, err = Generate()
	if err != nil {
		return "", "", err
	}
	return raw, Hash(raw), nil
}
