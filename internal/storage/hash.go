package storage

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost defines the computational cost for bcrypt hashing.
	// Cost 10 = ~60ms per hash. Can be raised to 12 (~250ms) where key
	// validation latency is acceptable.
	bcryptCost  = 10
	bcryptLimit = 72
)

// HashAPIKey generates a bcrypt hash of the API key for secure storage.
// The API key is never stored in plaintext - only the bcrypt hash is persisted.
//
// Bcrypt has a 72-byte input limit and catalog keys are 75 characters, so
// keys are pre-hashed with SHA-256 before bcrypt. Each hash includes a random
// salt, so identical keys produce different hashes.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyNil
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash performs constant-time comparison of API key against bcrypt hash.
// This is the primary method for API key validation - never compare plaintext keys.
//
// Intentionally slow (~60ms per call with cost 10) to prevent brute force.
// Returns false for any error conditions (empty inputs, invalid hash format, etc.)
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}

// bcryptInput prepares key material for bcrypt. Keys beyond the 72-byte limit
// are pre-hashed with SHA-256; hashing and comparison must share this step.
func bcryptInput(apiKey string) []byte {
	if len(apiKey) > bcryptLimit {
		digest := sha256.Sum256([]byte(apiKey))

		return digest[:]
	}

	return []byte(apiKey)
}
