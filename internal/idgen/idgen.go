// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Reference returns a cosmetic transaction reference shown on the
// completion view. It is never persisted and carries no system meaning.
func Reference() (string, error) {
	return GenerateWithPrefix("RCV-")
}

// DisplayKey returns a one-time display key for the completion view.
// Like Reference, it is generated per render and never stored.
func DisplayKey() (string, error) {
	return GenerateWithPrefix("key-")
}

// TokenID returns a session token identifier (JWT jti claim).
func TokenID() (string, error) {
	return GenerateWithPrefix("sess-")
}
