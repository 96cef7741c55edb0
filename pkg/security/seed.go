package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// SeedHexLen is the length of a draw seed in lowercase hex characters,
// encoding 32 bytes of entropy.
const SeedHexLen = 64

// ErrInvalidSeed signals a seed that is not 64 lowercase hex characters.
var ErrInvalidSeed = fmt.Errorf("seed must be %d hex characters", SeedHexLen)

// GenerateSeed returns a fresh random draw seed as 64 hex characters.
func GenerateSeed() (string, error) {
	raw := make([]byte, SeedHexLen/2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate seed: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// ValidateSeed checks that the seed is well formed. Uppercase hex is
// rejected so that commitments are computed over one canonical form.
func ValidateSeed(seed string) error {
	if len(seed) != SeedHexLen {
		return ErrInvalidSeed
	}
	for _, c := range seed {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return ErrInvalidSeed
		}
	}
	return nil
}

// CommitSeed returns the hex SHA3-256 digest of the canonical seed string.
// Publishing the commitment before the draw lets participants verify the
// revealed seed afterwards.
func CommitSeed(seed string) (string, error) {
	if err := ValidateSeed(seed); err != nil {
		return "", err
	}
	digest := sha3.Sum256([]byte(seed))
	return hex.EncodeToString(digest[:]), nil
}
