// Package crypto provides password hashing for stored user credentials.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// N=16384 (2^14), r=8, p=1 are recommended for interactive logins.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// HashWithScrypt hashes input with the given salt and returns the hex-encoded key.
func HashWithScrypt(input, salt string) (string, error) {
	dk, err := scrypt.Key([]byte(input), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt key derivation failed: %w", err)
	}
	return hex.EncodeToString(dk), nil
}

// HashPassword hashes password under a fresh random salt. Both the hash and
// the salt must be stored to verify the password later.
func HashPassword(password string) (hash, salt string, err error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	salt = hex.EncodeToString(buf)
	hash, err = HashWithScrypt(password, salt)
	if err != nil {
		return "", "", err
	}
	return hash, salt, nil
}

// VerifyPassword reports whether password hashes to hash under salt.
// The comparison is constant-time.
func VerifyPassword(password, hash, salt string) (bool, error) {
	computed, err := HashWithScrypt(password, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}
