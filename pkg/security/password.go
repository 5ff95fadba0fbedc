package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/cuemby/snas/pkg/secure"
)

// Argon2 parameters for password hashing. These are deliberately heavier
// than a key-derivation profile (see the teacher's DeriveKey, tuned for
// fast unlock) since this hash is computed once per login, not per
// encrypt/decrypt call.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashPassword derives a self-describing Argon2id hash string in the
// conventional PHC-like layout:
//
//	argon2id$v=19$m=65536,t=3,p=4$<base64 salt>$<base64 hash>
//
// so a record can be verified without any side-channel configuration and
// the parameters can change over time without breaking old hashes.
func HashPassword(password secure.String) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("security: generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password.Expose()), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf(
		"argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks password against an encoded hash produced by
// HashPassword, honoring whatever parameters are embedded in the string so
// a future change to argonTime/argonMemory/argonThreads doesn't invalidate
// existing records.
func VerifyPassword(password secure.String, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return false, fmt.Errorf("security: malformed password hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil {
		return false, fmt.Errorf("security: malformed version field: %w", err)
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("security: malformed parameter field: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("security: malformed salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("security: malformed hash: %w", err)
	}

	got := argon2.IDKey([]byte(password.Expose()), salt, time, memory, threads, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
