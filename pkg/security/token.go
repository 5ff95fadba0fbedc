package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// tokenAlphabet excludes visually ambiguous characters (0/O, 1/l/I) since
// reset tokens are meant to be read aloud or retyped by a human.
const tokenAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

// tokenLength of 32 gives well over 128 bits of entropy even against the
// reduced alphabet above.
const tokenLength = 32

// GenerateResetToken produces a random, human-transcribable one-time token
// used for ResetPassword and the initial-login flow. It is never stored;
// only its Argon2id hash (via HashPassword) is persisted in the account's
// password field while the account sits in a reset phase.
func GenerateResetToken() (string, error) {
	out := make([]byte, tokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))

	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("security: generating token: %w", err)
		}
		out[i] = tokenAlphabet[n.Int64()]
	}

	return string(out), nil
}
