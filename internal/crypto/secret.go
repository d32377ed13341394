package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

// DefaultSecretLength is the length of secrets generated on first start.
const DefaultSecretLength = 8

var ErrInvalidSecretLength = errors.New("secret length must be positive")

const secretAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomSecret returns a random alphanumeric string of length n.
func RandomSecret(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidSecretLength
	}

	max := big.NewInt(int64(len(secretAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		buf[i] = secretAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

// SecretsEqual compares a caller-supplied secret against the configured one
// in constant time. A blank configured secret never matches.
func SecretsEqual(supplied, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(configured)) == 1
}
