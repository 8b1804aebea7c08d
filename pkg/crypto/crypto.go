package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor applied when callers do not override it.
const DefaultCost = 10

// tokenAlphabet is the character set used for invite tokens. Case sensitive so
// every character carries close to six bits of entropy.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// HashSecret returns a bcrypt digest of the supplied secret using DefaultCost.
func HashSecret(secret string) (string, error) {
	return HashSecretCost(secret, DefaultCost)
}

// HashSecretCost returns a bcrypt digest using an explicit work factor.
func HashSecretCost(secret string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("crypto: hash secret: %w", err)
	}
	return string(digest), nil
}

// VerifySecret reports whether the candidate matches the stored digest.
// Any malformed digest verifies as false rather than returning an error, and
// the underlying comparison is constant time with respect to the candidate.
func VerifySecret(digest, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(candidate)) == nil
}

// GenerateKey produces a fresh API key with UUID-class entropy. Only the
// bcrypt digest of the key is ever persisted.
func GenerateKey() string {
	return uuid.NewString()
}

// RandomToken returns n characters drawn uniformly from the token alphabet
// using crypto/rand.
func RandomToken(n int) (string, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(tokenAlphabet)))

	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("crypto: random token: %w", err)
		}
		out[i] = tokenAlphabet[idx.Int64()]
	}

	return string(out), nil
}
