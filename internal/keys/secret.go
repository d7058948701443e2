package keys

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const (
	// SecretPrefix marks every generated API key.
	SecretPrefix = "sk_"
	secretLength = 32
	alphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var secretPattern = regexp.MustCompile(`^sk_[A-Za-z0-9]{32}$`)

// SecretGenerator produces new opaque key secrets.
type SecretGenerator func() (string, error)

// GenerateSecret returns "sk_" followed by 32 alphanumeric characters drawn
// from crypto/rand.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return SecretPrefix + string(buf), nil
}

// LooksLikeSecret reports whether s has the shape of a generated secret:
// the prefix and exactly 32 ASCII alphanumerics, so no NUL bytes or invalid
// UTF-8 pass.
func LooksLikeSecret(s string) bool {
	return secretPattern.MatchString(s)
}
