package subscription

import (
	"crypto/rand"
	"fmt"
)

const (
	tokenLength   = 25
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateToken returns a new confirmation token: 25 random
// alphanumeric characters.
func GenerateToken() string {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf)
}

// ParseToken validates a caller-supplied token before it reaches the
// database: exact length, ASCII alphanumeric only.
func ParseToken(token string) error {
	if len(token) != tokenLength {
		return fmt.Errorf("invalid token length")
	}
	for _, c := range token {
		if !isAlphanumeric(c) {
			return fmt.Errorf("invalid character in token")
		}
	}
	return nil
}

func isAlphanumeric(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
