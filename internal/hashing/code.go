package hashing

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateCode returns a uniformly random numeric code of exactly length digits.
func GenerateCode(length int) (string, error) {
	if length < 1 || length > 18 {
		return "", fmt.Errorf("unsupported code length %d", length)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}
