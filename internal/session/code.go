package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeGenerator draws a candidate join code of the given length.
type CodeGenerator func(length int) (string, error)

// RandomCode draws each digit uniformly at random.
func RandomCode(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	s := n.String()
	return strings.Repeat("0", length-len(s)) + s, nil
}

// validCode reports whether code has exactly length ASCII digits.
func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	return strings.IndexFunc(code, func(r rune) bool { return r < '0' || r > '9' }) < 0
}
