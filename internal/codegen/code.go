// Package codegen issues numeric cancellation codes.
package codegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"grillbook/internal/models"
)

const (
	MinLength = 4
	MaxLength = 9
)

// Generator returns Length decimal digits without a leading zero.
type Generator struct {
	Length int
}

func New(length int) (*Generator, error) {
	if length == 0 {
		length = models.DefaultCodeLength
	}
	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("code length must be between %d and %d, got %d", MinLength, MaxLength, length)
	}
	return &Generator{Length: length}, nil
}

// Range returns the inclusive lower and exclusive upper bound of generated codes.
func (g *Generator) Range() (lo, hi int64) {
	lo = pow10(g.Length - 1)
	return lo, lo * 10
}

func (g *Generator) Generate() (string, error) {
	lo, hi := g.Range()
	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo))
	if err != nil {
		return "", fmt.Errorf("generate cancellation code: %w", err)
	}
	return strconv.FormatInt(lo+n.Int64(), 10), nil
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
