// Package roomcode generates and validates the six character codes that
// identify a party.
package roomcode

import (
	"context"
	"errors"
	"math/rand/v2"
	"regexp"
	"strings"
)

const (
	Length   = 6
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	defaultMaxAttempts = 16
)

var (
	codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

	ErrExhausted = errors.New("no unused room code found")
)

// Generate returns a random code. It does not check for collisions.
func Generate() string {
	b := make([]byte, Length)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func Valid(code string) bool {
	return codePattern.MatchString(code)
}

// Parse normalizes raw and reports whether the result is a well formed code.
func Parse(raw string) (string, bool) {
	code := Normalize(raw)
	return code, Valid(code)
}

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// GenerateUnique draws codes until exists reports one as unused.
func GenerateUnique(ctx context.Context, exists ExistsFunc, maxAttempts int) (string, error) {
	return generateUnique(ctx, Generate, exists, maxAttempts)
}

func generateUnique(ctx context.Context, gen func() string, exists ExistsFunc, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for range maxAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code := gen()
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}

	return "", ErrExhausted
}
