package testutil

import (
	"testing"

	"github.com/rs/zerolog"
)

// TestLogger writes through t.Log so output is attributed to the running test.
func TestLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
}
