package app

import (
	"strings"

	"github.com/google/uuid"
)

const holdTokenPrefix = "hold_"

// TokenGenerator produces hold tokens.
type TokenGenerator func() string

// NewHoldToken returns "hold_" followed by the 32 hex digits of a random
// version 4 UUID.
func NewHoldToken() string {
	return holdTokenPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
