// Package state keeps short-lived OAuth state values that bind a callback to
// the browser that started the sign-in.
package state

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TTL is how long a state value stays redeemable.
const TTL = 10 * time.Minute

// Store persists state values until they are consumed or expire.
type Store interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	// Consume deletes state and reports whether it existed and was unexpired.
	Consume(ctx context.Context, state string) (bool, error)
}

// Generate returns a random hex state value.
func Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
