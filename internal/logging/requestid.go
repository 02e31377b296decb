// Package logging builds the process logger and threads request IDs through
// contexts so every log line of a request can be correlated.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"go.uber.org/zap"
)

type requestIDKey struct{}

// GenerateRequestID returns 8 random hex characters.
func GenerateRequestID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b[:])
}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the ID stored by WithRequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns logger tagged with ctx's request ID. A nil logger falls
// back to the global one.
func FromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.L()
	}
	id := GetRequestID(ctx)
	if id == "" {
		return logger
	}
	return logger.With(zap.String("request_id", id))
}
