// Package embed defines the embedding provider boundary and the clients
// behind it. The engine treats the provider as an external collaborator: it
// must be deterministic for identical input and return fixed-length vectors.
package embed

import (
	"context"
	"errors"
)

// Dimensions is the fixed embedding vector length.
const Dimensions = 384

// Provider errors.
var (
	// ErrUnavailable is returned when the provider cannot be reached or
	// times out. Callers fail open on it: intake availability outranks
	// dedup completeness.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrBadVector is returned when the provider responds with a vector of
	// the wrong length.
	ErrBadVector = errors.New("embedding has wrong dimensions")
)

// Provider computes a fixed-length embedding for a text string.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
