// Package storage defines the interface for fetching uploaded audio from a
// hosted object store.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested object or bucket does not
	// exist.
	ErrNotFound = errors.New("storage: object not found")

	// ErrTooLarge is returned when an object exceeds the configured download
	// limit.
	ErrTooLarge = errors.New("storage: object too large")

	// ErrInvalidKey is returned for object keys that cannot address an
	// object, such as keys containing "." or ".." path elements.
	ErrInvalidKey = errors.New("storage: invalid object key")
)

// Store downloads objects by bucket and key. Implementations must be safe for
// concurrent use.
type Store interface {
	// Download returns the full contents of the object at bucket/key.
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}
