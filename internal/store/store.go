// Package store defines the persistent key-value contract the
// discovery cache is rehydrated from across restarts. Implementations
// are passed by reference into consumers; there is no ambient global.
package store

import "context"

// Store is a process-wide key-value store surviving restarts.
type Store interface {
	// Get returns the value for key. The bool reports presence.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes key to value, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backing resources.
	Close() error
}
