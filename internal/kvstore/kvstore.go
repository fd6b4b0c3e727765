// Package kvstore is the key-value persistence adapter the offline-first
// core writes through. Values are JSON-serialized strings; keys are
// namespaced per repository by convention. I/O failures never reach the
// caller: reads report absence, writes are dropped, and the adapter logs.
package kvstore

import "context"

type Store interface {
	// Get returns the raw value and whether it was present. A failed
	// round trip is indistinguishable from an absent key.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores the raw value. Errors are logged and swallowed.
	Set(ctx context.Context, key, value string)

	// Delete removes the key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string)

	// GetAllKeys lists keys under the given prefix.
	GetAllKeys(ctx context.Context, prefix string) []string
}
