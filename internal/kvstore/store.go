// Package kvstore provides the durable key-value storage that holds session state.
package kvstore

// Store is a string key-value store. Writes are last-write-wins per key.
// Implementations report failures as service.ErrStorage-kinded errors.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores value under key.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key succeeds.
	Remove(key string) error
}

// Batcher is implemented by stores that can apply several keys atomically:
// either every key is written (or removed) or none is.
type Batcher interface {
	SetAll(values map[string]string) error
	RemoveAll(keys ...string) error
}
