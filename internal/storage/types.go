package storage

import "context"

// Store is the durable key-value port every component persists through.
// Values are opaque bytes; callers own the encoding.
type Store interface {
	// Get returns the values stored under keys. Missing keys are absent from
	// the result map.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	// Set writes all values in one atomic operation: either every key is
	// updated or none is.
	Set(ctx context.Context, values map[string][]byte) error
	// Remove deletes keys. Removing a missing key is not an error.
	Remove(ctx context.Context, keys ...string) error
	// Update reads keys, passes them to fn and applies the Changes it
	// returns, as one unit: no other writer, in this process or another
	// sharing the backend, changes keys between the read and the write.
	// fn may be called more than once when a backend retries after a
	// conflict. If fn returns an error nothing is written and Update returns
	// that error unchanged.
	Update(ctx context.Context, keys []string, fn UpdateFunc) error
	Close() error
}

// Changes are the writes an UpdateFunc asks for.
type Changes struct {
	Set    map[string][]byte
	Remove []string
}

// Empty reports whether c writes nothing.
func (c Changes) Empty() bool {
	return len(c.Set) == 0 && len(c.Remove) == 0
}

// UpdateFunc computes Changes from the current values of the watched keys.
// Missing keys are absent from current.
type UpdateFunc func(current map[string][]byte) (Changes, error)

// Supported storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)
