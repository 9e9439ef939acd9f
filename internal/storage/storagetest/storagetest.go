// Package storagetest provides stores for tests of packages built on
// storage.Store.
package storagetest

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/visitrelay/internal/storage"
)

// NewSQLite returns a migrated in-memory SQLite store closed at test end.
func NewSQLite(t testing.TB) *storage.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = storage.NewMigrationRunner(db).Run(context.Background())
	require.NoError(t, err)

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Recorder wraps a Store and records every write.
type Recorder struct {
	storage.Store

	mu      sync.Mutex
	sets    []map[string][]byte
	removes [][]string
}

func NewRecorder(store storage.Store) *Recorder {
	return &Recorder{Store: store}
}

func (r *Recorder) Set(ctx context.Context, values map[string][]byte) error {
	r.mu.Lock()
	cp := make(map[string][]byte, len(values))
	for k, v := range values {
		cp[k] = v
	}
	r.sets = append(r.sets, cp)
	r.mu.Unlock()
	return r.Store.Set(ctx, values)
}

func (r *Recorder) Remove(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	r.removes = append(r.removes, append([]string(nil), keys...))
	r.mu.Unlock()
	return r.Store.Remove(ctx, keys...)
}

// Update records the Changes fn settles on as one Set and, when it removes
// keys, one Remove.
func (r *Recorder) Update(ctx context.Context, keys []string, fn storage.UpdateFunc) error {
	var last storage.Changes
	err := r.Store.Update(ctx, keys, func(current map[string][]byte) (storage.Changes, error) {
		changes, err := fn(current)
		last = changes
		return changes, err
	})
	if err != nil || last.Empty() {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(last.Set) > 0 {
		cp := make(map[string][]byte, len(last.Set))
		for k, v := range last.Set {
			cp[k] = v
		}
		r.sets = append(r.sets, cp)
	}
	if len(last.Remove) > 0 {
		r.removes = append(r.removes, append([]string(nil), last.Remove...))
	}
	return nil
}

// Sets returns the values passed to each Set call, in order.
func (r *Recorder) Sets() []map[string][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string][]byte(nil), r.sets...)
}

// Removes returns the keys passed to each Remove call, in order.
func (r *Recorder) Removes() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.removes...)
}

// Reset forgets recorded writes.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = nil
	r.removes = nil
}

// Failing wraps a Store and fails the selected operations with Err.
type Failing struct {
	storage.Store
	Err error

	mu         sync.Mutex
	failGet    bool
	failSet    bool
	failRemove bool
}

func NewFailing(store storage.Store, err error) *Failing {
	return &Failing{Store: store, Err: err}
}

// FailGet toggles failure of Get.
func (f *Failing) FailGet(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = on
}

// FailSet toggles failure of Set.
func (f *Failing) FailSet(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet = on
}

// FailRemove toggles failure of Remove.
func (f *Failing) FailRemove(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRemove = on
}

func (f *Failing) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, f.Err
	}
	return f.Store.Get(ctx, keys...)
}

func (f *Failing) Set(ctx context.Context, values map[string][]byte) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return f.Err
	}
	return f.Store.Set(ctx, values)
}

// Update fails like Get before reading, and like Set or Remove when fn asks
// for that kind of write. A failed write leaves the store untouched.
func (f *Failing) Update(ctx context.Context, keys []string, fn storage.UpdateFunc) error {
	f.mu.Lock()
	failGet, failSet, failRemove := f.failGet, f.failSet, f.failRemove
	f.mu.Unlock()
	if failGet {
		return f.Err
	}
	return f.Store.Update(ctx, keys, func(current map[string][]byte) (storage.Changes, error) {
		changes, err := fn(current)
		if err != nil {
			return changes, err
		}
		if (failSet && len(changes.Set) > 0) || (failRemove && len(changes.Remove) > 0) {
			return storage.Changes{}, f.Err
		}
		return changes, nil
	})
}

func (f *Failing) Remove(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	fail := f.failRemove
	f.mu.Unlock()
	if fail {
		return f.Err
	}
	return f.Store.Remove(ctx, keys...)
}
