package storage

import (
	"context"
	"fmt"
	"path/filepath"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver      string
	Dir         string
	SQLiteFile  string
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return OpenSQLite(ctx, filepath.Join(opts.Dir, opts.SQLiteFile))
	case DriverRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisDB, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
