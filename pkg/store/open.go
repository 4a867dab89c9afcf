package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	DriverMemory  = "memory"
	DriverSQLite  = "sqlite"
	DriverRedis   = "redis"
	DriverMongoDB = "mongodb"
)

// Options selects and configures a backend.
type Options struct {
	Driver        string
	Path          string
	RedisAddrs    []string
	RedisPassword string
	MongoURI      string
	MongoDatabase string
}

// Open creates the Store named by opts.Driver. An empty driver means memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(opts.Path)
	case DriverRedis:
		return NewRedis(ctx, opts.RedisAddrs, opts.RedisPassword, "")
	case DriverMongoDB:
		return NewMongoDB(ctx, opts.MongoURI, opts.MongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
}
