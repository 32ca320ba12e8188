package store

import (
	"context"
	"fmt"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Options struct {
	// Backend is one of json, sqlite or redis; empty means json.
	Backend    string
	Files      map[string]string
	SQLitePath string
	Redis      RedisOptions
}

// NewBackend opens the backend named by opts.Backend.
func NewBackend(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case "", BackendJSON:
		return NewJSONFiles(opts.Files), nil
	case BackendSQLite:
		return NewSQLite(opts.SQLitePath)
	case BackendRedis:
		return NewRedis(ctx, opts.Redis)
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}
