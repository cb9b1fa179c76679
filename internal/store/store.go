// Package store persists the configured relay endpoints keyed by URL.
package store

import (
	"context"
	"errors"
	"fmt"

	"nostr-relaypool/internal/types"
)

// ErrNotFound is returned by Get when no endpoint is stored for the URL.
var ErrNotFound = errors.New("relay endpoint not found")

// RelayStore defines the interface for relay endpoint persistence
type RelayStore interface {
	// Save inserts or replaces the endpoint stored under its URL
	Save(ctx context.Context, ep types.RelayEndpoint) error

	// Get returns the endpoint stored for url or ErrNotFound
	Get(ctx context.Context, url string) (types.RelayEndpoint, error)

	// GetAll returns every stored endpoint ordered by URL
	GetAll(ctx context.Context) ([]types.RelayEndpoint, error)

	// Delete removes the endpoint; deleting a missing URL is not an error
	Delete(ctx context.Context, url string) error

	// Close releases the underlying resources
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend     string // memory, file or redis
	Path        string // file backend
	RedisURL    string
	RedisPrefix string
}

// Open returns the backend named by opts.Backend.
func Open(opts Options) (RelayStore, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(opts.Path)
	case "redis":
		return NewRedisStore(opts.RedisURL, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
