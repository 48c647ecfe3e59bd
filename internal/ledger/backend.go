package ledger

import (
	"context"
	"fmt"
)

// Backend defines the interface for ledger storage backends.
type Backend interface {
	// Read loads the ledger from the backend.
	Read(ctx context.Context) (*Ledger, error)

	// Write saves the ledger to the backend.
	Write(ctx context.Context, l *Ledger) error

	// Lock acquires an exclusive lock on the ledger.
	Lock() error

	// Unlock releases the lock on the ledger.
	Unlock() error
}

// BackendConfig holds configuration for a ledger backend.
type BackendConfig struct {
	Type   string            `json:"type"` // "local", "s3"
	Config map[string]string `json:"config"`
}

// NewBackend creates a ledger backend from configuration.
func NewBackend(cfg *BackendConfig) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		path := cfg.Config["path"]
		if path == "" {
			return nil, fmt.Errorf("local backend requires 'path' configuration")
		}
		return NewManager(path), nil
	case "s3":
		return newS3Backend(cfg.Config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
