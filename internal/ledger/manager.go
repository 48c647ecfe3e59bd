package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Manager reads and writes the ledger at a local path. The file is JSON,
// transparently encrypted when SUBFORGE_LEDGER_ENCRYPTION_KEY is set.
type Manager struct {
	path string
}

// NewManager returns a Manager for the ledger file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Read loads the ledger from the configured path. A missing file yields a
// fresh empty ledger.
func (m *Manager) Read(ctx context.Context) (*Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file %s: %w", m.path, err)
	}

	decrypted, err := Decrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt ledger: %w", err)
	}

	return decode(decrypted)
}

// Write saves the ledger to the configured path. The write is atomic: the
// content lands in a temp file first and is renamed into place, so a crash
// mid-write never leaves a truncated ledger behind.
func (m *Manager) Write(ctx context.Context, l *Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	content, err := encode(l)
	if err != nil {
		return err
	}

	encrypted, err := Encrypt(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt ledger: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write ledger file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace ledger file %s: %w", m.path, err)
	}

	return nil
}

// Lock acquires a file lock on the ledger to prevent concurrent mutation.
func (m *Manager) Lock() error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		// A lock older than 10 minutes is considered stale.
		if time.Since(info.ModTime()) > 10*time.Minute {
			os.Remove(lockPath)
		} else {
			return fmt.Errorf("ledger is locked by another process (lock file: %s). "+
				"If this is an error, remove the lock file manually", lockPath)
		}
	}

	content := fmt.Sprintf("pid=%d\nid=%s\ntime=%s\n",
		os.Getpid(), uuid.NewString(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	return nil
}

// Unlock releases the ledger lock.
func (m *Manager) Unlock() error {
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}

func encode(l *Ledger) ([]byte, error) {
	content, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger: %w", err)
	}
	return append(content, '\n'), nil
}

func decode(content []byte) (*Ledger, error) {
	l := New()
	if err := json.Unmarshal(content, l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	if l.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported ledger version %d", l.Version)
	}
	l.reindex()
	return l, nil
}

var _ Backend = (*Manager)(nil)
