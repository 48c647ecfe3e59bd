// Package template holds the compiled resource contract binaries the factory
// instantiates. Publishing is append-only: a version, once published, never
// changes, so a deployment that is still awaiting its callback can never have
// its code swapped underneath it.
package template

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrUnknownVersion is returned by Fetch for an unpublished version.
	ErrUnknownVersion = errors.New("no template with this version")
	// ErrVersionExists is returned by Publish when the version is taken.
	ErrVersionExists = errors.New("template version already published")
	// ErrNoTemplates is returned by Latest when nothing is published yet.
	ErrNoTemplates = errors.New("no templates published")
)

// Meta describes one published template version.
type Meta struct {
	Version     string    `json:"version"`
	Digest      string    `json:"digest"` // sha256 of the binary, hex
	Size        int64     `json:"size"`
	PublishedAt time.Time `json:"published_at"`
}

// Store is a directory-backed, append-only template store. Binaries live
// under blobs/ addressed by digest; the manifest records publish order.
type Store struct {
	dir string
}

const manifestName = "manifest.json"

// Open opens (creating if needed) a template store rooted at dir.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("template store directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "blobs"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create template store: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Publish registers an immutable binary under version. Re-publishing an
// existing version fails with ErrVersionExists regardless of content.
func (s *Store) Publish(version string, binary []byte) (Meta, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return Meta{}, fmt.Errorf("template version is required")
	}
	if len(binary) == 0 {
		return Meta{}, fmt.Errorf("template binary is empty")
	}

	manifest, err := s.readManifest()
	if err != nil {
		return Meta{}, err
	}
	for _, m := range manifest {
		if m.Version == version {
			return Meta{}, fmt.Errorf("publish %s: %w", version, ErrVersionExists)
		}
	}

	sum := sha256.Sum256(binary)
	digest := hex.EncodeToString(sum[:])

	blobPath := s.blobPath(digest)
	if _, err := os.Stat(blobPath); os.IsNotExist(err) {
		if err := os.WriteFile(blobPath, binary, 0644); err != nil {
			return Meta{}, fmt.Errorf("failed to write template blob: %w", err)
		}
	}

	meta := Meta{
		Version:     version,
		Digest:      digest,
		Size:        int64(len(binary)),
		PublishedAt: time.Now().UTC(),
	}
	manifest = append(manifest, meta)
	if err := s.writeManifest(manifest); err != nil {
		return Meta{}, err
	}

	return meta, nil
}

// Fetch returns the binary published under version, verifying its digest.
func (s *Store) Fetch(version string) ([]byte, Meta, error) {
	manifest, err := s.readManifest()
	if err != nil {
		return nil, Meta{}, err
	}

	for _, m := range manifest {
		if m.Version != version {
			continue
		}
		binary, err := os.ReadFile(s.blobPath(m.Digest))
		if err != nil {
			return nil, Meta{}, fmt.Errorf("failed to read template blob %s: %w", m.Digest, err)
		}
		sum := sha256.Sum256(binary)
		if hex.EncodeToString(sum[:]) != m.Digest {
			return nil, Meta{}, fmt.Errorf("template %s: blob digest mismatch, store is corrupt", version)
		}
		return binary, m, nil
	}

	return nil, Meta{}, fmt.Errorf("fetch %s: %w", version, ErrUnknownVersion)
}

// Latest returns the most recently published version's metadata.
func (s *Store) Latest() (Meta, error) {
	manifest, err := s.readManifest()
	if err != nil {
		return Meta{}, err
	}
	if len(manifest) == 0 {
		return Meta{}, ErrNoTemplates
	}
	return manifest[len(manifest)-1], nil
}

// Versions lists all published versions in publish order.
func (s *Store) Versions() ([]Meta, error) {
	return s.readManifest()
}

func (s *Store) blobPath(digest string) string {
	return filepath.Join(s.dir, "blobs", digest)
}

func (s *Store) readManifest() ([]Meta, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, manifestName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template manifest: %w", err)
	}
	var manifest []Meta
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template manifest: %w", err)
	}
	return manifest, nil
}

func (s *Store) writeManifest(manifest []Meta) error {
	content, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal template manifest: %w", err)
	}
	path := filepath.Join(s.dir, manifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(content, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write template manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace template manifest: %w", err)
	}
	return nil
}
