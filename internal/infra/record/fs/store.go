// Package fs stores each record as one JSON file under a root directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"metastore/internal/record/core"
)

const (
	// DefaultRoot is used when no root directory is configured.
	DefaultRoot = "./metadata"
	ext         = ".json"
)

// Store implements core.Table on the local filesystem. A record is the file
// <root>/<id>.json; an empty file is a record whose metadata is absent.
// Writes land in a temp file that is renamed over the record.
type Store struct {
	root string
	mu   sync.RWMutex
}

var _ core.Table = (*Store)(nil)

// New returns a filesystem table rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("fs: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory holding record files.
func (s *Store) Root() string { return s.root }

// Driver returns the record driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) pathFor(id string) (string, error) {
	if err := core.ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id+ext), nil
}

// Create inserts a record under a generated id.
func (s *Store) Create(ctx context.Context) (*core.Handle, error) {
	return s.CreateWithID(ctx, core.NewID())
}

// CreateWithID writes an empty marker file for id.
func (s *Store) CreateWithID(_ context.Context, id string) (*core.Handle, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, iofs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", core.ErrExists, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fs: create %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("fs: create %s: %w", id, err)
	}
	return s.handle(id), nil
}

// Open returns a handle on an existing record.
func (s *Store) Open(_ context.Context, id string) (*core.Handle, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
		}
		return nil, fmt.Errorf("fs: open %s: %w", id, err)
	}
	return s.handle(id), nil
}

// List returns record ids in lexical order.
func (s *Store) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("fs: list: %w", err)
	}
	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	sort.Strings(ids)
	return ids, nil
}

// Drop removes the record file, reporting whether it existed.
func (s *Store) Drop(_ context.Context, id string) (bool, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = os.Remove(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fs: drop %s: %w", id, err)
	}
	return true, nil
}

func (s *Store) handle(id string) *core.Handle {
	return core.NewHandle(id, row{store: s, id: id})
}

type row struct {
	store *Store
	id    string
}

func (r row) LoadMetadata(context.Context) (string, bool, error) {
	path, err := r.store.pathFor(r.id)
	if err != nil {
		return "", false, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	data, err := os.ReadFile(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return "", false, fmt.Errorf("%w: %s", core.ErrNotFound, r.id)
	}
	if err != nil {
		return "", false, fmt.Errorf("fs: load %s: %w", r.id, err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

func (r row) SaveMetadata(_ context.Context, raw string) error {
	path, err := r.store.pathFor(r.id)
	if err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("%w: %s", core.ErrNotFound, r.id)
		}
		return fmt.Errorf("fs: save %s: %w", r.id, err)
	}
	if err := writeAtomic(path, []byte(raw)); err != nil {
		return fmt.Errorf("fs: save %s: %w", r.id, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
