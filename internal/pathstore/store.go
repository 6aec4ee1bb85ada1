// Package pathstore keeps one in-memory waypoint sequence per path kind and persists
// them as plain text files in a fixed directory.
package pathstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/udisondev/autopilot/internal/model"
)

var (
	// ErrNotFound is returned when no file exists for a name.
	ErrNotFound = errors.New("path not found")
	// ErrEmptyPath is returned when saving a kind whose sequence has no points.
	ErrEmptyPath = errors.New("path is empty")
	// ErrInvalidName is returned for names that cannot be a file stem.
	ErrInvalidName = errors.New("invalid path name")
)

// entry is the in-memory state of one kind.
type entry struct {
	path model.Path
	name string // file stem it was loaded from or saved to; empty when unsaved
}

// Store is safe for concurrent use. File I/O runs outside the lock.
type Store struct {
	dir string

	mu      sync.RWMutex
	current map[model.PathKind]*entry
}

// New creates a store rooted at dir. The directory is created on first Save.
func New(dir string) *Store {
	s := &Store{
		dir:     dir,
		current: make(map[model.PathKind]*entry, len(model.PathKinds)),
	}
	for _, k := range model.PathKinds {
		s.current[k] = &entry{path: model.Path{Kind: k}}
	}
	return s
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

func (s *Store) file(name string, kind model.PathKind) string {
	return filepath.Join(s.dir, name+kind.Extension())
}

// Load reads name from disk and makes it the current sequence of kind.
func (s *Store) Load(name string, kind model.PathKind) (model.Path, error) {
	if err := validateName(name); err != nil {
		return model.Path{}, err
	}

	fn := s.file(name, kind)
	data, err := os.ReadFile(fn)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Path{}, fmt.Errorf("loading %s path %q: %w", kind, name, ErrNotFound)
		}
		return model.Path{}, fmt.Errorf("reading %s: %w", fn, err)
	}

	p, err := Decode(bytes.NewReader(data), kind, fn)
	if err != nil {
		return model.Path{}, err
	}

	s.mu.Lock()
	s.current[kind] = &entry{path: p, name: name}
	s.mu.Unlock()

	slog.Info("path loaded", "name", name, "kind", kind, "points", p.Len())
	return p.Clone(), nil
}

// Save writes the current sequence of kind to disk under name, creating the
// directory if needed. A vendor path without a display name uses name instead.
func (s *Store) Save(name string, kind model.PathKind) error {
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.RLock()
	src := s.current[kind]
	p := src.path.Clone()
	s.mu.RUnlock()

	if p.Len() == 0 {
		return fmt.Errorf("saving %s path %q: %w", kind, name, ErrEmptyPath)
	}
	if kind == model.PathVendor && p.VendorName == "" {
		p.VendorName = name
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating path directory %s: %w", s.dir, err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		return fmt.Errorf("encoding %s path %q: %w", kind, name, err)
	}

	fn := s.file(name, kind)
	tmp := fn + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, fn); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", fn, err)
	}

	// The sequence may have been replaced while the file was written; only the
	// entry that was saved takes the name.
	s.mu.Lock()
	if e := s.current[kind]; e == src {
		e.name = name
		if kind == model.PathVendor && e.path.VendorName == "" {
			e.path.VendorName = p.VendorName
		}
	}
	s.mu.Unlock()

	slog.Info("path saved", "name", name, "kind", kind, "points", p.Len())
	return nil
}

// List returns names of saved paths of kind, sorted. A missing directory yields none.
func (s *Store) List(kind model.PathKind) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}

	ext := kind.Extension()
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if stem, ok := strings.CutSuffix(e.Name(), ext); ok && stem != "" {
			names = append(names, stem)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Clear empties the current sequence of kind together with its name and identity.
func (s *Store) Clear(kind model.PathKind) {
	s.mu.Lock()
	s.current[kind] = &entry{path: model.Path{Kind: kind}}
	s.mu.Unlock()
}

// SetPath replaces the current sequence of kind. The vendor name and the persisted
// identity are cleared: a directly set path is unsaved.
func (s *Store) SetPath(points []model.Vector3, kind model.PathKind) {
	s.mu.Lock()
	s.current[kind] = &entry{path: model.Path{Kind: kind, Points: slices.Clone(points)}}
	s.mu.Unlock()
}

// Replace swaps in p (points and vendor name) as the unsaved current sequence of p.Kind.
func (s *Store) Replace(p model.Path) {
	p = p.Clone()
	if p.Kind != model.PathVendor {
		p.VendorName = ""
	}
	s.mu.Lock()
	s.current[p.Kind] = &entry{path: p}
	s.mu.Unlock()
}

// SetVendorName sets the display name of the current vendor path.
func (s *Store) SetVendorName(name string) {
	s.mu.Lock()
	s.current[model.PathVendor].path.VendorName = strings.TrimSpace(name)
	s.mu.Unlock()
}

// Current returns a copy of the current sequence of kind and the name it was
// loaded from or saved as (empty if unsaved).
func (s *Store) Current(kind model.PathKind) (model.Path, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.current[kind]
	return e.path.Clone(), e.name
}
