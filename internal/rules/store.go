package rules

import (
	"sync/atomic"
)

// Store holds the catalog snapshot in use. Readers never lock; a reload
// builds a complete new Catalog and swaps the pointer.
type Store struct {
	path    string
	current atomic.Pointer[Catalog]
}

// NewStore loads path and fails if the catalog is unusable.
func NewStore(path string) (*Store, error) {
	cat, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(cat)
	return s, nil
}

// NewStaticStore wraps an already-built catalog. Reload re-reads nothing and
// keeps it.
func NewStaticStore(cat *Catalog) *Store {
	s := &Store{}
	s.current.Store(cat)
	return s
}

// Current returns the snapshot to evaluate against.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Path is the catalog file backing the store, empty for static stores.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the catalog file. On failure the previous snapshot stays.
func (s *Store) Reload() (*Catalog, error) {
	if s.path == "" {
		return s.Current(), nil
	}
	cat, err := LoadFile(s.path)
	if err != nil {
		return s.Current(), err
	}
	s.current.Store(cat)
	return cat, nil
}

// Swap installs cat and returns the snapshot it replaced.
func (s *Store) Swap(cat *Catalog) *Catalog {
	return s.current.Swap(cat)
}
