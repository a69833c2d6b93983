package mapping

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned when no mapping has the requested id.
	ErrNotFound = errors.New("mapping: not found")

	// ErrDuplicateID is returned when adding a mapping whose id already exists.
	ErrDuplicateID = errors.New("mapping: duplicate id")
)

// Repository provides the persisted mapping list. List returns value copies
// in insertion order; callers may modify them freely.
type Repository interface {
	List(ctx context.Context) ([]Mapping, error)
}

// Writer mutates a mapping list.
type Writer interface {
	Add(ctx context.Context, m Mapping) error
	Update(ctx context.Context, m Mapping) error
	Delete(ctx context.Context, id string) error
	// Toggle flips Enabled and returns the updated mapping.
	Toggle(ctx context.Context, id string) (Mapping, error)
}

// Store is a full read-write repository.
type Store interface {
	Repository
	Writer
	Close() error
}

// Memory is an in-process Store. The zero value is ready to use.
type Memory struct {
	mu    sync.Mutex
	items []Mapping
}

// NewMemory returns a Memory store seeded with ms.
func NewMemory(ms ...Mapping) *Memory {
	return &Memory{items: CloneAll(ms)}
}

func (s *Memory) List(ctx context.Context) ([]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloneAll(s.items), nil
}

func (s *Memory) Add(ctx context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(m.ID) >= 0 {
		return ErrDuplicateID
	}
	s.items = append(s.items, m.Clone())
	return nil
}

func (s *Memory) Update(ctx context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(m.ID)
	if i < 0 {
		return ErrNotFound
	}
	s.items[i] = m.Clone()
	return nil
}

func (s *Memory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return ErrNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Memory) Toggle(ctx context.Context, id string) (Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return Mapping{}, ErrNotFound
	}
	s.items[i].Enabled = !s.items[i].Enabled
	return s.items[i].Clone(), nil
}

func (s *Memory) Close() error { return nil }

func (s *Memory) index(id string) int {
	for i, m := range s.items {
		if m.ID == id {
			return i
		}
	}
	return -1
}
