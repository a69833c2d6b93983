package store

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"keyremap/internal/mapping"
)

//go:embed schema/mappings.schema.json
var mappingSchemaJSON string

var mappingSchema = jsonschema.MustCompileString("mappings.schema.json", mappingSchemaJSON)

// FileStore keeps mappings in a JSON array file. The file is re-read on every
// call so edits made by another process are picked up.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path, creating its directory. The
// file itself is created on the first write.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) List(ctx context.Context) ([]mapping.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Add(ctx context.Context, m mapping.Mapping) error {
	return s.modify(func(ms []mapping.Mapping) ([]mapping.Mapping, error) {
		if index(ms, m.ID) >= 0 {
			return nil, mapping.ErrDuplicateID
		}
		return append(ms, m.Clone()), nil
	})
}

func (s *FileStore) Update(ctx context.Context, m mapping.Mapping) error {
	return s.modify(func(ms []mapping.Mapping) ([]mapping.Mapping, error) {
		i := index(ms, m.ID)
		if i < 0 {
			return nil, mapping.ErrNotFound
		}
		ms[i] = m.Clone()
		return ms, nil
	})
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	return s.modify(func(ms []mapping.Mapping) ([]mapping.Mapping, error) {
		i := index(ms, id)
		if i < 0 {
			return nil, mapping.ErrNotFound
		}
		return append(ms[:i], ms[i+1:]...), nil
	})
}

func (s *FileStore) Toggle(ctx context.Context, id string) (mapping.Mapping, error) {
	var out mapping.Mapping
	err := s.modify(func(ms []mapping.Mapping) ([]mapping.Mapping, error) {
		i := index(ms, id)
		if i < 0 {
			return nil, mapping.ErrNotFound
		}
		ms[i].Enabled = !ms[i].Enabled
		out = ms[i].Clone()
		return ms, nil
	})
	return out, err
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) modify(fn func([]mapping.Mapping) ([]mapping.Mapping, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, err := s.load()
	if err != nil {
		return err
	}
	ms, err = fn(ms)
	if err != nil {
		return err
	}
	return s.save(ms)
}

// load must be called with s.mu held. A missing or empty file is an empty
// list.
func (s *FileStore) load() ([]mapping.Mapping, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []mapping.Mapping{}, nil
		}
		return nil, fmt.Errorf("read mappings: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []mapping.Mapping{}, nil
	}
	return decodeDocument(data)
}

func decodeDocument(data []byte) ([]mapping.Mapping, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := mappingSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	ms := make([]mapping.Mapping, 0, len(raws))
	for i, raw := range raws {
		// enabled may be omitted and defaults to true.
		m := mapping.Mapping{Enabled: true}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidDocument, i, err)
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// save writes ms to a temporary file next to the target and renames it into
// place. Must be called with s.mu held.
func (s *FileStore) save(ms []mapping.Mapping) error {
	if ms == nil {
		ms = []mapping.Mapping{}
	}
	data, err := json.MarshalIndent(ms, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mappings: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".mappings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write mappings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync mappings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close mappings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace mappings: %w", err)
	}
	return nil
}

func index(ms []mapping.Mapping, id string) int {
	for i, m := range ms {
		if m.ID == id {
			return i
		}
	}
	return -1
}
