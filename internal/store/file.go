package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"nostr-relaypool/internal/types"
)

// FileStore keeps the endpoints in a JSON file, rewritten on every change.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens the store at path. A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store needs a path")
	}
	s := &FileStore{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Save(ctx context.Context, ep types.RelayEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	all[ep.URL] = ep
	return s.write(all)
}

func (s *FileStore) Get(ctx context.Context, url string) (types.RelayEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return types.RelayEndpoint{}, err
	}
	ep, ok := all[url]
	if !ok {
		return types.RelayEndpoint{}, ErrNotFound
	}
	return ep, nil
}

func (s *FileStore) GetAll(ctx context.Context) ([]types.RelayEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	return sortedEndpoints(all), nil
}

func (s *FileStore) Delete(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[url]; !ok {
		return nil
	}
	delete(all, url)
	return s.write(all)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() (map[string]types.RelayEndpoint, error) {
	all := make(map[string]types.RelayEndpoint)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read relay store: %w", err)
	}
	if len(data) == 0 {
		return all, nil
	}

	var list []types.RelayEndpoint
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse relay store %s: %w", s.path, err)
	}
	for _, ep := range list {
		all[ep.URL] = ep
	}
	return all, nil
}

// write replaces the file atomically through a temp file in the same directory.
func (s *FileStore) write(all map[string]types.RelayEndpoint) error {
	data, err := json.MarshalIndent(sortedEndpoints(all), "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create relay store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".relays-*.json")
	if err != nil {
		return fmt.Errorf("write relay store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write relay store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write relay store: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func sortedEndpoints(all map[string]types.RelayEndpoint) []types.RelayEndpoint {
	out := make([]types.RelayEndpoint, 0, len(all))
	for _, ep := range all {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
