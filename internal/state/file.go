package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"weatherdesk/internal/core"
)

const (
	historyFile  = "history.json"
	lastCityFile = "last_city.json"
)

type historyRecord struct {
	History []string `json:"history"`
}

// FileStore keeps history.json and last_city.json in a directory, usually
// the cache directory. Unreadable files are treated as empty.
type FileStore struct {
	dir        string
	maxHistory int
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string, maxHistory int, logger *slog.Logger) *FileStore {
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: dir, maxHistory: maxHistory, logger: logger}
}

func (s *FileStore) History(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readHistory(), nil
}

func (s *FileStore) AddHistory(_ context.Context, name string) ([]string, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, core.NewInvalidInputError("city name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := pushHistory(s.readHistory(), name, s.maxHistory)
	if err := s.writeJSON(historyFile, historyRecord{History: list}); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *FileStore) LastCity(_ context.Context) (core.City, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var city core.City
	if !s.readJSON(lastCityFile, &city) || !validCity(city) {
		return core.City{}, false, nil
	}
	return city, true, nil
}

func (s *FileStore) SetLastCity(_ context.Context, city core.City) error {
	if !validCity(city) {
		return core.NewInvalidInputError("city id and name are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(lastCityFile, city)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readHistory() []string {
	var rec historyRecord
	if !s.readJSON(historyFile, &rec) || rec.History == nil {
		return []string{}
	}
	return rec.History
}

// readJSON decodes name into v and reports whether it succeeded.
func (s *FileStore) readJSON(name string, v any) bool {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("state read failed", "file", name, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("ignoring corrupt state file", "file", name, "error", err)
		return false
	}
	return true
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
