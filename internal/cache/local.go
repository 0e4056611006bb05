package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const maxPlainKeyLen = 120

// LocalStore implements Store with one JSON file per entry, named
// "{namespace}_{key}.json" inside a directory created on first write.
// This is suitable for single-user, single-instance deployments.
type LocalStore struct {
	dir  string
	opts options
}

// NewLocalStore creates a file-based store rooted at dir.
func NewLocalStore(dir string, opts ...Option) *LocalStore {
	return &LocalStore{
		dir:  dir,
		opts: buildOptions(opts),
	}
}

// Dir returns the cache directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Path returns the file that holds (namespace, key).
func (s *LocalStore) Path(namespace, key string) string {
	return filepath.Join(s.dir, namespace+"_"+fileKey(key)+".json")
}

// Get reads and validates the entry file. Any failure is a miss.
func (s *LocalStore) Get(_ context.Context, namespace, key string) (json.RawMessage, bool) {
	raw, err := os.ReadFile(s.Path(namespace, key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.opts.logger.Warn("cache read failed", "namespace", namespace, "key", key, "error", err)
		}
		return nil, false
	}

	payload, ok := decodeRecord(raw, s.opts.now())
	if !ok {
		s.opts.logger.Debug("cache entry unusable", "namespace", namespace, "key", key)
	}
	return payload, ok
}

// Put writes the entry atomically through a temp file and rename so readers
// never observe a partial record. Failures are logged and dropped.
func (s *LocalStore) Put(_ context.Context, namespace, key string, payload any) {
	if err := s.write(namespace, key, payload); err != nil {
		s.opts.logger.Warn("cache write dropped", "namespace", namespace, "key", key, "error", err)
	}
}

func (s *LocalStore) write(namespace, key string, payload any) error {
	data, err := encodeRecord(s.opts.now(), payload)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	target := s.Path(namespace, key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Clear removes the entry files of every known namespace. Other files in the
// directory are left alone.
func (s *LocalStore) Clear(_ context.Context) error {
	var errs []error
	for _, ns := range Namespaces {
		matches, err := filepath.Glob(filepath.Join(s.dir, ns+"_*.json"))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}

// fileKey returns key unchanged when it is safe to embed in a file name,
// otherwise a stable xxhash digest of it.
func fileKey(key string) string {
	if key != "" && len(key) <= maxPlainKeyLen && !strings.HasPrefix(key, ".") &&
		!strings.ContainsAny(key, `/\:*?"<>|`+"\x00") {
		return key
	}
	return "x" + strconv.FormatUint(xxhash.Sum64String(key), 16)
}
