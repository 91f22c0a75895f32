package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Store is a string key-value store for client-side state.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// FileStore is the durable store. Every write rewrites the whole JSON file
// while holding an exclusive lock on a sibling ".lock" file, after reloading
// what other processes wrote since the last read. The desktop app and the CLI
// can share one data directory.
type FileStore struct {
	path string
	lock *flock.Flock

	mu     sync.Mutex
	values map[string]string
	stamp  fileStamp
}

// fileStamp identifies one version of the file on disk.
type fileStamp struct {
	modTime time.Time
	size    int64
}

// OpenFileStore loads path, starting empty when the file does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, lock: flock.New(path + ".lock")}
	values, stamp, err := readValues(path)
	if err != nil {
		return nil, err
	}
	s.values, s.stamp = values, stamp
	return s, nil
}

// Get returns the stored value for key, picking up writes made by other
// processes.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value and flushes to disk.
func (s *FileStore) Set(key, value string) error {
	return s.update(func(values map[string]string) bool {
		if prev, ok := values[key]; ok && prev == value {
			return false
		}
		values[key] = value
		return true
	})
}

// Delete removes key and flushes to disk. Missing keys are not an error.
func (s *FileStore) Delete(key string) error {
	return s.update(func(values map[string]string) bool {
		if _, ok := values[key]; !ok {
			return false
		}
		delete(values, key)
		return true
	})
}

// update reloads the file under the cross-process lock, applies mutate, and
// writes the result when mutate reports a change. A failed write leaves the
// cached values untouched.
func (s *FileStore) update(mutate func(values map[string]string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock session store: %w", err)
	}
	defer s.lock.Unlock()

	values, stamp, err := readValues(s.path)
	if err != nil {
		return err
	}
	if !mutate(values) {
		s.values, s.stamp = values, stamp
		return nil
	}
	if err := writeValues(s.path, values); err != nil {
		return err
	}
	s.values = values
	s.stamp = statStamp(s.path)
	return nil
}

// refreshLocked rereads the file when it changed on disk. A file that cannot
// be read keeps the cached values.
func (s *FileStore) refreshLocked() {
	if statStamp(s.path) == s.stamp {
		return
	}
	values, stamp, err := readValues(s.path)
	if err != nil {
		return
	}
	s.values, s.stamp = values, stamp
}

func statStamp(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

// readValues loads the JSON map at path; a missing or empty file is empty.
func readValues(path string) (map[string]string, fileStamp, error) {
	values := map[string]string{}
	stamp := statStamp(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, fileStamp{}, nil
		}
		return nil, fileStamp{}, fmt.Errorf("read session store: %w", err)
	}
	if len(data) == 0 {
		return values, stamp, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fileStamp{}, fmt.Errorf("parse session store %s: %w", path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, stamp, nil
}

// writeValues writes through a temp file so readers never see a partial file.
func writeValues(path string, values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session store: %w", err)
	}
	return nil
}

// MemoryStore is the tab-scoped store; its contents die with the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

// Get returns the stored value for key.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
