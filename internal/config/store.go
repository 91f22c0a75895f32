package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"study-buddy/internal/domain"
)

// ErrInvalidBackendURL is returned for backend addresses that are not an
// absolute http or https URL.
var ErrInvalidBackendURL = errors.New("invalid backend URL")

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads settings from disk or returns defaults when missing.
// Fields left empty in the file keep their default value; a backend URL
// that cannot be used is an error naming the file.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	cfg := DefaultSettings()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("parse %s: %w", s.path, err)
	}

	cfg = Normalize(cfg)
	if err := ValidateBackendURL(cfg.BackendURL); err != nil {
		return domain.Settings{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return cfg, nil
}

// Save validates and normalizes settings, then writes them as indented JSON.
// Parent directories are created as needed.
func (s *JSONStore) Save(cfg domain.Settings) error {
	cfg = Normalize(cfg)
	if err := ValidateBackendURL(cfg.BackendURL); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// ValidateBackendURL accepts absolute http and https URLs with a host.
func ValidateBackendURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidBackendURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidBackendURL, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w %q: missing host", ErrInvalidBackendURL, raw)
	}
	return nil
}
