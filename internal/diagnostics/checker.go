package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"study-buddy/internal/backend"
	"study-buddy/internal/domain"
)

// HealthSource reports backend availability.
type HealthSource interface {
	Health(ctx context.Context) (backend.Health, error)
}

// Checker validates backend reachability and required filesystem paths.
type Checker struct {
	backend    HealthSource
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(b HealthSource) *Checker {
	return &Checker{
		backend:    b,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
// mediaRef is the local file of the current run, if any.
func (c *Checker) Run(ctx context.Context, settings domain.Settings, mediaRef string) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkBackend(ctx, settings.BackendURL),
		c.checkWritableDir("data_dir", "Data directory", settings.DataDir),
		c.checkWritableDir("export_dir", "Export directory", settings.ExportDir),
		c.checkMediaFile(mediaRef),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkBackend calls the health endpoint.
func (c *Checker) checkBackend(ctx context.Context, baseURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backend",
		Name: "Processing backend",
	}

	if c.backend == nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No backend configured."
		item.Hint = "Set the backend URL in settings or STUDYBUDDY_BACKEND_URL."
		return item
	}

	health, err := c.backend.Health(ctx)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Backend not reachable at %s", baseURL)
		item.Hint = "Start the backend server and check the configured URL."
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			item.Message = fmt.Sprintf("Backend at %s is unhealthy: %s", baseURL, apiErr.Message)
			item.Hint = "Check the backend logs; its database may be unavailable."
		}
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Backend %s at %s", health.Status, baseURL)
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = "Set a directory in settings."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkMediaFile warns when the current run's source file has gone away.
func (c *Checker) checkMediaFile(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "media_file",
		Name: "Current media",
	}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "No local media in the current session."
		return item
	}

	info, err := c.stat(path)
	if err != nil || info.IsDir() {
		item.Status = domain.DiagnosticStatusWarn
		if IsNotExist(err) {
			item.Message = fmt.Sprintf("Media file no longer exists: %s", path)
		} else {
			item.Message = fmt.Sprintf("Cannot access media file: %s", path)
		}
		item.Hint = "Results remain available; the player will be empty until the file is restored."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Media file found: %s", path)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	b HealthSource,
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		backend:    b,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
