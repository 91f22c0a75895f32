package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"study-buddy/internal/backend"
	"study-buddy/internal/domain"
)

type stubHealth struct {
	health backend.Health
	err    error
}

func (s stubHealth) Health(context.Context) (backend.Health, error) {
	return s.health, s.err
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	mediaFile := filepath.Join(root, "lecture.mp4")
	if err := os.WriteFile(mediaFile, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	checker := NewCheckerForTests(
		stubHealth{health: backend.Health{Status: "healthy"}},
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(context.Background(), domain.Settings{
		BackendURL: "http://localhost:5001",
		DataDir:    filepath.Join(root, "data"),
		ExportDir:  filepath.Join(root, "exports"),
	}, mediaFile)

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	assertStatusByID(t, report, "media_file", domain.DiagnosticStatusPass)
}

// TestCheckerRunBackendDownAndEmptyPaths validates failure reporting.
func TestCheckerRunBackendDownAndEmptyPaths(t *testing.T) {
	checker := NewCheckerForTests(
		stubHealth{err: errors.New("connection refused")},
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(context.Background(), domain.Settings{BackendURL: "http://localhost:5001"}, "")

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "backend", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "data_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "export_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "media_file", domain.DiagnosticStatusPass)
}

// TestCheckerRunUnhealthyBackend validates the message for an error response.
func TestCheckerRunUnhealthyBackend(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		stubHealth{err: &backend.APIError{Op: "health check", StatusCode: 500, Message: "database down"}},
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(context.Background(), domain.Settings{
		BackendURL: "http://b",
		DataDir:    root,
		ExportDir:  root,
	}, "")

	item := findByID(t, report, "backend")
	if item.Status != domain.DiagnosticStatusFail {
		t.Fatalf("status = %s, want fail", item.Status)
	}
	if item.Message != "Backend at http://b is unhealthy: database down" {
		t.Fatalf("message = %q", item.Message)
	}
}

// TestCheckerRunMissingMediaOnlyWarns validates that a lost source file is not a failure.
func TestCheckerRunMissingMediaOnlyWarns(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		stubHealth{health: backend.Health{Status: "healthy"}},
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(context.Background(), domain.Settings{
		BackendURL: "http://b",
		DataDir:    root,
		ExportDir:  root,
	}, filepath.Join(root, "gone.mp4"))

	if report.HasFailures {
		t.Fatalf("missing media should not fail the report: %+v", report.Items)
	}
	assertStatusByID(t, report, "media_file", domain.DiagnosticStatusWarn)
}

// TestCheckerRunUnwritableDirectory validates write check failures.
func TestCheckerRunUnwritableDirectory(t *testing.T) {
	checker := NewCheckerForTests(
		stubHealth{health: backend.Health{Status: "healthy"}},
		os.Stat,
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, os.ErrPermission },
		os.Remove,
	)

	report := checker.Run(context.Background(), domain.Settings{
		BackendURL: "http://b",
		DataDir:    "/data",
		ExportDir:  "/exports",
	}, "")

	assertStatusByID(t, report, "data_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "export_dir", domain.DiagnosticStatusFail)
}

// findByID returns one diagnostic item by ID.
func findByID(t *testing.T, report domain.DiagnosticReport, id string) domain.DiagnosticItem {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
	return domain.DiagnosticItem{}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	if item := findByID(t, report, id); item.Status != want {
		t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
	}
}
