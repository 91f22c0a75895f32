package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"study-buddy/internal/config"
	"study-buddy/internal/domain"
)

// FixDiagnostic applies a local remediation for one failed diagnostic item
// and returns the refreshed report.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, changed, err := fixSettings(a.GetSettings(), id)
	if err == nil && id == "media_file" {
		err = a.forgetMissingMedia()
	}
	if err != nil {
		return a.RefreshDiagnostics(), err
	}

	if changed {
		if _, saveErr := a.SaveSettings(settings); saveErr != nil {
			return a.RefreshDiagnostics(), fmt.Errorf("save settings after fix: %w", saveErr)
		}
		return a.GetDiagnostics(), nil
	}
	return a.RefreshDiagnostics(), nil
}

// fixSettings returns settings with the item's remediation applied.
// changed reports whether the settings must be persisted.
func fixSettings(settings domain.Settings, id string) (domain.Settings, bool, error) {
	defaults := config.DefaultSettings()

	switch id {
	case "backend":
		if settings.BackendURL == defaults.BackendURL {
			return settings, false, fmt.Errorf("backend at %s is not reachable; start it and retry", settings.BackendURL)
		}
		settings.BackendURL = defaults.BackendURL
		return settings, true, nil
	case "data_dir":
		dir, changed, err := ensureDir(settings.DataDir, defaults.DataDir)
		settings.DataDir = dir
		return settings, changed, err
	case "export_dir":
		dir, changed, err := ensureDir(settings.ExportDir, defaults.ExportDir)
		settings.ExportDir = dir
		return settings, changed, err
	case "media_file":
		return settings, false, nil
	default:
		return settings, false, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}
}

// ensureDir creates dir, falling back to fallback when it is empty or cannot be created.
func ensureDir(dir, fallback string) (string, bool, error) {
	if strings.TrimSpace(dir) != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return dir, false, nil
		}
	}
	if err := os.MkdirAll(fallback, 0o755); err != nil {
		return dir, false, fmt.Errorf("create directory %s: %w", fallback, err)
	}
	return fallback, true, nil
}

// forgetMissingMedia drops the lost source file from the current session so
// the results view stops offering playback.
func (a *App) forgetMissingMedia() error {
	sc, err := a.services.Sessions.Current()
	if err != nil {
		return nil
	}
	ref := sc.MediaRef()
	if ref == "" {
		return nil
	}
	if _, err := os.Stat(ref); err == nil {
		return nil
	}
	if err := sc.ClearMedia(); err != nil {
		return fmt.Errorf("clear media: %w", err)
	}
	a.services.Logger.Info("forgot missing media", "session_id", sc.ID(), "path", ref)
	return nil
}
