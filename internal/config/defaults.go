package config

import (
	"os"
	"path/filepath"
	"time"

	"study-buddy/internal/domain"
)

const (
	// DefaultBackendURL is the local development address of the processing backend.
	DefaultBackendURL = "http://localhost:5001"

	DefaultPollInterval  = 2 * time.Second
	DefaultNavigateDelay = 1500 * time.Millisecond
	DefaultChatDelay     = 1500 * time.Millisecond
	DefaultHTTPTimeout   = 120 * time.Second
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		BackendURL: DefaultBackendURL,
		DataDir:    filepath.Join(homeDir, ".study-buddy"),
		ExportDir:  filepath.Join(homeDir, "Documents", "StudyBuddy"),
	}
}

// SettingsPath returns the settings file location inside dataDir.
func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.json")
}
