package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"study-buddy/internal/domain"
)

// Env holds runtime tuning read from the process environment or a .env file.
type Env struct {
	BackendURL    string
	DataDir       string
	ExportDir     string
	PollInterval  time.Duration
	NavigateDelay time.Duration
	ChatDelay     time.Duration
	// PollTimeout bounds one polling run; zero polls until a terminal status.
	PollTimeout time.Duration
	HTTPTimeout time.Duration
	LogLevel    string
	LogFormat   string
}

// LoadEnv reads envFile when it exists, then resolves every STUDYBUDDY_* variable.
func LoadEnv(envFile string) (Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Env{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	env := Env{
		BackendURL: getEnv("STUDYBUDDY_BACKEND_URL", ""),
		DataDir:    getEnv("STUDYBUDDY_DATA_DIR", ""),
		ExportDir:  getEnv("STUDYBUDDY_EXPORT_DIR", ""),
		LogLevel:   getEnv("STUDYBUDDY_LOG_LEVEL", "info"),
		LogFormat:  getEnv("STUDYBUDDY_LOG_FORMAT", "text"),
	}

	var err error
	if env.PollInterval, err = getEnvAsDuration("STUDYBUDDY_POLL_INTERVAL", DefaultPollInterval); err != nil {
		return Env{}, err
	}
	if env.NavigateDelay, err = getEnvAsDuration("STUDYBUDDY_NAVIGATE_DELAY", DefaultNavigateDelay); err != nil {
		return Env{}, err
	}
	if env.ChatDelay, err = getEnvAsDuration("STUDYBUDDY_CHAT_DELAY", DefaultChatDelay); err != nil {
		return Env{}, err
	}
	if env.PollTimeout, err = getEnvAsDuration("STUDYBUDDY_POLL_TIMEOUT", 0); err != nil {
		return Env{}, err
	}
	if env.HTTPTimeout, err = getEnvAsDuration("STUDYBUDDY_HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return Env{}, err
	}
	if env.PollInterval <= 0 {
		return Env{}, fmt.Errorf("STUDYBUDDY_POLL_INTERVAL must be positive")
	}

	return env, nil
}

// Apply overlays non-empty environment values on persisted settings.
func (e Env) Apply(settings domain.Settings) domain.Settings {
	if e.BackendURL != "" {
		settings.BackendURL = e.BackendURL
	}
	if e.DataDir != "" {
		settings.DataDir = e.DataDir
	}
	if e.ExportDir != "" {
		settings.ExportDir = e.ExportDir
	}
	return Normalize(settings)
}

// Normalize trims user input and restores defaults for empty fields.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	settings.BackendURL = strings.TrimRight(strings.TrimSpace(settings.BackendURL), "/")
	settings.DataDir = strings.TrimSpace(settings.DataDir)
	settings.ExportDir = strings.TrimSpace(settings.ExportDir)
	if settings.BackendURL == "" {
		settings.BackendURL = defaults.BackendURL
	}
	if settings.DataDir == "" {
		settings.DataDir = defaults.DataDir
	}
	if settings.ExportDir == "" {
		settings.ExportDir = defaults.ExportDir
	}
	return settings
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
