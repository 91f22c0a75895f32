package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"study-buddy/internal/backend"
	"study-buddy/internal/config"
	"study-buddy/internal/diagnostics"
	"study-buddy/internal/domain"
	"study-buddy/internal/ingest"
	"study-buddy/internal/jobs"
	"study-buddy/internal/media"
	"study-buddy/internal/platform/logger"
	"study-buddy/internal/session"
)

const diagnosticsTimeout = 5 * time.Second

// Services is the component graph shared by the desktop app and the CLI.
type Services struct {
	Settings domain.Settings
	Env      config.Env
	Logger   *slog.Logger

	Backend  *backend.Client
	Sessions *session.Manager
	Media    *media.Registry
	Ingester *ingest.Ingester
	Poller   *jobs.Poller
	Checker  *diagnostics.Checker
}

// LoadConfig resolves the env file, the settings file, and an optional data
// directory override, in increasing order of precedence.
func LoadConfig(envFile, dataDir string) (config.Env, domain.Settings, config.Store, error) {
	env, err := config.LoadEnv(envFile)
	if err != nil {
		return config.Env{}, domain.Settings{}, nil, err
	}

	dir := strings.TrimSpace(dataDir)
	if dir == "" {
		dir = env.DataDir
	}
	if dir == "" {
		dir = config.DefaultSettings().DataDir
	}

	store := config.NewJSONStore(config.SettingsPath(dir))
	settings, err := store.Load()
	if err != nil {
		return config.Env{}, domain.Settings{}, nil, fmt.Errorf("load settings: %w", err)
	}
	settings = env.Apply(settings)
	settings.DataDir = dir
	return env, settings, store, nil
}

// NewLogger builds the process logger from env settings.
func NewLogger(env config.Env) *slog.Logger {
	return logger.New(logger.Config{
		Level:  logger.ParseLevel(env.LogLevel),
		Format: env.LogFormat,
		Output: os.Stderr,
	})
}

// NewServices opens the session store inside the data directory and wires
// every component against the configured backend.
func NewServices(settings domain.Settings, env config.Env, l *slog.Logger) (*Services, error) {
	l = logger.OrDefault(l)
	settings = config.Normalize(settings)

	if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := session.OpenFileStore(filepath.Join(settings.DataDir, "session.json"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	client := backend.NewClient(settings.BackendURL, env.HTTPTimeout, l)
	sessions := session.NewManager(store, session.NewMemoryStore(), l)
	registry := media.NewRegistry("", l)

	poller := jobs.NewPoller(client, jobs.NewManager(), jobs.NewEventBus(1000), l)
	if env.PollInterval > 0 {
		poller.Interval = env.PollInterval
	}
	if env.NavigateDelay > 0 {
		poller.NavigateDelay = env.NavigateDelay
	}
	poller.Timeout = env.PollTimeout

	return &Services{
		Settings: settings,
		Env:      env,
		Logger:   l,
		Backend:  client,
		Sessions: sessions,
		Media:    registry,
		Ingester: ingest.NewIngester(client, sessions, registry, l),
		Poller:   poller,
		Checker:  diagnostics.NewChecker(client),
	}, nil
}

// CurrentMediaRef returns the local source file of the current run, if any.
func (s *Services) CurrentMediaRef() string {
	sc, err := s.Sessions.Current()
	if err != nil {
		return ""
	}
	return sc.MediaRef()
}

// Diagnose runs the startup checks against the current settings.
func (s *Services) Diagnose(ctx context.Context) domain.DiagnosticReport {
	ctx, cancel := context.WithTimeout(ctx, diagnosticsTimeout)
	defer cancel()
	return s.Checker.Run(ctx, s.Settings, s.CurrentMediaRef())
}

// Close releases every media handle.
func (s *Services) Close() {
	s.Ingester.Close()
	s.Media.Close()
}
