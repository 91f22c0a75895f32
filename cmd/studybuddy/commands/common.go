package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"study-buddy/internal/bootstrap"
	"study-buddy/internal/config"
	"study-buddy/internal/session"
)

// AppContext holds the services shared by every command.
type AppContext struct {
	Services *bootstrap.Services
	Store    config.Store
}

// NewAppContext loads configuration from the global flags and wires services.
func NewAppContext(cmd *cli.Command) (*AppContext, error) {
	env, settings, store, err := bootstrap.LoadConfig(cmd.String("env"), cmd.String("data-dir"))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if url := strings.TrimSpace(cmd.String("backend")); url != "" {
		settings.BackendURL = url
	}

	services, err := bootstrap.NewServices(settings, env, bootstrap.NewLogger(env))
	if err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}
	return &AppContext{Services: services, Store: store}, nil
}

// Close releases the resources held by the services.
func (ac *AppContext) Close() {
	if ac.Services != nil {
		ac.Services.Close()
	}
}

// Logger returns the configured logger.
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Services != nil {
		return ac.Services.Logger
	}
	return slog.Default()
}

// Session returns the run named by --session, or the current run.
func (ac *AppContext) Session(cmd *cli.Command) (*session.Context, error) {
	if id := strings.TrimSpace(cmd.String("session")); id != "" {
		return ac.Services.Sessions.Open(id), nil
	}
	return ac.Services.Sessions.Current()
}

// stdout returns the writer configured on the root command.
func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// stdin returns the reader configured on the root command.
func stdin(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}
