package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"study-buddy/internal/config"
	"study-buddy/internal/domain"
)

// ErrDiagnosticsFailed is returned when at least one check fails.
var ErrDiagnosticsFailed = errors.New("diagnostics reported failures")

// DoctorAction runs the startup checks and prints them as a table.
func DoctorAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	report := appCtx.Services.Diagnose(ctx)
	renderDiagnostics(stdout(cmd), report)
	if report.HasFailures {
		return ErrDiagnosticsFailed
	}
	return nil
}

func renderDiagnostics(out io.Writer, report domain.DiagnosticReport) {
	table := tablewriter.NewWriter(out)
	table.Header("Check", "Status", "Message", "Hint")
	for _, item := range report.Items {
		table.Append(item.Name, strings.ToUpper(string(item.Status)), item.Message, item.Hint)
	}
	table.Render()
}

// LoginAction authenticates against the backend and remembers the account.
func LoginAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	user, err := appCtx.Services.Backend.Login(ctx, cmd.String("email"), cmd.String("password"))
	if err != nil {
		return err
	}
	if err := appCtx.Services.Sessions.SaveUser(user); err != nil {
		return fmt.Errorf("remember user: %w", err)
	}

	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.Email
	}
	fmt.Fprintf(stdout(cmd), "Logged in as %s (%s)\n", name, user.Role)
	return nil
}

// SettingsAction prints the active settings and persists any overrides given.
func SettingsAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	settings := appCtx.Services.Settings
	changed := false
	if v := cmd.String("backend-url"); v != "" {
		settings.BackendURL = v
		changed = true
	}
	if v := cmd.String("export-dir"); v != "" {
		settings.ExportDir = v
		changed = true
	}
	if changed {
		settings = config.Normalize(settings)
		if err := appCtx.Store.Save(settings); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		appCtx.Logger().Info("settings saved", "backend_url", settings.BackendURL, "export_dir", settings.ExportDir)
	}

	table := tablewriter.NewWriter(stdout(cmd))
	table.Header("Setting", "Value")
	table.Append("Backend URL", settings.BackendURL)
	table.Append("Data directory", settings.DataDir)
	table.Append("Export directory", settings.ExportDir)
	table.Render()
	return nil
}
