package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"study-buddy/internal/domain"
	"study-buddy/internal/ingest"
	"study-buddy/internal/jobs"
)

// UploadAction submits a file or remote URL and optionally follows processing.
func UploadAction(ctx context.Context, cmd *cli.Command) error {
	file := strings.TrimSpace(cmd.String("file"))
	url := strings.TrimSpace(cmd.String("url"))
	if (file == "") == (url == "") {
		return errors.New("exactly one of --file or --url is required")
	}

	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var res ingest.Result
	if file != "" {
		res, err = appCtx.Services.Ingester.SubmitFile(ctx, file)
	} else {
		res, err = appCtx.Services.Ingester.SubmitRemote(ctx, url)
	}
	if err != nil {
		return err
	}

	out := stdout(cmd)
	fmt.Fprintf(out, "Submitted %s\n", res.Source.Name)
	fmt.Fprintf(out, "  task:    %s\n", res.TaskID)
	fmt.Fprintf(out, "  session: %s\n", res.Session.ID())
	if res.Cached {
		fmt.Fprintln(out, "  the backend already processed this source")
	}

	if !cmd.Bool("watch") {
		return nil
	}
	return watch(ctx, appCtx, out)
}

// WatchAction follows processing of the current run until it finishes.
func WatchAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return watch(ctx, appCtx, stdout(cmd))
}

func watch(ctx context.Context, appCtx *AppContext, out io.Writer) error {
	sc, err := appCtx.Services.Sessions.Current()
	if err != nil {
		return err
	}

	w, err := appCtx.Services.Poller.Watch(ctx, sc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %s (task %s)\n", sc.SourceName(), w.TaskID())

	var last domain.TaskStatus
	for event := range w.Updates() {
		if event.Type == jobs.EventTypeStatus && event.Status == last {
			continue
		}
		printEvent(out, event)
		if event.Type == jobs.EventTypeStatus {
			last = event.Status
		}
	}

	outcome := w.Wait()
	switch outcome.Kind {
	case jobs.OutcomeCompleted:
		fmt.Fprintf(out, "Done. Run `studybuddy results --session %s` to study it.\n", sc.ID())
		return nil
	case jobs.OutcomeCancelled:
		return ctx.Err()
	default:
		return fmt.Errorf("processing %s: %s", outcome.Kind, outcome.Message)
	}
}

func printEvent(out io.Writer, event jobs.Event) {
	switch event.Type {
	case jobs.EventTypeStatus:
		steps := domain.Steps()
		if i := event.Status.StepIndex(); i >= 0 {
			fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(steps), steps[i].Name)
		}
	case jobs.EventTypeError:
		if event.Terminal {
			fmt.Fprintf(out, "error: %s\n", event.Message)
		} else {
			fmt.Fprintf(out, "  warning: %s\n", event.Message)
		}
	}
}
