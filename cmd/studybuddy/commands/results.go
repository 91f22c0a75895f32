package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"study-buddy/internal/chat"
	"study-buddy/internal/domain"
	"study-buddy/internal/results"
)

// ErrNoResults is returned when the selected run has no stored payload.
var ErrNoResults = errors.New("no results stored for this session; run `studybuddy watch` first")

// openPage loads the results page of the selected run.
func openPage(appCtx *AppContext, cmd *cli.Command) (*results.Page, error) {
	sc, err := appCtx.Session(cmd)
	if err != nil {
		return nil, err
	}
	page := results.Open(sc, appCtx.Services.Media, appCtx.Services.Backend, appCtx.Logger())
	if !page.HasData() {
		page.Close()
		return nil, ErrNoResults
	}
	return page, nil
}

// ResultsAction prints one view of a finished run.
func ResultsAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	page, err := openPage(appCtx, cmd)
	if err != nil {
		return err
	}
	defer page.Close()

	view := results.View(strings.ToLower(strings.TrimSpace(cmd.String("view"))))
	if view == results.ViewChat {
		return errors.New("use `studybuddy chat` for the assistant")
	}
	if err := page.Select(ctx, view); err != nil {
		return err
	}

	out := stdout(cmd)
	fmt.Fprintf(out, "%s\n\n", page.SourceName())
	switch view {
	case results.ViewTranscript:
		renderSegments(out, page.Segments())
	case results.ViewNotes:
		fmt.Fprintf(out, "Summary\n\n%s\n\nNotes\n\n%s\n", page.Summary(), page.Notes())
	case results.ViewFlashcards:
		renderFlashcards(out, page.Flashcards())
	case results.ViewMindMap:
		return renderMindMap(out, page.MindMap())
	}
	return nil
}

// renderSegments prints the transcript as a time-indexed table.
func renderSegments(out io.Writer, segments []domain.Segment) {
	table := tablewriter.NewWriter(out)
	table.Header("Start", "End", "Text")
	for _, seg := range segments {
		table.Append(results.FormatTimestamp(seg.Start), results.FormatTimestamp(seg.End), seg.Text)
	}
	table.Render()
}

// renderFlashcards prints one row per card.
func renderFlashcards(out io.Writer, cards []domain.Flashcard) {
	table := tablewriter.NewWriter(out)
	table.Header("#", "Question", "Answer")
	for i, card := range cards {
		table.Append(fmt.Sprintf("%d", i+1), card.Question, card.Answer)
	}
	table.Render()
}

func renderMindMap(out io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		fmt.Fprintln(out, "No mind map available.")
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("format mind map: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

// ExportAction writes the notes PDF of a run.
func ExportAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	page, err := openPage(appCtx, cmd)
	if err != nil {
		return err
	}
	defer page.Close()

	path := strings.TrimSpace(cmd.String("out"))
	if path == "-" {
		return page.ExportNotes(stdout(cmd))
	}
	if path == "" {
		path = filepath.Join(appCtx.Services.Settings.ExportDir, results.DefaultExportName)
	}
	written, err := page.ExportNotesFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(cmd), "Notes exported to %s\n", written)
	return nil
}

// ChatAction sends each --message, or each stdin line, to the assistant.
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	out := stdout(cmd)
	conversation := chat.NewConversation(appCtx.Services.Env.ChatDelay, appCtx.Logger())
	fmt.Fprintf(out, "assistant: %s\n", chat.Greeting)

	send := func(input string) error {
		reply, ok, err := conversation.Send(input)
		if err != nil || !ok {
			return err
		}
		fmt.Fprintf(out, "assistant: %s\n", reply.Content)
		return nil
	}

	if messages := cmd.StringSlice("message"); len(messages) > 0 {
		for _, m := range messages {
			fmt.Fprintf(out, "you: %s\n", m)
			if err := send(m); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(stdin(cmd))
	for scanner.Scan() {
		if err := send(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// PlayAction serves the run's source media until interrupted.
func PlayAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	ln, err := net.Listen("tcp", cmd.String("addr"))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	appCtx.Services.Media.SetBaseURL("http://" + ln.Addr().String())

	sc, err := appCtx.Session(cmd)
	if err != nil {
		ln.Close()
		return err
	}
	page := results.Open(sc, appCtx.Services.Media, appCtx.Services.Backend, appCtx.Logger())
	defer page.Close()
	h, ok := page.Media()
	if !ok {
		ln.Close()
		if url := page.RemoteURL(); url != "" {
			return fmt.Errorf("this run was submitted from %s; open it there", url)
		}
		return errors.New("no local media for this session")
	}

	srv := &http.Server{
		Handler:           appCtx.Services.Media.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(stdout(cmd), "Serving %s at %s\n", page.SourceName(), h.URL)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve media: %w", err)
	}
	return nil
}
