package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"study-buddy/internal/chat"
	"study-buddy/internal/config"
	"study-buddy/internal/domain"
	"study-buddy/internal/ingest"
	"study-buddy/internal/jobs"
	"study-buddy/internal/media"
	"study-buddy/internal/results"
	"study-buddy/internal/session"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrNoResultsOpen is returned by results bindings before OpenResults.
var ErrNoResultsOpen = errors.New("results page is not open")

var sourceDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Videos and PDFs",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v;*.mpeg;*.mpg;*.ogv;*.pdf",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var pdfDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "PDF documents",
		Pattern:     "*.pdf",
	},
}

// ResultsView is the results page state sent to the frontend.
type ResultsView struct {
	SessionID     string             `json:"sessionId"`
	TaskID        string             `json:"taskId"`
	SourceName    string             `json:"sourceName"`
	HasData       bool               `json:"hasData"`
	MediaKind     domain.MediaKind   `json:"mediaKind"`
	MediaURL      string             `json:"mediaUrl,omitempty"`
	RemoteURL     string             `json:"remoteUrl,omitempty"`
	Transcript    domain.Transcript  `json:"transcript"`
	Summary       string             `json:"summary"`
	Notes         string             `json:"notes"`
	Active        results.View       `json:"active"`
	FlashcardsKey int                `json:"flashcardsKey"`
	Flashcards    []domain.Flashcard `json:"flashcards"`
	MindMap       json.RawMessage    `json:"mindmap,omitempty"`
}

// App wires configuration, ingestion, polling, and UI runtime callbacks.
type App struct {
	services *Services

	Store       config.Store
	Diagnostics domain.DiagnosticReport
	assets      fs.FS

	mu         sync.Mutex
	watch      *jobs.Watch
	page       *results.Page
	pageID     string
	chat       *chat.Conversation
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	env, settings, store, err := LoadConfig(".env", "")
	if err != nil {
		return nil, err
	}

	services, err := NewServices(settings, env, NewLogger(env))
	if err != nil {
		return nil, err
	}

	app := NewApp(services, store)
	app.assets = assets
	app.Diagnostics = services.Diagnose(context.Background())
	return app, nil
}

// NewApp wraps already wired services.
func NewApp(services *Services, store config.Store) *App {
	return &App{services: services, Store: store}
}

// Run starts the Wails desktop application and binds backend methods.
// Media handles are served by the asset server fallback handler.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{Handler: a.services.Media.Handler()}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		mux := http.NewServeMux()
		mux.Handle(media.RoutePrefix, a.services.Media.Handler())
		mux.Handle("/", http.FileServer(http.Dir("./frontend")))
		assetOptions.Handler = mux
	}

	return wails.Run(&options.App{
		Title:       "Study Buddy",
		Width:       1280,
		Height:      820,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown stops polling and releases media handles.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	w := a.watch
	a.watch = nil
	a.runtimeCtx = nil
	a.mu.Unlock()

	if w != nil {
		w.Cancel()
	}
	a.closePage()
	a.services.Close()
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reruns the startup checks.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.services.Diagnose(context.Background())
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

// GetSettings returns the active settings.
func (a *App) GetSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.services.Settings
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// A new backend URL applies to requests made afterwards.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if a.Store != nil {
		if err := a.Store.Save(normalized); err != nil {
			return domain.Settings{}, fmt.Errorf("save settings: %w", err)
		}
	}

	a.mu.Lock()
	a.services.Settings = normalized
	a.mu.Unlock()
	a.services.Backend.SetBaseURL(normalized.BackendURL)

	a.RefreshDiagnostics()
	return normalized, nil
}

// PickSourceFile opens a native file dialog for video or PDF selection.
func (a *App) PickSourceFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select a video or PDF",
		Filters: sourceDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickExportDirectory opens a native directory picker for notes exports.
func (a *App) PickExportDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select export directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// UploadFile submits a local video or PDF.
func (a *App) UploadFile(path string) (ingest.Result, error) {
	a.StopPolling()
	return a.services.Ingester.SubmitFile(context.Background(), path)
}

// SubmitURL submits a remote video URL.
func (a *App) SubmitURL(url string) (ingest.Result, error) {
	a.StopPolling()
	return a.services.Ingester.SubmitRemote(context.Background(), url)
}

// StartPolling watches the current run's task. A previous watch is cancelled
// first, so only one poll loop is ever active.
func (a *App) StartPolling() (domain.Job, error) {
	sc, err := a.services.Sessions.Current()
	if err != nil {
		return domain.Job{}, jobs.ErrNoTask
	}

	a.StopPolling()
	w, err := a.services.Poller.Watch(context.Background(), sc)
	if err != nil {
		return domain.Job{}, err
	}

	a.mu.Lock()
	a.watch = w
	a.mu.Unlock()

	go a.forward(w)
	return a.CurrentJob(), nil
}

// StopPolling cancels the active watch, if any.
func (a *App) StopPolling() {
	a.mu.Lock()
	w := a.watch
	a.watch = nil
	a.mu.Unlock()

	if w != nil {
		w.Cancel()
		w.Wait()
	}
}

// StartOver returns to the upload screen: polling stops, the job display
// goes idle, the results page closes, and no run stays current.
func (a *App) StartOver() error {
	a.StopPolling()
	a.services.Poller.Manager().Reset()
	a.closePage()
	if err := a.services.Sessions.ClearCurrent(); err != nil {
		return fmt.Errorf("clear current session: %w", err)
	}
	return nil
}

// CurrentJob returns current task metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.services.Poller.Manager().Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.services.Poller.Events().Since(sinceSeq)
}

// forward pushes watch updates to the frontend until the watch ends.
func (a *App) forward(w *jobs.Watch) {
	for event := range w.Updates() {
		a.emit("job:event", event)
	}

	a.mu.Lock()
	if a.watch == w {
		a.watch = nil
	}
	a.mu.Unlock()
}

// OpenResults loads the results page of the current run and starts a new chat.
func (a *App) OpenResults() (ResultsView, error) {
	sc, err := a.services.Sessions.Current()
	if err != nil {
		return ResultsView{}, err
	}
	return a.openResults(sc), nil
}

// OpenSession loads the results page of a specific run.
func (a *App) OpenSession(sessionID string) (ResultsView, error) {
	if strings.TrimSpace(sessionID) == "" {
		return ResultsView{}, session.ErrNoSession
	}
	return a.openResults(a.services.Sessions.Open(sessionID)), nil
}

func (a *App) openResults(sc *session.Context) ResultsView {
	// The previous page goes first so a handle it registered is not resolved
	// by the new page and then released underneath it.
	a.closePage()
	page := results.Open(sc, a.services.Media, a.services.Backend, a.services.Logger)
	conversation := chat.NewConversation(a.services.Env.ChatDelay, a.services.Logger)

	a.mu.Lock()
	a.page = page
	a.pageID = sc.ID()
	a.chat = conversation
	a.mu.Unlock()

	return a.view(page, sc.ID())
}

// SelectView activates a results tab and returns the refreshed state.
func (a *App) SelectView(view string) (ResultsView, error) {
	page, id, err := a.currentPage()
	if err != nil {
		return ResultsView{}, err
	}
	if err := page.Select(context.Background(), results.View(view)); err != nil {
		return a.view(page, id), err
	}
	return a.view(page, id), nil
}

// ExportNotes writes the notes PDF. An empty path exports into the
// configured export directory.
func (a *App) ExportNotes(path string) (string, error) {
	page, _, err := a.currentPage()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(a.GetSettings().ExportDir, results.DefaultExportName)
	}
	return page.ExportNotesFile(path)
}

// SaveNotesAs asks for a destination and exports the notes PDF there.
func (a *App) SaveNotesAs() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:            "Save notes",
		DefaultDirectory: a.GetSettings().ExportDir,
		DefaultFilename:  results.DefaultExportName,
		Filters:          pdfDialogFilter,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	return a.ExportNotes(path)
}

// OpenExportFolder opens the given path (or configured export dir) in file manager.
func (a *App) OpenExportFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.GetSettings().ExportDir
	}
	if target == "" {
		return fmt.Errorf("export path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve export path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// SendChat sends one message and returns the scripted reply.
func (a *App) SendChat(input string) (chat.Message, error) {
	a.mu.Lock()
	conversation := a.chat
	a.mu.Unlock()
	if conversation == nil {
		return chat.Message{}, ErrNoResultsOpen
	}

	reply, _, err := conversation.Send(input)
	return reply, err
}

// ChatHistory returns the messages of the open results page.
func (a *App) ChatHistory() []chat.Message {
	a.mu.Lock()
	conversation := a.chat
	a.mu.Unlock()
	if conversation == nil {
		return nil
	}
	return conversation.Messages()
}

// FormatTimestamp renders a playback position for the player controls.
func (a *App) FormatTimestamp(seconds float64) string {
	return results.FormatTimestamp(seconds)
}

// Login authenticates and remembers the account.
func (a *App) Login(email, password string) (domain.User, error) {
	user, err := a.services.Backend.Login(context.Background(), email, password)
	if err != nil {
		a.services.Logger.Warn("login failed", "email", email, "error", err)
		return domain.User{}, err
	}
	if err := a.services.Sessions.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("remember user: %w", err)
	}
	return user, nil
}

// CurrentUser returns the remembered account, if any.
func (a *App) CurrentUser() (domain.User, bool) {
	return a.services.Sessions.User()
}

// closePage releases the open results page and its chat.
func (a *App) closePage() {
	a.mu.Lock()
	page := a.page
	a.page = nil
	a.pageID = ""
	a.chat = nil
	a.mu.Unlock()

	if page != nil {
		page.Close()
	}
}

func (a *App) currentPage() (*results.Page, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.page == nil {
		return nil, "", ErrNoResultsOpen
	}
	return a.page, a.pageID, nil
}

func (a *App) view(page *results.Page, sessionID string) ResultsView {
	v := ResultsView{
		SessionID:     sessionID,
		TaskID:        page.TaskID(),
		SourceName:    page.SourceName(),
		HasData:       page.HasData(),
		MediaKind:     page.MediaKind(),
		RemoteURL:     page.RemoteURL(),
		Transcript:    page.Transcript(),
		Summary:       page.Summary(),
		Notes:         page.Notes(),
		Active:        page.Active(),
		FlashcardsKey: page.FlashcardsKey(),
		Flashcards:    page.Flashcards(),
		MindMap:       page.MindMap(),
	}
	if h, ok := page.Media(); ok {
		v.MediaURL = h.URL
	}
	return v
}

// emit sends a runtime push notification when the UI is attached.
func (a *App) emit(name string, data interface{}) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, data)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
