package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"study-buddy/internal/backend"
	"study-buddy/internal/config"
	"study-buddy/internal/domain"
	"study-buddy/internal/jobs"
	"study-buddy/internal/platform/logger"
	"study-buddy/internal/session"
)

// fakeStore records saved settings for App tests.
type fakeStore struct {
	settings domain.Settings
	saves    int
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save remembers the last settings.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.settings = settings
	s.saves++
	return nil
}

// fakeBackend serves the processing API with scripted task progress.
type fakeBackend struct {
	statusCalls     atomic.Int32
	flashcardCalls  atomic.Int32
	mindMapCalls    atomic.Int32
	neverCompletes  bool
	remoteFailure   bool
	completedResult domain.Results
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, `{"error":"bad form"}`, http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("video"); err != nil {
			http.Error(w, `{"error":"No video file provided"}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"task_id": "task-1", "status": "uploaded"})
	})
	mux.HandleFunc("/youtube", func(w http.ResponseWriter, r *http.Request) {
		if b.remoteFailure {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Download failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"task_id": "task-yt", "status": "uploaded"})
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		n := b.statusCalls.Add(1)
		if b.neverCompletes || n < 2 {
			writeJSON(w, http.StatusOK, map[string]any{"status": "converting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "results": b.completedResult})
	})
	mux.HandleFunc("/generate_flashcards/", func(w http.ResponseWriter, r *http.Request) {
		b.flashcardCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "success",
			"flashcards": []domain.Flashcard{{Question: "What is AI?", Answer: "Machines that learn."}},
		})
	})
	mux.HandleFunc("/generate_mindmap/", func(w http.ResponseWriter, r *http.Request) {
		b.mindMapCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "mindmap": map[string]string{"name": "AI"}})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
	})
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"user":    domain.User{ID: "u1", FirstName: "Ada", Email: "ada@example.com", Role: "student"},
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// newTestApp wires an App against an in-process backend.
func newTestApp(t *testing.T, fb *fakeBackend) (*App, *fakeStore) {
	t.Helper()
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)

	root := t.TempDir()
	settings := domain.Settings{
		BackendURL: srv.URL,
		DataDir:    filepath.Join(root, "data"),
		ExportDir:  filepath.Join(root, "exports"),
	}
	env := config.Env{
		PollInterval:  5 * time.Millisecond,
		NavigateDelay: 5 * time.Millisecond,
		HTTPTimeout:   5 * time.Second,
	}

	services, err := NewServices(settings, env, logger.Discard())
	if err != nil {
		t.Fatalf("new services: %v", err)
	}
	store := &fakeStore{settings: settings}
	app := NewApp(services, store)
	t.Cleanup(func() { app.Shutdown(context.Background()) })
	return app, store
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("fake media bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

// TestUploadPollAndOpenResults walks one run from upload to export.
func TestUploadPollAndOpenResults(t *testing.T) {
	fb := &fakeBackend{completedResult: domain.Results{
		Transcript: domain.Transcript{Text: "hello", Segments: []domain.Segment{{Start: 0, End: 2, Text: "hello"}}},
		Summary:    "A short talk.",
		Notes:      "# Notes\n\n- one\n- two\n",
	}}
	app, _ := newTestApp(t, fb)

	res, err := app.UploadFile(writeSource(t, "lecture.mp4"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.TaskID != "task-1" || res.Media == nil {
		t.Fatalf("upload result = %+v", res)
	}

	job, err := app.StartPolling()
	if err != nil {
		t.Fatalf("start polling: %v", err)
	}
	if job.TaskID != "task-1" || job.SourceName != "lecture.mp4" {
		t.Fatalf("job = %+v", job)
	}
	waitForEvent(t, app, jobs.EventTypeNavigate)

	if got := app.CurrentJob(); got.Status != domain.TaskStatusCompleted || got.Polling {
		t.Fatalf("job after completion = %+v", got)
	}

	view, err := app.OpenResults()
	if err != nil {
		t.Fatalf("open results: %v", err)
	}
	if !view.HasData || view.Summary != "A short talk." || view.SourceName != "lecture.mp4" {
		t.Fatalf("view = %+v", view)
	}
	if !strings.HasPrefix(view.MediaURL, "/media/") {
		t.Fatalf("media url = %q", view.MediaURL)
	}

	for i := 0; i < 2; i++ {
		if _, err := app.SelectView("flashcards"); err != nil {
			t.Fatalf("select flashcards: %v", err)
		}
		if _, err := app.SelectView("mindmap"); err != nil {
			t.Fatalf("select mindmap: %v", err)
		}
	}
	view, err = app.SelectView("transcript")
	if err != nil {
		t.Fatalf("select transcript: %v", err)
	}
	if fb.flashcardCalls.Load() != 2 || view.FlashcardsKey != 2 {
		t.Fatalf("flashcard fetches = %d, key = %d, want 2 and 2", fb.flashcardCalls.Load(), view.FlashcardsKey)
	}
	if fb.mindMapCalls.Load() != 1 || len(view.MindMap) == 0 {
		t.Fatalf("mind map fetches = %d, want 1", fb.mindMapCalls.Load())
	}

	path, err := app.ExportNotes("")
	if err != nil {
		t.Fatalf("export notes: %v", err)
	}
	if filepath.Base(path) != "document.pdf" {
		t.Fatalf("export path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat export: %v", err)
	}

	reply, err := app.SendChat("What is this about?")
	if err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if !strings.HasPrefix(reply.Content, "The discussion covers") {
		t.Fatalf("reply = %q", reply.Content)
	}
	if len(app.ChatHistory()) != 3 {
		t.Fatalf("chat history = %d messages, want 3", len(app.ChatHistory()))
	}
}

// TestStartPollingWithoutSession checks that nothing is polled without a task.
func TestStartPollingWithoutSession(t *testing.T) {
	fb := &fakeBackend{}
	app, _ := newTestApp(t, fb)

	if _, err := app.StartPolling(); !errors.Is(err, jobs.ErrNoTask) {
		t.Fatalf("start polling error = %v, want %v", err, jobs.ErrNoTask)
	}
	if fb.statusCalls.Load() != 0 {
		t.Fatalf("status calls = %d, want 0", fb.statusCalls.Load())
	}
}

// TestStartPollingReplacesActiveWatch checks single-watch guard.
func TestStartPollingReplacesActiveWatch(t *testing.T) {
	fb := &fakeBackend{neverCompletes: true}
	app, _ := newTestApp(t, fb)

	if _, err := app.UploadFile(writeSource(t, "clip.mp4")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := app.StartPolling(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := app.StartPolling(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !app.CurrentJob().Polling {
		t.Fatal("expected polling after restart")
	}

	app.StopPolling()
	if app.CurrentJob().Polling {
		t.Fatal("expected polling to stop")
	}
}

// TestSubmitURLFailureForgetsSession checks error path for remote submissions.
func TestSubmitURLFailureForgetsSession(t *testing.T) {
	fb := &fakeBackend{remoteFailure: true}
	app, _ := newTestApp(t, fb)

	if _, err := app.UploadFile(writeSource(t, "clip.mp4")); err != nil {
		t.Fatalf("upload: %v", err)
	}

	_, err := app.SubmitURL("https://youtu.be/abc")
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Download failed" {
		t.Fatalf("submit error = %v", err)
	}
	if _, err := app.services.Sessions.Current(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("current session error = %v, want %v", err, session.ErrNoSession)
	}
}

// TestResultsBindingsRequireOpenPage checks guards before OpenResults.
func TestResultsBindingsRequireOpenPage(t *testing.T) {
	app, _ := newTestApp(t, &fakeBackend{})

	if _, err := app.SelectView("notes"); !errors.Is(err, ErrNoResultsOpen) {
		t.Fatalf("select error = %v", err)
	}
	if _, err := app.ExportNotes(""); !errors.Is(err, ErrNoResultsOpen) {
		t.Fatalf("export error = %v", err)
	}
	if _, err := app.SendChat("hi"); !errors.Is(err, ErrNoResultsOpen) {
		t.Fatalf("chat error = %v", err)
	}
	if _, err := app.OpenResults(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("open results error = %v", err)
	}
}

// TestSaveSettingsAndLogin checks settings persistence and account storage.
func TestSaveSettingsAndLogin(t *testing.T) {
	app, store := newTestApp(t, &fakeBackend{})
	current := app.GetSettings()

	current.ExportDir = "  " + filepath.Join(t.TempDir(), "pdfs") + "  "
	saved, err := app.SaveSettings(current)
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if store.saves != 1 || saved.ExportDir != strings.TrimSpace(current.ExportDir) {
		t.Fatalf("saved = %+v, saves = %d", saved, store.saves)
	}
	if app.GetDiagnostics().HasFailures {
		t.Fatalf("diagnostics failed: %+v", app.GetDiagnostics().Items)
	}

	user, err := app.Login("ada@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	remembered, ok := app.CurrentUser()
	if !ok || remembered.ID != user.ID || remembered.Email != "ada@example.com" {
		t.Fatalf("remembered user = %+v, %v", remembered, ok)
	}
}

// TestReopenResultsReleasesMedia checks that reopening a run whose handle
// expired keeps a single live handle.
func TestReopenResultsReleasesMedia(t *testing.T) {
	app, _ := newTestApp(t, &fakeBackend{})

	res, err := app.UploadFile(writeSource(t, "lecture.mp4"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	app.services.Media.Close()

	for i := 0; i < 5; i++ {
		var view ResultsView
		if i%2 == 0 {
			view, err = app.OpenResults()
		} else {
			view, err = app.OpenSession(res.Session.ID())
		}
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if view.MediaURL == "" {
			t.Fatalf("open %d: no media url", i)
		}
		if n := app.services.Media.Len(); n != 1 {
			t.Fatalf("open %d: live handles = %d, want 1", i, n)
		}
	}

	app.closePage()
	if n := app.services.Media.Len(); n != 0 {
		t.Fatalf("live handles after close = %d, want 0", n)
	}
}

// TestSaveSettingsWhilePolling checks that settings can change while a task is watched.
func TestSaveSettingsWhilePolling(t *testing.T) {
	fb := &fakeBackend{neverCompletes: true}
	app, store := newTestApp(t, fb)

	if _, err := app.UploadFile(writeSource(t, "clip.mp4")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := app.StartPolling(); err != nil {
		t.Fatalf("start polling: %v", err)
	}

	settings := app.GetSettings()
	for i := 0; i < 20; i++ {
		if _, err := app.SaveSettings(settings); err != nil {
			t.Fatalf("save settings: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for fb.statusCalls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fb.statusCalls.Load() < 3 {
		t.Fatalf("status calls = %d, want polling to continue", fb.statusCalls.Load())
	}
	if store.saves != 20 {
		t.Fatalf("saves = %d, want 20", store.saves)
	}
	app.StopPolling()
}

// TestStartOverReturnsToIdle checks the recovery action after a failed or
// abandoned run.
func TestStartOverReturnsToIdle(t *testing.T) {
	fb := &fakeBackend{neverCompletes: true}
	app, _ := newTestApp(t, fb)

	if _, err := app.UploadFile(writeSource(t, "clip.mp4")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := app.StartPolling(); err != nil {
		t.Fatalf("start polling: %v", err)
	}
	if _, err := app.OpenResults(); err != nil {
		t.Fatalf("open results: %v", err)
	}

	if err := app.StartOver(); err != nil {
		t.Fatalf("start over: %v", err)
	}

	job := app.CurrentJob()
	if job.Polling || job.TaskID != "" || job.Step != -1 {
		t.Fatalf("job after start over = %+v", job)
	}
	if _, err := app.SelectView("notes"); !errors.Is(err, ErrNoResultsOpen) {
		t.Fatalf("select error = %v, want %v", err, ErrNoResultsOpen)
	}
	if _, err := app.StartPolling(); !errors.Is(err, jobs.ErrNoTask) {
		t.Fatalf("start polling error = %v, want %v", err, jobs.ErrNoTask)
	}
}

// waitForEvent polls until an event of the given type was published or times out.
func waitForEvent(t *testing.T, app *App, want jobs.EventType) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, event := range app.JobEvents(0) {
			if event.Type == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event type %s not found in %+v", want, app.JobEvents(0))
}
