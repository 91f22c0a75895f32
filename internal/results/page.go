package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"study-buddy/internal/domain"
	"study-buddy/internal/media"
	"study-buddy/internal/platform/logger"
	"study-buddy/internal/session"
)

// View is one tab of the results page.
type View string

const (
	ViewTranscript View = "transcript"
	ViewNotes      View = "notes"
	ViewChat       View = "chat"
	ViewFlashcards View = "flashcards"
	ViewMindMap    View = "mindmap"
)

// ErrUnknownView is returned by Select for views the page does not have.
var ErrUnknownView = errors.New("unknown view")

// ErrNoTask is returned when a view needs the backend but no task id is stored.
var ErrNoTask = errors.New("no task id stored")

// Fetcher loads the on-demand study aids for a task.
type Fetcher interface {
	GenerateFlashcards(ctx context.Context, taskID string) ([]domain.Flashcard, error)
	GenerateMindMap(ctx context.Context, taskID string) (json.RawMessage, error)
}

// MediaResolver resolves and re-issues playable handles.
type MediaResolver interface {
	Register(path string, kind domain.MediaKind) (media.Handle, error)
	Resolve(id string) (media.Handle, error)
	Release(id string) bool
}

// Page is the presentation state of one processing run's results.
type Page struct {
	session  *session.Context
	fetcher  Fetcher
	logger   *slog.Logger
	registry MediaResolver

	results domain.Results
	hasData bool
	handle  *media.Handle
	// owned is set when the page registered handle itself.
	owned bool

	mu            sync.Mutex
	active        View
	flashcardsKey int
	flashcards    []domain.Flashcard
	mindMap       json.RawMessage
	mindMapLoaded bool
}

// Open reads the stored payload once and resolves the media handle.
func Open(sc *session.Context, registry MediaResolver, fetcher Fetcher, l *slog.Logger) *Page {
	p := &Page{
		session:  sc,
		fetcher:  fetcher,
		logger:   logger.OrDefault(l),
		registry: registry,
		active:   ViewTranscript,
	}
	p.results, p.hasData = sc.LoadResults()
	p.flashcards = p.results.Flashcards
	p.handle = p.resolveMedia(registry)
	return p
}

// resolveMedia finds the live handle for the run, re-registering the stored
// file reference when the previous handle no longer exists.
func (p *Page) resolveMedia(registry MediaResolver) *media.Handle {
	if registry == nil {
		return nil
	}
	if id := media.IDFromURL(p.session.MediaURL()); id != "" {
		if h, err := registry.Resolve(id); err == nil {
			return &h
		}
	}

	ref := p.session.MediaRef()
	if ref == "" {
		return nil
	}
	h, err := registry.Register(ref, p.session.MediaKind())
	if err != nil {
		p.logger.Warn("media not available", "session", p.session.ID(), "path", ref, "error", err)
		return nil
	}
	if err := p.session.SetMedia(h.Path, h.URL); err != nil {
		p.logger.Warn("persist media handle", "session", p.session.ID(), "error", err)
	}
	p.owned = true
	return &h
}

// Close releases the media handle if this page registered it. Handles that
// were already live when the page opened belong to whoever registered them.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.owned || p.handle == nil || p.registry == nil {
		return
	}
	p.registry.Release(p.handle.ID)
	p.owned = false
}

// HasData reports whether a results payload was found.
func (p *Page) HasData() bool {
	return p.hasData
}

// MediaAvailable reports whether the uploaded source can be shown.
func (p *Page) MediaAvailable() bool {
	return p.handle != nil
}

// Media returns the playable handle of the uploaded source.
func (p *Page) Media() (media.Handle, bool) {
	if p.handle == nil {
		return media.Handle{}, false
	}
	return *p.handle, true
}

// MediaKind returns how the uploaded source is rendered.
func (p *Page) MediaKind() domain.MediaKind {
	return p.session.MediaKind()
}

// SourceName returns the title shown above the results, "video" when unknown.
func (p *Page) SourceName() string {
	if name := p.session.SourceName(); name != "" {
		return name
	}
	return "video"
}

// RemoteURL returns the submitted video URL for remote sources.
func (p *Page) RemoteURL() string {
	return p.session.RemoteURL()
}

// TaskID returns the backend task of the run.
func (p *Page) TaskID() string {
	return p.session.TaskID()
}

func (p *Page) Transcript() domain.Transcript { return p.results.Transcript }
func (p *Page) Segments() []domain.Segment    { return p.results.Transcript.Segments }
func (p *Page) Summary() string               { return p.results.Summary }
func (p *Page) Notes() string                 { return p.results.Notes }

// Active returns the selected view.
func (p *Page) Active() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// FlashcardsKey counts flashcard activations; each one is a fresh load.
func (p *Page) FlashcardsKey() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flashcardsKey
}

// Flashcards returns the most recently loaded cards.
func (p *Page) Flashcards() []domain.Flashcard {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Flashcard(nil), p.flashcards...)
}

// MindMap returns the cached mind map, or nil before it was loaded.
func (p *Page) MindMap() json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mindMap
}

// Select activates view. Flashcards are fetched again on every activation;
// the mind map is fetched on first activation and cached.
func (p *Page) Select(ctx context.Context, view View) error {
	switch view {
	case ViewTranscript, ViewNotes, ViewChat:
		p.setActive(view)
		return nil

	case ViewFlashcards:
		p.mu.Lock()
		p.active = view
		p.flashcardsKey++
		p.mu.Unlock()
		return p.loadFlashcards(ctx)

	case ViewMindMap:
		p.setActive(view)
		return p.loadMindMap(ctx)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
}

func (p *Page) setActive(view View) {
	p.mu.Lock()
	p.active = view
	p.mu.Unlock()
}

func (p *Page) loadFlashcards(ctx context.Context) error {
	taskID := p.TaskID()
	if taskID == "" || p.fetcher == nil {
		return ErrNoTask
	}
	cards, err := p.fetcher.GenerateFlashcards(ctx, taskID)
	if err != nil {
		p.logger.Error("load flashcards", "task_id", taskID, "error", err)
		return fmt.Errorf("load flashcards: %w", err)
	}
	p.mu.Lock()
	p.flashcards = cards
	p.mu.Unlock()
	return nil
}

func (p *Page) loadMindMap(ctx context.Context) error {
	p.mu.Lock()
	loaded := p.mindMapLoaded
	p.mu.Unlock()
	if loaded {
		return nil
	}

	taskID := p.TaskID()
	if taskID == "" || p.fetcher == nil {
		return ErrNoTask
	}
	mindMap, err := p.fetcher.GenerateMindMap(ctx, taskID)
	if err != nil {
		p.logger.Error("load mind map", "task_id", taskID, "error", err)
		return fmt.Errorf("load mind map: %w", err)
	}
	p.mu.Lock()
	p.mindMap = mindMap
	p.mindMapLoaded = true
	p.mu.Unlock()
	return nil
}

// ExportNotes writes the notes as a PDF to w.
func (p *Page) ExportNotes(w io.Writer) error {
	var buf bytes.Buffer
	if err := RenderNotesPDF(&buf, p.SourceName(), p.Notes()); err != nil {
		p.logger.Error("export notes", "session", p.session.ID(), "error", err)
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// ExportNotesFile writes the notes as a PDF and returns the written path.
// An empty path or a directory gets the default file name.
func (p *Page) ExportNotesFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultExportName
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultExportName)
	}

	if err := WriteNotesPDF(path, p.SourceName(), p.Notes()); err != nil {
		p.logger.Error("export notes", "session", p.session.ID(), "path", path, "error", err)
		return "", err
	}
	p.logger.Info("notes exported", "session", p.session.ID(), "path", path)
	return path, nil
}

// FormatTimestamp renders a playback position as m:ss.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
