package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"study-buddy/internal/backend"
	"study-buddy/internal/domain"
	"study-buddy/internal/media"
	"study-buddy/internal/platform/logger"
	"study-buddy/internal/session"
)

// RemoteSourceName is the display name recorded for remote videos.
const RemoteSourceName = "YouTube Video"

// Backend is the subset of the backend client used for ingestion.
type Backend interface {
	UploadVideo(ctx context.Context, filename string, body io.Reader) (backend.Submission, error)
	UploadDocument(ctx context.Context, filename string, body io.Reader) (backend.Submission, error)
	SubmitRemote(ctx context.Context, videoURL string) (backend.Submission, error)
}

// MediaRegistry issues playable handles for local files.
type MediaRegistry interface {
	Register(path string, kind domain.MediaKind) (media.Handle, error)
	Release(id string) bool
}

// Source describes one accepted input.
type Source struct {
	Kind        domain.SourceKind `json:"kind"`
	Name        string            `json:"name"`
	Path        string            `json:"path,omitempty"`
	URL         string            `json:"url,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
}

// Result is the outcome of a successful ingestion.
type Result struct {
	Session *session.Context `json:"-"`
	TaskID  string           `json:"taskId"`
	Source  Source           `json:"source"`
	Media   *media.Handle    `json:"media,omitempty"`
	Cached  bool             `json:"cached"`
}

// Ingester submits one source per call and records the new task.
type Ingester struct {
	backend  Backend
	sessions *session.Manager
	media    MediaRegistry
	logger   *slog.Logger
	open     func(name string) (io.ReadCloser, error)
	detect   detector

	mu           sync.Mutex
	activeHandle string
}

// NewIngester wires the backend, session storage, and media registry.
func NewIngester(b Backend, sessions *session.Manager, registry MediaRegistry, l *slog.Logger) *Ingester {
	return &Ingester{
		backend:  b,
		sessions: sessions,
		media:    registry,
		logger:   logger.OrDefault(l),
		open:     func(name string) (io.ReadCloser, error) { return os.Open(name) },
		detect:   sniff,
	}
}

// SubmitFile classifies a local file and uploads it to the matching endpoint.
func (i *Ingester) SubmitFile(ctx context.Context, path string) (Result, error) {
	kind, contentType, err := classify(path, i.detect)
	if err != nil {
		return Result{}, err
	}

	src := Source{
		Kind:        kind,
		Name:        filepath.Base(path),
		Path:        path,
		ContentType: contentType,
	}

	f, err := i.open(path)
	if err != nil {
		return Result{}, &ValidationError{Field: "file", Message: fmt.Sprintf("Cannot read %s", src.Name), Err: err}
	}
	defer f.Close()

	var sub backend.Submission
	if kind == domain.SourceKindDocumentFile {
		sub, err = i.backend.UploadDocument(ctx, src.Name, f)
	} else {
		sub, err = i.backend.UploadVideo(ctx, src.Name, f)
	}
	if err != nil {
		i.forgetCurrent()
		i.logger.Error("upload failed", "source", src.Name, "kind", kind, "error", err)
		return Result{}, fmt.Errorf("upload failed: %w", err)
	}

	sc, err := i.record(sub.TaskID, src)
	if err != nil {
		return Result{}, err
	}

	result := Result{Session: sc, TaskID: sub.TaskID, Source: src, Cached: sub.Cached}
	handle, err := i.replaceHandle(path, kind.MediaKind())
	if err != nil {
		i.logger.Warn("media handle unavailable", "source", src.Name, "error", err)
		if clearErr := sc.ClearMedia(); clearErr != nil {
			i.logger.Warn("clear media reference", "error", clearErr)
		}
	} else {
		if err := sc.SetMedia(handle.Path, handle.URL); err != nil {
			return Result{}, fmt.Errorf("persist media handle: %w", err)
		}
		result.Media = &handle
	}

	i.logger.Info("source uploaded", "task_id", sub.TaskID, "source", src.Name, "kind", kind, "cached", sub.Cached)
	return result, nil
}

// SubmitRemote validates a remote video URL and submits it.
func (i *Ingester) SubmitRemote(ctx context.Context, rawURL string) (Result, error) {
	if err := ValidateRemoteURL(rawURL); err != nil {
		return Result{}, err
	}
	url := strings.TrimSpace(rawURL)
	src := Source{Kind: domain.SourceKindRemoteVideo, Name: RemoteSourceName, URL: url}

	sub, err := i.backend.SubmitRemote(ctx, url)
	if err != nil {
		i.forgetCurrent()
		i.logger.Error("remote submission failed", "url", url, "error", err)
		return Result{}, fmt.Errorf("failed to process YouTube URL: %w", err)
	}

	sc, err := i.record(sub.TaskID, src)
	if err != nil {
		return Result{}, err
	}
	if err := sc.SetRemoteURL(url); err != nil {
		return Result{}, fmt.Errorf("persist remote url: %w", err)
	}
	i.releaseActive()
	if err := sc.ClearMedia(); err != nil {
		i.logger.Warn("clear media reference", "error", err)
	}

	i.logger.Info("remote video submitted", "task_id", sub.TaskID, "url", url)
	return Result{Session: sc, TaskID: sub.TaskID, Source: src, Cached: sub.Cached}, nil
}

// Close releases the active media handle.
func (i *Ingester) Close() {
	i.releaseActive()
}

// record opens a new run and stores the task metadata.
func (i *Ingester) record(taskID string, src Source) (*session.Context, error) {
	sc, err := i.sessions.New()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := sc.SetTask(taskID, src.Name, src.Kind.MediaKind()); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}
	return sc, nil
}

// forgetCurrent drops the previous run pointer so a failed submission cannot
// be followed into a stale task.
func (i *Ingester) forgetCurrent() {
	if err := i.sessions.ClearCurrent(); err != nil {
		i.logger.Warn("clear current session", "error", err)
	}
}

// replaceHandle registers path and releases the handle it supersedes.
func (i *Ingester) replaceHandle(path string, kind domain.MediaKind) (media.Handle, error) {
	if i.media == nil {
		return media.Handle{}, fmt.Errorf("no media registry")
	}
	h, err := i.media.Register(path, kind)
	if err != nil {
		return media.Handle{}, err
	}

	i.mu.Lock()
	previous := i.activeHandle
	i.activeHandle = h.ID
	i.mu.Unlock()

	if previous != "" {
		i.media.Release(previous)
	}
	return h, nil
}

func (i *Ingester) releaseActive() {
	i.mu.Lock()
	previous := i.activeHandle
	i.activeHandle = ""
	i.mu.Unlock()

	if previous != "" && i.media != nil {
		i.media.Release(previous)
	}
}
