package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"study-buddy/internal/domain"
	"study-buddy/internal/platform/logger"
)

// ErrNoSession is returned when no processing run has been started yet.
var ErrNoSession = errors.New("no active session")

const (
	keyCurrent = "current"
	keyUser    = "user"

	keyTaskID       = "taskId"
	keyFilename     = "filename"
	keyFileType     = "fileType"
	keyUploadedFile = "uploadedFile"
	keyFileURL      = "fileURL"
	keyResults      = "processingResults"
	keyRemoteURL    = "youtubeUrl"

	tabKeyVideoURL = "videoUrl"
)

// Manager creates and resolves processing-run contexts over a durable store
// and a tab-scoped store.
type Manager struct {
	store  Store
	tab    Store
	logger *slog.Logger
}

// NewManager wires the two stores. A nil tab store gets a fresh MemoryStore.
func NewManager(store, tab Store, l *slog.Logger) *Manager {
	if tab == nil {
		tab = NewMemoryStore()
	}
	return &Manager{store: store, tab: tab, logger: logger.OrDefault(l)}
}

// New starts a fresh run and makes it current.
func (m *Manager) New() (*Context, error) {
	id := uuid.NewString()
	if err := m.store.Set(keyCurrent, id); err != nil {
		return nil, fmt.Errorf("set current session: %w", err)
	}
	return m.Open(id), nil
}

// Current returns the context of the most recent run.
func (m *Manager) Current() (*Context, error) {
	id, ok := m.store.Get(keyCurrent)
	if !ok || id == "" {
		return nil, ErrNoSession
	}
	return m.Open(id), nil
}

// Open returns the context for a known run id.
func (m *Manager) Open(id string) *Context {
	return &Context{id: id, store: m.store, tab: m.tab, logger: m.logger}
}

// ClearCurrent forgets the current run so nothing can resume a stale task.
func (m *Manager) ClearCurrent() error {
	return m.store.Delete(keyCurrent)
}

// SaveUser stores the logged-in account.
func (m *Manager) SaveUser(user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return m.store.Set(keyUser, string(data))
}

// User returns the stored account, if any.
func (m *Manager) User() (domain.User, bool) {
	raw, ok := m.store.Get(keyUser)
	if !ok {
		return domain.User{}, false
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		m.logger.Warn("discard unreadable user record", "error", err)
		return domain.User{}, false
	}
	return user, true
}

// Context is the state of one processing run. Keys are namespaced by the run
// id, so two runs never overwrite each other.
type Context struct {
	id     string
	store  Store
	tab    Store
	logger *slog.Logger
}

// ID returns the run identifier.
func (c *Context) ID() string {
	return c.id
}

func (c *Context) key(name string) string {
	return c.id + "/" + name
}

func (c *Context) get(name string) string {
	v, _ := c.store.Get(c.key(name))
	return v
}

// TaskID returns the backend task identifier, or "" when none is stored.
func (c *Context) TaskID() string {
	return c.get(keyTaskID)
}

// SourceName returns the human-readable name of the ingested source.
func (c *Context) SourceName() string {
	return c.get(keyFilename)
}

// MediaKind returns the persisted media kind; video when unset.
func (c *Context) MediaKind() domain.MediaKind {
	if c.get(keyFileType) == string(domain.MediaKindPDF) {
		return domain.MediaKindPDF
	}
	return domain.MediaKindVideo
}

// SetTask records a successful ingestion.
func (c *Context) SetTask(taskID, sourceName string, kind domain.MediaKind) error {
	if taskID == "" {
		return fmt.Errorf("task id is empty")
	}
	for name, value := range map[string]string{
		keyTaskID:   taskID,
		keyFilename: sourceName,
		keyFileType: string(kind),
	} {
		if err := c.store.Set(c.key(name), value); err != nil {
			return fmt.Errorf("persist %s: %w", name, err)
		}
	}
	return nil
}

// RemoteURL returns the submitted video URL for remote sources.
func (c *Context) RemoteURL() string {
	return c.get(keyRemoteURL)
}

// SetRemoteURL stores the submitted video URL; "" removes it.
func (c *Context) SetRemoteURL(url string) error {
	if url == "" {
		return c.store.Delete(c.key(keyRemoteURL))
	}
	return c.store.Set(c.key(keyRemoteURL), url)
}

// MediaRef returns the durable reference to the selected binary.
func (c *Context) MediaRef() string {
	return c.get(keyUploadedFile)
}

// MediaURL returns the playable URL, preferring the tab-scoped value.
func (c *Context) MediaURL() string {
	if v, ok := c.tab.Get(c.key(tabKeyVideoURL)); ok && v != "" {
		return v
	}
	return c.get(keyFileURL)
}

// SetMedia stores the binary reference durably and the playable URL in both stores.
func (c *Context) SetMedia(ref, url string) error {
	if err := c.store.Set(c.key(keyUploadedFile), ref); err != nil {
		return fmt.Errorf("persist media reference: %w", err)
	}
	if err := c.store.Set(c.key(keyFileURL), url); err != nil {
		return fmt.Errorf("persist media url: %w", err)
	}
	return c.tab.Set(c.key(tabKeyVideoURL), url)
}

// ClearMedia drops every media reference of the run.
func (c *Context) ClearMedia() error {
	if err := c.store.Delete(c.key(keyUploadedFile)); err != nil {
		return err
	}
	if err := c.store.Delete(c.key(keyFileURL)); err != nil {
		return err
	}
	return c.tab.Delete(c.key(tabKeyVideoURL))
}

// SaveResults serializes the payload and verifies it can be read back.
func (c *Context) SaveResults(results domain.Results) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := c.store.Set(c.key(keyResults), string(data)); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	if stored, ok := c.store.Get(c.key(keyResults)); !ok || stored == "" {
		return fmt.Errorf("persist results: stored payload missing after write")
	}
	return nil
}

// LoadResults returns the stored payload. A missing or unreadable payload
// yields ok == false and an empty Results.
func (c *Context) LoadResults() (domain.Results, bool) {
	raw, ok := c.store.Get(c.key(keyResults))
	if !ok || raw == "" {
		c.logger.Warn("no results stored", "session", c.id)
		return domain.Results{}, false
	}

	var results domain.Results
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		c.logger.Error("parse stored results", "session", c.id, "error", err)
		return domain.Results{}, false
	}
	return results, true
}
