package media

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"study-buddy/internal/domain"
	"study-buddy/internal/platform/logger"
)

// RoutePrefix is the URL path under which handles are served.
const RoutePrefix = "/media/"

// ErrHandleNotFound is returned for unknown or released handles.
var ErrHandleNotFound = errors.New("media handle not found")

// Handle is a locally resolvable reference to a user-selected file.
type Handle struct {
	ID   string           `json:"id"`
	Path string           `json:"path"`
	Name string           `json:"name"`
	Kind domain.MediaKind `json:"kind"`
	URL  string           `json:"url"`
}

// Registry issues and releases media handles for the current process.
type Registry struct {
	baseURL string
	logger  *slog.Logger
	stat    func(string) (os.FileInfo, error)

	mu      sync.RWMutex
	handles map[string]Handle
}

// NewRegistry creates a registry whose URLs are prefixed with baseURL.
// An empty baseURL yields relative URLs for the desktop asset server.
func NewRegistry(baseURL string, l *slog.Logger) *Registry {
	return &Registry{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.OrDefault(l),
		stat:    os.Stat,
		handles: map[string]Handle{},
	}
}

// SetBaseURL changes the prefix used for handles registered afterwards.
func (r *Registry) SetBaseURL(baseURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseURL = strings.TrimRight(baseURL, "/")
}

// Register creates a handle for an existing regular file.
func (r *Registry) Register(path string, kind domain.MediaKind) (Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Handle{}, fmt.Errorf("resolve media path: %w", err)
	}
	info, err := r.stat(abs)
	if err != nil {
		return Handle{}, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		return Handle{}, fmt.Errorf("media path %s is a directory", abs)
	}

	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	h := Handle{
		ID:   id,
		Path: abs,
		Name: filepath.Base(abs),
		Kind: kind,
		URL:  r.baseURL + RoutePrefix + id,
	}
	r.handles[id] = h
	r.logger.Debug("media handle registered", "handle", id, "path", abs)
	return h, nil
}

// Resolve returns the live handle for id.
func (r *Registry) Resolve(id string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	if !ok {
		return Handle{}, ErrHandleNotFound
	}
	return h, nil
}

// Release drops a handle; it reports whether the handle was live.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[id]; !ok {
		return false
	}
	delete(r.handles, id)
	r.logger.Debug("media handle released", "handle", id)
	return true
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Close releases every handle.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = map[string]Handle{}
}

// IDFromURL extracts the handle id from a URL issued by any registry.
func IDFromURL(url string) string {
	i := strings.LastIndex(url, RoutePrefix)
	if i < 0 {
		return ""
	}
	return strings.Trim(url[i+len(RoutePrefix):], "/")
}

// Handler serves live handles under /media/:id and Prometheus metrics on /metrics.
func (r *Registry) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET(RoutePrefix+":id", r.handleMedia)
	engine.HEAD(RoutePrefix+":id", r.handleMedia)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}

func (r *Registry) handleMedia(c *gin.Context) {
	h, err := r.Resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media not available"})
		return
	}
	if _, err := r.stat(h.Path); err != nil {
		r.logger.Warn("media file vanished", "handle", h.ID, "path", h.Path, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "media not available"})
		return
	}
	c.File(h.Path)
}
