package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"study-buddy/internal/domain"
	"study-buddy/internal/platform/logger"
)

// ErrMissingTaskID is returned when a submission succeeds without a task id.
var ErrMissingTaskID = errors.New("backend response has no task_id")

// APIError is a non-success HTTP response from the backend.
type APIError struct {
	Op         string `json:"op"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Error formats backend failures for logs and UI.
func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.StatusCode)
}

// StatusResponse is the body of GET /status/{task_id}.
type StatusResponse struct {
	Status   domain.TaskStatus `json:"status"`
	Filename string            `json:"filename,omitempty"`
	Cached   bool              `json:"cached,omitempty"`
	Results  *domain.Results   `json:"results,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Submission is the body returned by the three ingestion endpoints.
type Submission struct {
	TaskID  string            `json:"task_id"`
	Message string            `json:"message,omitempty"`
	Status  domain.TaskStatus `json:"status,omitempty"`
	Cached  bool              `json:"cached,omitempty"`
}

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Client talks to the processing backend. It never retries.
type Client struct {
	HTTP   *http.Client
	logger *slog.Logger

	mu      sync.RWMutex
	baseURL string
}

// NewClient creates a client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration, l *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		logger:  logger.OrDefault(l),
	}
}

// BaseURL returns the backend address used for new requests.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL switches the backend address. Requests already in flight keep
// the address they started with.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// UploadVideo posts a local video as multipart field "video" to /upload.
func (c *Client) UploadVideo(ctx context.Context, filename string, body io.Reader) (Submission, error) {
	return c.upload(ctx, "upload video", "/upload", "video", filename, body)
}

// UploadDocument posts a local PDF as multipart field "pdf" to /upload-pdf.
func (c *Client) UploadDocument(ctx context.Context, filename string, body io.Reader) (Submission, error) {
	return c.upload(ctx, "upload document", "/upload-pdf", "pdf", filename, body)
}

// SubmitRemote posts a remote video URL to /youtube.
func (c *Client) SubmitRemote(ctx context.Context, videoURL string) (Submission, error) {
	payload, err := json.Marshal(map[string]string{"url": videoURL})
	if err != nil {
		return Submission{}, err
	}

	var out Submission
	if err := c.doJSON(ctx, "submit remote video", http.MethodPost, "/youtube", bytes.NewReader(payload), "application/json", &out); err != nil {
		return Submission{}, err
	}
	if out.TaskID == "" {
		return Submission{}, fmt.Errorf("submit remote video: %w", ErrMissingTaskID)
	}
	return out, nil
}

// Status fetches the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (StatusResponse, error) {
	var out StatusResponse
	if err := c.doJSON(ctx, "poll status", http.MethodGet, "/status/"+url.PathEscape(taskID), nil, "", &out); err != nil {
		return StatusResponse{}, err
	}
	return out, nil
}

// GenerateFlashcards asks the backend for a fresh flashcard set for a completed task.
func (c *Client) GenerateFlashcards(ctx context.Context, taskID string) ([]domain.Flashcard, error) {
	var out struct {
		Status     string             `json:"status"`
		Flashcards []domain.Flashcard `json:"flashcards"`
	}
	if err := c.doJSON(ctx, "generate flashcards", http.MethodPost, "/generate_flashcards/"+url.PathEscape(taskID), nil, "", &out); err != nil {
		return nil, err
	}
	return out.Flashcards, nil
}

// GenerateMindMap asks the backend for the mind map of a completed task.
// The map is returned as raw JSON because its shape belongs to the backend.
func (c *Client) GenerateMindMap(ctx context.Context, taskID string) (json.RawMessage, error) {
	var out struct {
		Status  string          `json:"status"`
		MindMap json.RawMessage `json:"mindmap"`
	}
	if err := c.doJSON(ctx, "generate mind map", http.MethodPost, "/generate_mindmap/"+url.PathEscape(taskID), nil, "", &out); err != nil {
		return nil, err
	}
	return out.MindMap, nil
}

// Health checks backend availability.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.doJSON(ctx, "health check", http.MethodGet, "/health", nil, "", &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

// Login authenticates against the account endpoint.
func (c *Client) Login(ctx context.Context, email, password string) (domain.User, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return domain.User{}, err
	}

	var out struct {
		Message string      `json:"message"`
		User    domain.User `json:"user"`
	}
	if err := c.doJSON(ctx, "login", http.MethodPost, "/api/login", bytes.NewReader(payload), "application/json", &out); err != nil {
		return domain.User{}, err
	}
	return out.User, nil
}

// upload streams one file as a multipart form.
func (c *Client) upload(ctx context.Context, op, path, field, filename string, body io.Reader) (Submission, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	var out Submission
	err := c.doJSON(ctx, op, http.MethodPost, path, pr, writer.FormDataContentType(), &out)
	pr.Close()
	if err != nil {
		return Submission{}, err
	}
	if out.TaskID == "" {
		return Submission{}, fmt.Errorf("%s: %w", op, ErrMissingTaskID)
	}
	return out, nil
}

// doJSON issues one request and decodes a JSON success body into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failure body, or its trimmed text.
func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
