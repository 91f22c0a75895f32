package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wailsapp/mimetype"

	"study-buddy/internal/domain"
)

// ErrUnsupportedMedia is returned for files that are neither video nor PDF.
var ErrUnsupportedMedia = errors.New("unsupported media type")

const pdfContentType = "application/pdf"

// remoteVideoPattern matches the video-hosting URLs the backend accepts.
var remoteVideoPattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+$`)

// videoExtensions backs up content sniffing for containers it does not recognise.
var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".ogv":  "video/ogg",
}

// ValidationError is a local input rejection; no request was sent.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error returns the user-facing message.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// detector returns the sniffed content type of a file.
type detector func(path string) (string, error)

// sniff detects content type from the file's leading bytes.
func sniff(path string) (string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

// Classify decides whether path is a document or a video upload.
func Classify(path string) (domain.SourceKind, string, error) {
	return classify(path, sniff)
}

func classify(path string, detect detector) (domain.SourceKind, string, error) {
	if strings.TrimSpace(path) == "" {
		return "", "", &ValidationError{Field: "file", Message: "Please select a video or PDF file."}
	}

	detected, err := detect(path)
	if err != nil {
		return "", "", &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("Cannot read %s", filepath.Base(path)),
			Err:     err,
		}
	}

	contentType := baseType(detected)
	if !isAccepted(contentType) {
		if byExt, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			contentType = byExt
		} else if strings.EqualFold(filepath.Ext(path), ".pdf") {
			contentType = pdfContentType
		}
	}

	switch {
	case contentType == pdfContentType:
		return domain.SourceKindDocumentFile, contentType, nil
	case strings.HasPrefix(contentType, "video/"):
		return domain.SourceKindVideoFile, contentType, nil
	default:
		return "", contentType, &ValidationError{
			Field:   "file",
			Message: "Please select a video or PDF file.",
			Err:     ErrUnsupportedMedia,
		}
	}
}

// ValidateRemoteURL checks a remote video URL before any request is made.
func ValidateRemoteURL(raw string) error {
	url := strings.TrimSpace(raw)
	if url == "" {
		return &ValidationError{Field: "url", Message: "Please enter a YouTube URL"}
	}
	if !remoteVideoPattern.MatchString(url) {
		return &ValidationError{Field: "url", Message: "Please enter a valid YouTube URL"}
	}
	return nil
}

func baseType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func isAccepted(contentType string) bool {
	return contentType == pdfContentType || strings.HasPrefix(contentType, "video/")
}
