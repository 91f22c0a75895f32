package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-buddy/internal/domain"
	"study-buddy/internal/media"
	"study-buddy/internal/platform/logger"
	"study-buddy/internal/session"
)

type countingFetcher struct {
	mu             sync.Mutex
	flashcardCalls int
	mindMapCalls   int
	err            error
}

func (f *countingFetcher) GenerateFlashcards(_ context.Context, taskID string) ([]domain.Flashcard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flashcardCalls++
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Flashcard{{Question: taskID, Answer: "call"}}, nil
}

func (f *countingFetcher) GenerateMindMap(_ context.Context, _ string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mindMapCalls++
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"name":"root"}`), nil
}

func newRun(t *testing.T) (*session.Manager, *session.Context) {
	t.Helper()
	sessions := session.NewManager(session.NewMemoryStore(), nil, logger.Discard())
	sc, err := sessions.New()
	require.NoError(t, err)
	require.NoError(t, sc.SetTask("task-9", "lecture.mp4", domain.MediaKindVideo))
	return sessions, sc
}

func sampleResults() domain.Results {
	return domain.Results{
		Transcript: domain.Transcript{
			Text:     "hello world",
			Language: "en",
			Segments: []domain.Segment{{ID: 0, Start: 0, End: 1.5, Text: "hello"}, {ID: 1, Start: 1.5, End: 3, Text: "world"}},
		},
		Summary: "A greeting.",
		Notes:   "# Lecture\n\n- point one\n- point two\n",
	}
}

func TestOpenWithoutResults(t *testing.T) {
	_, sc := newRun(t)
	page := Open(sc, nil, &countingFetcher{}, logger.Discard())

	assert.False(t, page.HasData())
	assert.False(t, page.MediaAvailable())
	assert.Empty(t, page.Notes())
	assert.Empty(t, page.Segments())
	assert.Equal(t, "lecture.mp4", page.SourceName())
	assert.Equal(t, ViewTranscript, page.Active())

	err := page.ExportNotes(&bytes.Buffer{})
	assert.ErrorIs(t, err, ErrNoNotes)
}

func TestOpenReadsPayload(t *testing.T) {
	_, sc := newRun(t)
	require.NoError(t, sc.SaveResults(sampleResults()))

	page := Open(sc, nil, nil, logger.Discard())
	require.True(t, page.HasData())
	assert.Equal(t, "A greeting.", page.Summary())
	assert.Len(t, page.Segments(), 2)
	assert.Equal(t, "hello world", page.Transcript().Text)
}

func TestOpenReRegistersStaleMedia(t *testing.T) {
	_, sc := newRun(t)
	path := filepath.Join(t.TempDir(), "lecture.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	require.NoError(t, sc.SetMedia(path, "/media/expired-handle"))

	registry := media.NewRegistry("", logger.Discard())
	page := Open(sc, registry, nil, logger.Discard())

	require.True(t, page.MediaAvailable())
	h, ok := page.Media()
	require.True(t, ok)
	assert.Equal(t, path, h.Path)
	assert.Equal(t, h.URL, sc.MediaURL())
	assert.Equal(t, 1, registry.Len())
}

func TestOpenReusesLiveMedia(t *testing.T) {
	_, sc := newRun(t)
	path := filepath.Join(t.TempDir(), "slides.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	registry := media.NewRegistry("", logger.Discard())
	live, err := registry.Register(path, domain.MediaKindPDF)
	require.NoError(t, err)
	require.NoError(t, sc.SetMedia(path, live.URL))

	page := Open(sc, registry, nil, logger.Discard())
	h, ok := page.Media()
	require.True(t, ok)
	assert.Equal(t, live.ID, h.ID)
	assert.Equal(t, 1, registry.Len())
}

func TestCloseReleasesRegisteredMedia(t *testing.T) {
	_, sc := newRun(t)
	path := filepath.Join(t.TempDir(), "lecture.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	require.NoError(t, sc.SetMedia(path, "/media/expired-handle"))

	registry := media.NewRegistry("", logger.Discard())
	for i := 0; i < 5; i++ {
		page := Open(sc, registry, nil, logger.Discard())
		require.True(t, page.MediaAvailable())
		assert.Equal(t, 1, registry.Len())
		page.Close()
		page.Close()
		assert.Equal(t, 0, registry.Len(), "reopen %d leaked a handle", i)
	}
}

func TestCloseKeepsMediaItDidNotRegister(t *testing.T) {
	_, sc := newRun(t)
	path := filepath.Join(t.TempDir(), "slides.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	registry := media.NewRegistry("", logger.Discard())
	live, err := registry.Register(path, domain.MediaKindPDF)
	require.NoError(t, err)
	require.NoError(t, sc.SetMedia(path, live.URL))

	page := Open(sc, registry, nil, logger.Discard())
	page.Close()

	_, err = registry.Resolve(live.ID)
	assert.NoError(t, err)
}

func TestOpenMissingMediaFile(t *testing.T) {
	_, sc := newRun(t)
	require.NoError(t, sc.SetMedia(filepath.Join(t.TempDir(), "gone.mp4"), "/media/x"))

	page := Open(sc, media.NewRegistry("", logger.Discard()), nil, logger.Discard())
	assert.False(t, page.MediaAvailable())
}

func TestSelectRefetchesFlashcardsEveryActivation(t *testing.T) {
	_, sc := newRun(t)
	fetcher := &countingFetcher{}
	page := Open(sc, nil, fetcher, logger.Discard())
	ctx := context.Background()

	require.NoError(t, page.Select(ctx, ViewFlashcards))
	require.NoError(t, page.Select(ctx, ViewTranscript))
	require.NoError(t, page.Select(ctx, ViewFlashcards))

	assert.Equal(t, 2, fetcher.flashcardCalls)
	assert.Equal(t, 2, page.FlashcardsKey())
	assert.Equal(t, ViewFlashcards, page.Active())
	require.Len(t, page.Flashcards(), 1)
	assert.Equal(t, "task-9", page.Flashcards()[0].Question)
}

func TestSelectCachesMindMap(t *testing.T) {
	_, sc := newRun(t)
	fetcher := &countingFetcher{}
	page := Open(sc, nil, fetcher, logger.Discard())
	ctx := context.Background()

	require.NoError(t, page.Select(ctx, ViewMindMap))
	require.NoError(t, page.Select(ctx, ViewNotes))
	require.NoError(t, page.Select(ctx, ViewMindMap))

	assert.Equal(t, 1, fetcher.mindMapCalls)
	assert.JSONEq(t, `{"name":"root"}`, string(page.MindMap()))
}

func TestSelectMindMapRetriesAfterFailure(t *testing.T) {
	_, sc := newRun(t)
	fetcher := &countingFetcher{err: errors.New("backend down")}
	page := Open(sc, nil, fetcher, logger.Discard())
	ctx := context.Background()

	assert.Error(t, page.Select(ctx, ViewMindMap))
	fetcher.err = nil
	require.NoError(t, page.Select(ctx, ViewMindMap))
	assert.Equal(t, 2, fetcher.mindMapCalls)
}

func TestSelectUnknownView(t *testing.T) {
	_, sc := newRun(t)
	page := Open(sc, nil, nil, logger.Discard())

	err := page.Select(context.Background(), View("quiz"))
	assert.ErrorIs(t, err, ErrUnknownView)
	assert.Equal(t, ViewTranscript, page.Active())
}

func TestSelectWithoutTask(t *testing.T) {
	sessions := session.NewManager(session.NewMemoryStore(), nil, logger.Discard())
	sc, err := sessions.New()
	require.NoError(t, err)
	fetcher := &countingFetcher{}
	page := Open(sc, nil, fetcher, logger.Discard())

	assert.ErrorIs(t, page.Select(context.Background(), ViewFlashcards), ErrNoTask)
	assert.Zero(t, fetcher.flashcardCalls)
	assert.Equal(t, "video", page.SourceName())
}

func TestExportNotesFileDefaultsName(t *testing.T) {
	_, sc := newRun(t)
	require.NoError(t, sc.SaveResults(sampleResults()))
	page := Open(sc, nil, nil, logger.Discard())

	dir := t.TempDir()
	path, err := page.ExportNotesFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultExportName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	var buf bytes.Buffer
	require.NoError(t, page.ExportNotes(&buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestFormatTimestamp(t *testing.T) {
	tests := map[float64]string{
		0:           "0:00",
		5.9:         "0:05",
		65:          "1:05",
		600:         "10:00",
		3725:        "62:05",
		-3:          "0:00",
		math.NaN():  "0:00",
		math.Inf(1): "0:00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatTimestamp(in), "input %v", in)
	}
}
