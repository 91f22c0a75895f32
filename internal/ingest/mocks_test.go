package ingest

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"study-buddy/internal/backend"
	"study-buddy/internal/domain"
	"study-buddy/internal/media"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) UploadVideo(ctx context.Context, filename string, body io.Reader) (backend.Submission, error) {
	args := m.Called(ctx, filename, body)
	return args.Get(0).(backend.Submission), args.Error(1)
}

func (m *MockBackend) UploadDocument(ctx context.Context, filename string, body io.Reader) (backend.Submission, error) {
	args := m.Called(ctx, filename, body)
	return args.Get(0).(backend.Submission), args.Error(1)
}

func (m *MockBackend) SubmitRemote(ctx context.Context, videoURL string) (backend.Submission, error) {
	args := m.Called(ctx, videoURL)
	return args.Get(0).(backend.Submission), args.Error(1)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Register(path string, kind domain.MediaKind) (media.Handle, error) {
	args := m.Called(path, kind)
	return args.Get(0).(media.Handle), args.Error(1)
}

func (m *MockRegistry) Release(id string) bool {
	args := m.Called(id)
	return args.Bool(0)
}
