package domain

import (
	"encoding/json"
	"strings"
)

// TaskStatus is the processing state reported by the backend for one task.
type TaskStatus string

const (
	TaskStatusUploaded        TaskStatus = "uploaded"
	TaskStatusConverting      TaskStatus = "converting"
	TaskStatusTranscribing    TaskStatus = "transcribing"
	TaskStatusSummarizing     TaskStatus = "summarizing"
	TaskStatusGeneratingNotes TaskStatus = "generating_notes"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusError           TaskStatus = "error"
)

// Step is one entry of the processing progress display.
type Step struct {
	Status TaskStatus `json:"status"`
	Name   string     `json:"name"`
}

var steps = []Step{
	{Status: TaskStatusUploaded, Name: "File uploaded"},
	{Status: TaskStatusConverting, Name: "Converting video to audio"},
	{Status: TaskStatusTranscribing, Name: "Generating transcript"},
	{Status: TaskStatusSummarizing, Name: "Creating summary"},
	{Status: TaskStatusGeneratingNotes, Name: "Generating notes"},
	{Status: TaskStatusCompleted, Name: "Processing complete"},
}

// Steps returns the ordered progress steps shown while a task is processed.
func Steps() []Step {
	return append([]Step(nil), steps...)
}

// StepIndex returns the position of s in Steps, or -1 for error and unknown values.
func (s TaskStatus) StepIndex() int {
	for i, step := range steps {
		if step.Status == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further transitions are expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// MediaKind tells the results view how to render the uploaded source.
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindPDF   MediaKind = "pdf"
)

// SourceKind selects the backend endpoint used for ingestion.
type SourceKind string

const (
	SourceKindVideoFile    SourceKind = "video_file"
	SourceKindDocumentFile SourceKind = "document_file"
	SourceKindRemoteVideo  SourceKind = "remote_video"
)

// MediaKind maps an ingestion source to the media kind persisted for rendering.
func (k SourceKind) MediaKind() MediaKind {
	if k == SourceKindDocumentFile {
		return MediaKindPDF
	}
	return MediaKindVideo
}

// Segment is one time-aligned transcript chunk with engine confidence metrics.
type Segment struct {
	ID               int     `json:"id"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	AvgLogprob       float64 `json:"avg_logprob,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
	NoSpeechProb     float64 `json:"no_speech_prob,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
}

// Transcript is the full transcription of a task's source.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Flashcard is a single question/answer pair.
type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Results is the payload produced by the backend once a task completes.
type Results struct {
	Transcript Transcript      `json:"transcript"`
	Summary    string          `json:"summary"`
	Notes      string          `json:"notes"`
	Flashcards []Flashcard     `json:"flashcards,omitempty"`
	MindMap    json.RawMessage `json:"mindmap,omitempty"`
}

// IsEmpty reports whether the payload carries no transcript, summary, or notes.
func (r *Results) IsEmpty() bool {
	if r == nil {
		return true
	}
	return strings.TrimSpace(r.Transcript.Text) == "" &&
		len(r.Transcript.Segments) == 0 &&
		strings.TrimSpace(r.Summary) == "" &&
		strings.TrimSpace(r.Notes) == ""
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	BackendURL string `json:"backendUrl"`
	DataDir    string `json:"dataDir"`
	ExportDir  string `json:"exportDir"`
}

// Job is the displayed polling state of the active task.
type Job struct {
	TaskID     string     `json:"taskId"`
	SourceName string     `json:"sourceName,omitempty"`
	Status     TaskStatus `json:"status,omitempty"`
	Step       int        `json:"step"`
	Error      string     `json:"error,omitempty"`
	Polling    bool       `json:"polling"`
}

// User is the account returned by the login endpoint.
type User struct {
	ID        string   `json:"_id"`
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	History   []string `json:"history,omitempty"`
}
