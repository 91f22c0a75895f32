package jobs

import (
	"testing"

	"study-buddy/internal/domain"
)

// TestManagerLifecycle verifies progression through backend statuses.
func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if m.Current().Polling {
		t.Fatal("new manager should be idle")
	}
	if m.Current().Step != -1 {
		t.Fatalf("idle step = %d, want -1", m.Current().Step)
	}

	if err := m.Start("task-1", "lecture.mp4"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.Current().Polling {
		t.Fatal("expected running after start")
	}
	if got := m.Current().Step; got != 0 {
		t.Fatalf("step after start = %d, want 0", got)
	}

	for _, status := range []domain.TaskStatus{
		domain.TaskStatusConverting,
		domain.TaskStatusTranscribing,
		domain.TaskStatusSummarizing,
		domain.TaskStatusGeneratingNotes,
	} {
		job := m.Observe(status)
		if job.Status != status {
			t.Fatalf("status = %s, want %s", job.Status, status)
		}
		if !job.Polling {
			t.Fatalf("polling stopped at %s", status)
		}
	}

	job := m.Observe(domain.TaskStatusCompleted)
	if job.Step != 5 || job.Polling {
		t.Fatalf("completed job = %+v, want step 5 and not polling", job)
	}
}

// TestManagerObserveDoesNotValidateOrder checks that backend statuses overwrite the display.
func TestManagerObserveDoesNotValidateOrder(t *testing.T) {
	m := NewManager()
	if err := m.Start("task-1", ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	m.Observe(domain.TaskStatusSummarizing)
	job := m.Observe(domain.TaskStatusConverting)
	if job.Status != domain.TaskStatusConverting || job.Step != 1 {
		t.Fatalf("job = %+v, want converting at step 1", job)
	}

	job = m.Observe(domain.TaskStatus("queued"))
	if job.Status != "queued" || job.Step != 1 {
		t.Fatalf("unknown status should keep last step, got %+v", job)
	}
}

// TestManagerRejectsSecondStart checks the single active task constraint.
func TestManagerRejectsSecondStart(t *testing.T) {
	m := NewManager()
	if err := m.Start("task-1", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start("task-2", ""); err != ErrJobAlreadyRunning {
		t.Fatalf("second start error = %v, want %v", err, ErrJobAlreadyRunning)
	}
}

// TestManagerFailAndStop verifies failure and repeated stop handling.
func TestManagerFailAndStop(t *testing.T) {
	m := NewManager()
	if err := m.Start("task-1", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.Observe(domain.TaskStatusTranscribing)

	job := m.Fail("boom")
	if job.Status != domain.TaskStatusError || job.Error != "boom" || job.Polling {
		t.Fatalf("failed job = %+v", job)
	}
	if job.Step != 2 {
		t.Fatalf("failure should keep the last step, got %d", job.Step)
	}

	if err := m.Stop(); err != ErrNoRunningJob {
		t.Fatalf("stop after fail error = %v, want %v", err, ErrNoRunningJob)
	}

	if err := m.Start("task-2", ""); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.Current().Polling {
		t.Fatal("expected idle after stop")
	}

	m.Reset()
	if m.Current().TaskID != "" {
		t.Fatalf("reset kept task id %q", m.Current().TaskID)
	}
}
