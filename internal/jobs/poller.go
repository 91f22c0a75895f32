package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"study-buddy/internal/backend"
	"study-buddy/internal/config"
	"study-buddy/internal/domain"
	"study-buddy/internal/platform/logger"
	"study-buddy/internal/session"
)

// ErrNoTask is returned when there is no task id to watch.
var ErrNoTask = errors.New("no task to watch")

const (
	msgNoResults     = "Processing completed but no results were returned"
	msgStoreFailed   = "Failed to store processing results"
	msgBackendFailed = "An error occurred during processing"
	msgTimedOut      = "Timed out waiting for processing to finish"
)

// StatusSource reports the backend state of one task.
type StatusSource interface {
	Status(ctx context.Context, taskID string) (backend.StatusResponse, error)
}

// OutcomeKind describes how a watch ended.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeTimedOut  OutcomeKind = "timed_out"
)

// Outcome is the final result of a watch.
type Outcome struct {
	Kind      OutcomeKind     `json:"kind"`
	TaskID    string          `json:"taskId"`
	Message   string          `json:"message,omitempty"`
	Results   *domain.Results `json:"-"`
	Navigated bool            `json:"navigated"`
}

// Poller watches tasks until they reach a terminal state.
type Poller struct {
	source  StatusSource
	manager *Manager
	bus     *EventBus
	logger  *slog.Logger

	Interval      time.Duration
	NavigateDelay time.Duration
	Timeout       time.Duration
}

// NewPoller creates a poller with the default interval and navigation delay.
func NewPoller(source StatusSource, manager *Manager, bus *EventBus, l *slog.Logger) *Poller {
	if manager == nil {
		manager = NewManager()
	}
	if bus == nil {
		bus = NewEventBus(0)
	}
	return &Poller{
		source:        source,
		manager:       manager,
		bus:           bus,
		logger:        logger.OrDefault(l),
		Interval:      config.DefaultPollInterval,
		NavigateDelay: config.DefaultNavigateDelay,
	}
}

// Manager returns the job state tracker fed by this poller.
func (p *Poller) Manager() *Manager {
	return p.manager
}

// Events returns the event history fed by this poller.
func (p *Poller) Events() *EventBus {
	return p.bus
}

// Watch is one cancellable polling run.
type Watch struct {
	taskID  string
	updates chan Event
	cancel  context.CancelFunc
	done    chan struct{}

	outcome Outcome
}

// Updates streams every event of the watch. It is closed when the watch ends.
func (w *Watch) Updates() <-chan Event {
	return w.updates
}

// TaskID returns the watched task.
func (w *Watch) TaskID() string {
	return w.taskID
}

// Cancel stops polling and suppresses any pending navigation.
func (w *Watch) Cancel() {
	w.cancel()
}

// Done is closed once the outcome is available.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the watch ends and returns its outcome.
func (w *Watch) Wait() Outcome {
	<-w.done
	return w.outcome
}

// Watch polls the task recorded in sc: once immediately, then once per
// interval. Requests never overlap and responses arriving after
// cancellation are dropped.
func (p *Poller) Watch(ctx context.Context, sc *session.Context) (*Watch, error) {
	if sc == nil || sc.TaskID() == "" {
		return nil, ErrNoTask
	}
	taskID := sc.TaskID()
	if err := p.manager.Start(taskID, sc.SourceName()); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w := &Watch{
		taskID:  taskID,
		updates: make(chan Event, 32),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		started := time.Now()
		outcome := p.run(runCtx, w, sc)
		cancel()

		if outcome.Kind == OutcomeCancelled {
			if err := p.manager.Stop(); err != nil && !errors.Is(err, ErrNoRunningJob) {
				p.logger.Warn("stop job", "task_id", taskID, "error", err)
			}
		}
		watchOutcomesTotal.WithLabelValues(string(outcome.Kind)).Inc()
		watchDuration.WithLabelValues(string(outcome.Kind)).Observe(time.Since(started).Seconds())
		p.logger.Info("watch finished", "task_id", taskID, "outcome", outcome.Kind, "message", outcome.Message)

		w.outcome = outcome
		close(w.updates)
		close(w.done)
	}()

	return w, nil
}

func (p *Poller) run(ctx context.Context, w *Watch, sc *session.Context) Outcome {
	pollCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	interval := p.Interval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if outcome, done := p.poll(pollCtx, w, sc); done {
			if outcome.Kind == "" {
				return p.interrupted(ctx, w)
			}
			if outcome.Kind == OutcomeCompleted {
				outcome.Navigated = p.navigate(ctx, w, sc)
			}
			return outcome
		}

		select {
		case <-pollCtx.Done():
			return p.interrupted(ctx, w)
		case <-ticker.C:
		}
	}
}

// poll performs one status request and applies it. done reports whether the
// watch should end; an empty outcome kind means the context ended first.
func (p *Poller) poll(ctx context.Context, w *Watch, sc *session.Context) (Outcome, bool) {
	resp, err := p.source.Status(ctx, w.taskID)
	if ctx.Err() != nil {
		statusPollsTotal.WithLabelValues("dropped").Inc()
		return Outcome{}, true
	}
	if err != nil {
		statusPollsTotal.WithLabelValues("transport_error").Inc()
		p.logger.Warn("status request failed", "task_id", w.taskID, "error", err)
		job := p.manager.Note(err.Error())
		p.emit(w, Event{Type: EventTypeError, Status: job.Status, Step: job.Step, Message: err.Error()})
		return Outcome{}, false
	}
	statusPollsTotal.WithLabelValues("ok").Inc()

	job := p.manager.Observe(resp.Status)
	p.emit(w, Event{Type: EventTypeStatus, Status: job.Status, Step: job.Step})

	switch resp.Status {
	case domain.TaskStatusError:
		msg := resp.Error
		if msg == "" {
			msg = msgBackendFailed
		}
		return p.fail(w, msg), true

	case domain.TaskStatusCompleted:
		if resp.Results.IsEmpty() {
			return p.fail(w, msgNoResults), true
		}
		if err := sc.SaveResults(*resp.Results); err != nil {
			p.logger.Error("store results", "task_id", w.taskID, "error", err)
			return p.fail(w, msgStoreFailed), true
		}
		p.emit(w, Event{Type: EventTypeResult, Status: job.Status, Step: job.Step, Terminal: true, SessionID: sc.ID()})
		return Outcome{Kind: OutcomeCompleted, TaskID: w.taskID, Results: resp.Results}, true
	}

	return Outcome{}, false
}

// navigate waits the navigation delay and emits a navigate event unless the
// watch is cancelled first.
func (p *Poller) navigate(ctx context.Context, w *Watch, sc *session.Context) bool {
	timer := time.NewTimer(p.NavigateDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		p.logger.Debug("navigation suppressed", "task_id", w.taskID)
		return false
	case <-timer.C:
	}

	job := p.manager.Current()
	p.emit(w, Event{Type: EventTypeNavigate, Status: job.Status, Step: job.Step, Terminal: true, SessionID: sc.ID()})
	return true
}

func (p *Poller) fail(w *Watch, msg string) Outcome {
	job := p.manager.Fail(msg)
	p.emit(w, Event{Type: EventTypeError, Status: job.Status, Step: job.Step, Message: msg, Terminal: true})
	return Outcome{Kind: OutcomeFailed, TaskID: w.taskID, Message: msg}
}

// interrupted tells cancellation apart from the optional polling deadline.
func (p *Poller) interrupted(parent context.Context, w *Watch) Outcome {
	if parent.Err() != nil {
		return Outcome{Kind: OutcomeCancelled, TaskID: w.taskID}
	}
	p.fail(w, msgTimedOut)
	return Outcome{Kind: OutcomeTimedOut, TaskID: w.taskID, Message: msgTimedOut}
}

// emit publishes to the history and offers the event to the stream. Slow
// readers miss stream events but can catch up through the event bus.
func (p *Poller) emit(w *Watch, event Event) {
	event.TaskID = w.taskID
	event = p.bus.Publish(event)
	select {
	case w.updates <- event:
	default:
		p.logger.Debug("update dropped for slow reader", "task_id", w.taskID, "seq", event.Seq)
	}
}
