package form

import (
	"Scripter/core"
	"Scripter/lib/sl"
	"Scripter/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type OutcomeStatus string

const (
	StatusSucceeded  OutcomeStatus = "succeeded"
	StatusUnexpected OutcomeStatus = "unexpected_status"
	StatusFailed     OutcomeStatus = "failed"
)

// Outcome describes how one submission ended.
type Outcome struct {
	Status OutcomeStatus
	Code   int
	Err    error
}

// Task is a single submission in flight.
type Task struct {
	id      string
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

func (t *Task) ID() string { return t.id }

// Cancel aborts the request; the outcome will be StatusFailed and the
// script is left untouched.
func (t *Task) Cancel() { t.cancel() }

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the submission completes.
func (t *Task) Wait() Outcome {
	<-t.done
	return t.outcome
}

type Option func(*Controller)

// WithSession tags logs and journal entries with the owning session.
func WithSession(id int64) Option {
	return func(c *Controller) {
		c.session = id
	}
}

// WithJournal records every completed submission.
func WithJournal(journal storage.Journal) Option {
	return func(c *Controller) {
		c.journal = journal
	}
}

// Controller runs request/response cycles for one form.
type Controller struct {
	state      *State
	service    core.ScriptService
	searchTool string
	session    int64
	journal    storage.Journal
	log        *slog.Logger
	mutex      sync.Mutex
	tasks      map[string]*Task
}

func NewController(state *State, service core.ScriptService, searchTool string, log *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		state:      state,
		service:    service,
		searchTool: searchTool,
		tasks:      make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = log.With(sl.Module("submit"), slog.Int64("session", c.session))
	return c
}

// Submit marks the form busy and starts one request built from the current
// values. Busy is set before Submit returns. The view is expected to not
// call Submit while the form is busy; overlapping calls are not rejected and
// the last response to arrive wins.
func (c *Controller) Submit(ctx context.Context) *Task {
	values := c.state.begin()

	taskCtx, cancel := context.WithCancel(ctx)
	task := &Task{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.track(task)

	// duration is collected by the form but is not part of the request
	req := core.ScriptRequest{
		Topic:       values.Topic,
		Tone:        string(values.Tone),
		Format:      string(values.Format),
		Temperature: values.Temperature,
		SearchTool:  c.searchTool,
	}

	c.log.With(
		sl.Task(task.id),
		slog.String("format", req.Format),
		slog.String("tone", req.Tone),
	).Debug("submitting")

	go c.run(taskCtx, task, req)
	return task
}

// CancelAll aborts every in-flight submission.
func (c *Controller) CancelAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, task := range c.tasks {
		task.cancel()
	}
}

// InFlight returns the number of outstanding submissions.
func (c *Controller) InFlight() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.tasks)
}

func (c *Controller) run(ctx context.Context, task *Task, req core.ScriptRequest) {
	log := c.log.With(sl.Task(task.id))
	started := time.Now()
	var outcome Outcome

	defer func() {
		task.cancel()
		c.untrack(task)
		c.state.finish()
		c.record(task, req, outcome, time.Since(started))
		task.outcome = outcome
		close(task.done)
	}()

	script, err := c.service.GenerateScript(ctx, req)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("discarding response: %w", ctx.Err())
	}
	if err != nil {
		var statusErr *core.StatusError
		if errors.As(err, &statusErr) {
			outcome = Outcome{Status: StatusUnexpected, Code: statusErr.Code, Err: err}
			log.With(slog.Int("status", statusErr.Code)).Error("unexpected response", sl.Err(err))
			return
		}
		outcome = Outcome{Status: StatusFailed, Err: err}
		log.Error("request failed", sl.Err(err))
		return
	}

	c.state.SetScript(script)
	outcome = Outcome{Status: StatusSucceeded, Code: 200}
	log.With(slog.Int("length", len(script))).Info("script generated")
}

func (c *Controller) record(task *Task, req core.ScriptRequest, outcome Outcome, elapsed time.Duration) {
	if c.journal == nil {
		return
	}
	entry := &storage.Entry{
		TaskId:      task.id,
		SessionId:   c.session,
		Topic:       req.Topic,
		Tone:        req.Tone,
		Format:      req.Format,
		Temperature: req.Temperature,
		SearchTool:  req.SearchTool,
		Outcome:     string(outcome.Status),
		StatusCode:  outcome.Code,
		Elapsed:     elapsed,
	}
	if outcome.Err != nil {
		entry.Error = outcome.Err.Error()
	}
	if err := c.journal.Record(entry); err != nil {
		c.log.With(sl.Task(task.id)).Warn("recording journal entry", sl.Err(err))
	}
}

func (c *Controller) track(task *Task) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.tasks[task.id] = task
}

func (c *Controller) untrack(task *Task) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.tasks, task.id)
}
