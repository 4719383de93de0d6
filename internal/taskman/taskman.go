// Package taskman tracks in-flight generation tasks, one per canvas layer.
// Each task owns a cancellation context; the generation pipeline observes it
// at its checkpoints and never outlives its terminal event.
package taskman

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"canvasd/internal/canvas"
)

// ErrCanceled is the distinguished cancellation failure. It is installed as
// the cancel cause of a task's context, so pipeline errors caused by an
// explicit cancel satisfy errors.Is(err, ErrCanceled) and are cleaned up
// silently instead of surfacing on the layer.
var ErrCanceled = errors.New("generation canceled")

// Status is a task's lifecycle state. Cancellation is not a status: it is an
// external signal that can arrive in any state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusPolling    Status = "polling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// MediaType selects the generation pipeline and its progress semantics.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// Task is the bookkeeping record for one in-flight request.
type Task struct {
	TaskID    string
	LayerID   string
	MediaType MediaType
	StartedAt time.Time

	mu       sync.Mutex
	status   Status
	progress int

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Context returns the task-owned cancellation context. Callers only
// observe it; the manager is the sole owner of the cancel side.
func (t *Task) Context() context.Context { return t.ctx }

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// SetStatus transitions the task. Safe to call on a task that was already
// replaced or retired; nobody reads a dead task's status.
func (t *Task) SetStatus(status Status) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()
}

// SetProgress records progress, clamped to 0..100 and never regressing
// within the task (late lower values from racing callbacks are dropped).
func (t *Task) SetProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.mu.Lock()
	if progress > t.progress {
		t.progress = progress
	}
	t.mu.Unlock()
}

// Manager is the task registry, keyed by layer id. It also holds the
// document reference so cancel can remove placeholders even when no task is
// registered anymore (the orphan case).
type Manager struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	doc    *canvas.Document
	logger zerolog.Logger
}

func NewManager(doc *canvas.Document, logger zerolog.Logger) *Manager {
	return &Manager{
		tasks:  make(map[string]*Task),
		doc:    doc,
		logger: logger.With().Str("component", "taskman").Logger(),
	}
}

// Start registers a task for layerID with a fresh cancellation context. If a
// live task already exists for the layer it is canceled and replaced, keeping
// the at-most-one-task-per-layer invariant (the layer itself is untouched:
// it is being reused by the new request).
func (m *Manager) Start(layerID string, media MediaType) *Task {
	ctx, cancel := context.WithCancelCause(context.Background())
	task := &Task{
		TaskID:    uuid.NewString(),
		LayerID:   layerID,
		MediaType: media,
		StartedAt: time.Now().UTC(),
		status:    StatusQueued,
		ctx:       ctx,
		cancel:    cancel,
	}

	m.mu.Lock()
	if prev, ok := m.tasks[layerID]; ok {
		prev.cancel(ErrCanceled)
		m.logger.Warn().Str("layer_id", layerID).Str("task_id", prev.TaskID).Msg("replacing live task")
	}
	m.tasks[layerID] = task
	m.mu.Unlock()
	return task
}

// UpdateProgress records progress for the layer's current task. It is a
// no-op when no task exists (late callbacks racing a cancel-driven removal
// are expected).
func (m *Manager) UpdateProgress(layerID string, progress int) {
	m.mu.Lock()
	task, ok := m.tasks[layerID]
	m.mu.Unlock()
	if !ok {
		return
	}
	task.SetProgress(progress)
}

// Complete removes task from the registry after success. The caller updates
// the layer itself; the manager only tracks task existence. Returns false
// when task is no longer the layer's registered task (a duplicate Start
// replaced it mid-flight): the registry and the replacement are untouched,
// and the caller must treat the result as belonging to no live layer.
func (m *Manager) Complete(task *Task) bool { return m.finish(task, StatusCompleted) }

// Fail removes task from the registry after a failure, with the same
// identity scoping as Complete. Marking the layer's error state is the
// caller's job, and only when Fail reports true.
func (m *Manager) Fail(task *Task) bool { return m.finish(task, StatusFailed) }

func (m *Manager) finish(task *Task, terminal Status) bool {
	m.mu.Lock()
	current := m.tasks[task.LayerID] == task
	if current {
		delete(m.tasks, task.LayerID)
	}
	m.mu.Unlock()
	if !current {
		return false
	}
	task.SetStatus(terminal)
	// Release the context resources; a terminal task has no observers left.
	task.cancel(context.Canceled)
	return true
}

// Retire is the canceled pipeline's own cleanup: it removes task and its
// layer only if task is still the layer's registered task. A pipeline
// unwinding after an explicit Cancel (registry slot already empty) or after
// a duplicate Start (slot holds the replacement) finds it is not current and
// leaves both the registry and the layer alone.
func (m *Manager) Retire(task *Task) {
	m.mu.Lock()
	current := m.tasks[task.LayerID] == task
	if current {
		delete(m.tasks, task.LayerID)
	}
	m.mu.Unlock()
	if !current {
		return
	}
	task.cancel(ErrCanceled)
	m.doc.Remove(task.LayerID)
	m.logger.Debug().Str("layer_id", task.LayerID).Str("task_id", task.TaskID).Msg("task retired")
}

// Cancel triggers the layer's cancellation signal, removes the task from the
// registry, and unconditionally removes the placeholder layer — whether or
// not a task exists. A cancel on a layer whose task already finished racing
// in the background, or whose task reference was lost, must still clear the
// stale placeholder. Always safe to call; leaves no trace of layer or task.
func (m *Manager) Cancel(layerID string) {
	m.mu.Lock()
	task, ok := m.tasks[layerID]
	delete(m.tasks, layerID)
	m.mu.Unlock()

	if ok {
		task.cancel(ErrCanceled)
		m.logger.Debug().Str("layer_id", layerID).Str("task_id", task.TaskID).Msg("task canceled")
	}
	m.doc.Remove(layerID)
}

// Get returns the live task for layerID, or nil.
func (m *Manager) Get(layerID string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[layerID]
}

// Len reports the number of live tasks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// CheckCanceled is the cooperative checkpoint: it returns the distinguished
// cancellation cause when ctx is done, nil otherwise.
func CheckCanceled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return ctx.Err()
	default:
		return nil
	}
}
