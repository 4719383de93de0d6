package taskman

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"canvasd/internal/canvas"
)

func newManager() (*Manager, *canvas.Document) {
	doc := canvas.NewDocument()
	return NewManager(doc, zerolog.New(io.Discard)), doc
}

func TestStartAndGet(t *testing.T) {
	m, _ := newManager()
	task := m.Start("layer-1", MediaImage)

	if task.TaskID == "" || task.LayerID != "layer-1" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.TaskID == task.LayerID {
		t.Fatal("task id must be distinct from layer id")
	}
	if task.Status() != StatusQueued || task.Progress() != 0 {
		t.Fatalf("fresh task state wrong: %s/%d", task.Status(), task.Progress())
	}
	if got := m.Get("layer-1"); got != task {
		t.Fatal("Get returned a different task")
	}
	if m.Get("other") != nil {
		t.Fatal("Get of unknown layer must be nil")
	}
}

func TestStartReplacesAndCancelsPrevious(t *testing.T) {
	m, _ := newManager()
	first := m.Start("layer-1", MediaImage)
	second := m.Start("layer-1", MediaImage)

	if m.Len() != 1 {
		t.Fatalf("registry holds %d tasks for one layer", m.Len())
	}
	if m.Get("layer-1") != second {
		t.Fatal("registry must hold the replacement task")
	}
	select {
	case <-first.Context().Done():
	default:
		t.Fatal("replaced task's context must be canceled")
	}
	if !errors.Is(context.Cause(first.Context()), ErrCanceled) {
		t.Fatalf("cancel cause = %v", context.Cause(first.Context()))
	}
	select {
	case <-second.Context().Done():
		t.Fatal("replacement task must be live")
	default:
	}
}

func TestUpdateProgress(t *testing.T) {
	m, _ := newManager()
	task := m.Start("layer-1", MediaVideo)

	m.UpdateProgress("layer-1", 30)
	if task.Progress() != 30 {
		t.Fatalf("progress = %d", task.Progress())
	}
	// Monotonic within a task: a late lower value does not regress.
	m.UpdateProgress("layer-1", 10)
	if task.Progress() != 30 {
		t.Fatalf("progress regressed to %d", task.Progress())
	}
	m.UpdateProgress("layer-1", 250)
	if task.Progress() != 100 {
		t.Fatalf("progress not clamped: %d", task.Progress())
	}
	// Unknown layer: silent no-op.
	m.UpdateProgress("ghost", 50)
}

func TestTerminalEventsRemoveTask(t *testing.T) {
	tests := []struct {
		name     string
		terminal func(m *Manager, task *Task)
	}{
		{"complete", func(m *Manager, task *Task) { m.Complete(task) }},
		{"fail", func(m *Manager, task *Task) { m.Fail(task) }},
		{"retire", func(m *Manager, task *Task) { m.Retire(task) }},
		{"cancel", func(m *Manager, task *Task) { m.Cancel(task.LayerID) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newManager()
			task := m.Start("layer-1", MediaImage)
			tt.terminal(m, task)
			if m.Get("layer-1") != nil {
				t.Fatal("task must be gone immediately after its terminal event")
			}
			if m.Len() != 0 {
				t.Fatalf("registry size = %d", m.Len())
			}
		})
	}
}

func TestStaleTaskCannotTerminateReplacement(t *testing.T) {
	tests := []struct {
		name     string
		terminal func(t *testing.T, m *Manager, stale *Task)
	}{
		// The boolean contract matters: callers settle the layer only when
		// the terminal event was accepted.
		{"complete", func(t *testing.T, m *Manager, stale *Task) {
			if m.Complete(stale) {
				t.Fatal("Complete accepted a stale task")
			}
		}},
		{"fail", func(t *testing.T, m *Manager, stale *Task) {
			if m.Fail(stale) {
				t.Fatal("Fail accepted a stale task")
			}
		}},
		{"retire", func(t *testing.T, m *Manager, stale *Task) { m.Retire(stale) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, doc := newManager()
			layerID := doc.InsertPlaceholder(canvas.Layer{Kind: canvas.LayerKindImage})
			stale := m.Start(layerID, MediaImage)
			replacement := m.Start(layerID, MediaImage)

			tt.terminal(t, m, stale)

			if m.Get(layerID) != replacement {
				t.Fatal("replacement task must survive the stale task's terminal event")
			}
			if _, ok := doc.Layer(layerID); !ok {
				t.Fatal("reused layer must survive the stale task's terminal event")
			}
			select {
			case <-replacement.Context().Done():
				t.Fatal("replacement context must stay live")
			default:
			}
		})
	}
}

func TestRetireRemovesCurrentTaskAndLayer(t *testing.T) {
	m, doc := newManager()
	layerID := doc.InsertPlaceholder(canvas.Layer{Kind: canvas.LayerKindAudio})
	task := m.Start(layerID, MediaAudio)

	m.Retire(task)

	if m.Get(layerID) != nil {
		t.Fatal("retired task must leave the registry")
	}
	if _, ok := doc.Layer(layerID); ok {
		t.Fatal("retiring the current task must remove its placeholder")
	}
	if !errors.Is(context.Cause(task.Context()), ErrCanceled) {
		t.Fatalf("retire cause = %v", context.Cause(task.Context()))
	}
}

func TestCancelOrphanRemovesLayer(t *testing.T) {
	m, doc := newManager()
	layerID := doc.InsertPlaceholder(canvas.Layer{Kind: canvas.LayerKindImage})

	// No task registered for the layer: cancel must still remove it.
	m.Cancel(layerID)
	if _, ok := doc.Layer(layerID); ok {
		t.Fatal("orphan cancel must remove the placeholder layer")
	}

	// And a cancel with neither task nor layer must not panic.
	m.Cancel("completely-unknown")
}

func TestCancelSignalsContext(t *testing.T) {
	m, doc := newManager()
	layerID := doc.InsertPlaceholder(canvas.Layer{Kind: canvas.LayerKindVideo})
	task := m.Start(layerID, MediaVideo)

	m.Cancel(layerID)
	if err := CheckCanceled(task.Context()); !errors.Is(err, ErrCanceled) {
		t.Fatalf("checkpoint after cancel = %v, want ErrCanceled", err)
	}
	if _, ok := doc.Layer(layerID); ok {
		t.Fatal("cancel must remove the layer")
	}
}

func TestCheckCanceled(t *testing.T) {
	if err := CheckCanceled(context.Background()); err != nil {
		t.Fatalf("live context checkpoint = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := CheckCanceled(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled context checkpoint = %v", err)
	}
}
