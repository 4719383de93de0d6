// Package generation orchestrates the life of a generation request: a
// placeholder layer and a tracked task come first, then the remote call runs
// with cooperative cancellation checkpoints, and the result (or error) lands
// back on the layer while the task is retired.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"canvasd/internal/assets"
	"canvasd/internal/canvas"
	"canvasd/internal/providers/audio"
	"canvasd/internal/providers/genai"
	"canvasd/internal/providers/image"
	"canvasd/internal/providers/prompt"
	"canvasd/internal/providers/video"
	"canvasd/internal/taskman"
)

// ErrTimeout marks a video generation whose poll budget ran out before the
// remote operation finished. Fatal to the task; surfaced on the layer.
var ErrTimeout = errors.New("generation timed out")

// FailedError carries a remote-supplied failure message to the layer.
type FailedError struct {
	Message string
}

func (e *FailedError) Error() string { return e.Message }

// Progress landmarks. Submission accounts for the first 10%, polling for the
// next 80% spread linearly across the poll budget, the final download and
// commit for the rest.
const (
	progressSubmitted  = 10
	progressPollSpan   = 80
	progressResponded  = 85
	progressDownloaded = 95
)

// Defaults for the video polling budget: 60 polls at 10s spacing, so a stuck
// operation times out after ten minutes.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxPolls     = 60
)

// Request is one generation submission.
type Request struct {
	Prompt            string
	MediaType         taskman.MediaType
	AspectRatio       string
	ReferenceAssetIDs []string
	X, Y              float64
	Width, Height     float64
}

// Started reports the placeholder and task created for one request.
type Started struct {
	LayerID string `json:"layer_id"`
	TaskID  string `json:"task_id"`
}

// Config tunes the video polling budget. Zero values take the defaults.
type Config struct {
	PollInterval time.Duration
	MaxPolls     int
}

// Service wires the document, the task registry, the asset store, and the
// per-media generators together.
type Service struct {
	doc    *canvas.Document
	tasks  *taskman.Manager
	assets *assets.Store
	images image.Generator
	audios audio.Generator
	videos video.Generator
	cfg    Config
	logger zerolog.Logger

	// sleep is replaced in tests so the poll cadence runs on a fake clock.
	sleep func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

func NewService(
	doc *canvas.Document,
	tasks *taskman.Manager,
	assetStore *assets.Store,
	images image.Generator,
	audios audio.Generator,
	videos video.Generator,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	return &Service{
		doc:    doc,
		tasks:  tasks,
		assets: assetStore,
		images: images,
		audios: audios,
		videos: videos,
		cfg:    cfg,
		logger: logger.With().Str("component", "generation").Logger(),
		sleep:  sleepContext,
	}
}

// Generate accepts a batch of requests. Placeholder layers and tasks are
// created synchronously, before any remote work, so a cancel fired right
// after submission always finds a live placeholder. Each pipeline then runs
// concurrently and independently.
func (s *Service) Generate(reqs []Request) []Started {
	started := make([]Started, 0, len(reqs))
	pending := make([]pendingRun, 0, len(reqs))

	for _, req := range reqs {
		req.Prompt = prompt.Normalize(req.Prompt)
		layerID := s.doc.InsertPlaceholder(canvas.Layer{
			Kind:   layerKind(req.MediaType),
			Title:  prompt.TitleFor(req.Prompt, "en"),
			Prompt: req.Prompt,
			X:      req.X,
			Y:      req.Y,
			Width:  req.Width,
			Height: req.Height,
		})
		task := s.tasks.Start(layerID, req.MediaType)
		started = append(started, Started{LayerID: layerID, TaskID: task.TaskID})
		pending = append(pending, pendingRun{task: task, req: req})
	}

	for _, run := range pending {
		s.wg.Add(1)
		go func(run pendingRun) {
			defer s.wg.Done()
			s.runPipeline(run.task, run.req)
		}(run)
	}
	return started
}

// Cancel is the user-facing cancel: orphan-safe, silent, removes placeholder
// and task alike.
func (s *Service) Cancel(layerID string) { s.tasks.Cancel(layerID) }

// Wait blocks until every in-flight pipeline has finished. Used on shutdown
// and in tests.
func (s *Service) Wait() { s.wg.Wait() }

type pendingRun struct {
	task *taskman.Task
	req  Request
}

func (s *Service) runPipeline(task *taskman.Task, req Request) {
	ctx := task.Context()
	var err error
	switch req.MediaType {
	case taskman.MediaVideo:
		err = s.runVideo(ctx, task, req)
	default:
		err = s.runSingleShot(ctx, task, req)
	}
	if err != nil {
		s.finishFailure(task, err)
	}
}

// runSingleShot handles image and audio: one request, one response. Progress
// is advisory only.
func (s *Service) runSingleShot(ctx context.Context, task *taskman.Task, req Request) error {
	if err := taskman.CheckCanceled(ctx); err != nil {
		return err
	}
	task.SetStatus(taskman.StatusGenerating)
	s.setProgress(task, progressSubmitted)

	refs := s.resolveReferences(ctx, req.ReferenceAssetIDs)

	var data []byte
	var mimeType string
	switch req.MediaType {
	case taskman.MediaAudio:
		asset, err := s.audios.Generate(ctx, audio.GenerateRequest{Prompt: req.Prompt, References: refs})
		if err != nil {
			return err
		}
		data, mimeType = asset.Data, asset.MIMEType
	default:
		asset, err := s.images.Generate(ctx, image.GenerateRequest{
			Prompt:      req.Prompt,
			AspectRatio: req.AspectRatio,
			References:  refs,
		})
		if err != nil {
			return err
		}
		data, mimeType = asset.Data, asset.MIMEType
	}
	s.setProgress(task, progressResponded)

	return s.commitResult(ctx, task, mimeType, data)
}

// runVideo handles the long-running pipeline: submit, poll on a fixed
// cadence up to the budget, download. The cancellation signal is checked
// before the remote call, after every polling round trip, and before the
// result download.
func (s *Service) runVideo(ctx context.Context, task *taskman.Task, req Request) error {
	if err := taskman.CheckCanceled(ctx); err != nil {
		return err
	}
	task.SetStatus(taskman.StatusGenerating)

	refs := s.resolveReferences(ctx, req.ReferenceAssetIDs)
	var ref *genai.Reference
	if len(refs) > 0 {
		ref = &refs[0]
	}

	op, err := s.videos.Submit(ctx, video.GenerateRequest{Prompt: req.Prompt, Reference: ref})
	if err != nil {
		return err
	}
	s.setProgress(task, progressSubmitted)
	task.SetStatus(taskman.StatusPolling)

	var fileURI string
	done := false
	for i := 1; i <= s.cfg.MaxPolls; i++ {
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
		status, err := s.videos.Poll(ctx, video.Operation{Name: op.Name})
		if err != nil {
			return err
		}
		if err := taskman.CheckCanceled(ctx); err != nil {
			return err
		}
		if status.ErrorMessage != "" {
			return &FailedError{Message: status.ErrorMessage}
		}
		s.setProgress(task, progressSubmitted+progressPollSpan*i/s.cfg.MaxPolls)
		if status.Done {
			fileURI = status.FileURI
			done = true
			break
		}
	}
	if !done {
		return ErrTimeout
	}

	if err := taskman.CheckCanceled(ctx); err != nil {
		return err
	}
	asset, err := s.videos.Download(ctx, fileURI)
	if err != nil {
		return err
	}
	s.setProgress(task, progressDownloaded)

	return s.commitResult(ctx, task, asset.MIMEType, asset.Data)
}

// commitResult persists the generated bytes and flips the placeholder to
// ready. Persistence failures degrade rather than fail: the asset store keeps
// the bytes reachable in memory and the layer still completes.
//
// Two races end with the stored asset discarded instead of committed: a
// cancel that lands during the durable write, and a duplicate start that
// replaced this task mid-write. In both cases the result belongs to no live
// layer and keeping the blob would leak it.
func (s *Service) commitResult(ctx context.Context, task *taskman.Task, mimeType string, data []byte) error {
	if err := taskman.CheckCanceled(ctx); err != nil {
		return err
	}
	storeCtx := context.WithoutCancel(ctx)
	res, err := s.assets.StoreAsset(storeCtx, assets.EncodeDataURI(mimeType, data))
	if err != nil {
		return err
	}
	if err := taskman.CheckCanceled(ctx); err != nil {
		s.assets.DeleteAsset(storeCtx, res.ID)
		return err
	}
	if !res.Durable {
		s.logger.Warn().Str("layer_id", task.LayerID).Msg("generated asset kept in memory only")
	}

	task.SetProgress(100)
	if !s.tasks.Complete(task) {
		s.assets.DeleteAsset(storeCtx, res.ID)
		s.logger.Debug().Str("layer_id", task.LayerID).Str("task_id", task.TaskID).Msg("result discarded, task no longer current")
		return nil
	}
	s.doc.Update(task.LayerID, canvas.Patch{
		Status:    canvas.StatusPatch(canvas.LayerStatusReady),
		AssetID:   canvas.StringPatch(res.ID),
		HandleURL: canvas.StringPatch(res.Handle),
		Progress:  canvas.IntPatch(100),
	})
	s.logger.Info().Str("layer_id", task.LayerID).Str("asset_id", res.ID).Msg("generation completed")
	return nil
}

// finishFailure retires the task and settles the layer. Cancellation is
// silent: Retire removes task and placeholder only if this task is still the
// layer's current one — after an explicit Cancel both are already gone, and
// after a duplicate Start the layer belongs to the replacement task and must
// survive. Everything else marks the layer with a user-visible error state,
// again only while this task is still current.
func (s *Service) finishFailure(task *taskman.Task, err error) {
	if errors.Is(err, taskman.ErrCanceled) || errors.Is(err, context.Canceled) {
		s.tasks.Retire(task)
		s.logger.Debug().Str("layer_id", task.LayerID).Msg("generation canceled")
		return
	}

	if !s.tasks.Fail(task) {
		s.logger.Debug().Str("layer_id", task.LayerID).Str("task_id", task.TaskID).Msg("failure discarded, task no longer current")
		return
	}
	s.doc.Update(task.LayerID, canvas.Patch{
		Status: canvas.StatusPatch(canvas.LayerStatusError),
		Error:  canvas.StringPatch(userMessage(err)),
	})
	s.logger.Error().Err(err).Str("layer_id", task.LayerID).Msg("generation failed")
}

func userMessage(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "generation timed out"
	}
	var failed *FailedError
	if errors.As(err, &failed) {
		return failed.Message
	}
	return fmt.Sprintf("generation failed: %v", err)
}

// resolveReferences turns stored asset ids back into encoded reference
// media. Unresolvable ids are skipped; references are best effort.
func (s *Service) resolveReferences(ctx context.Context, ids []string) []genai.Reference {
	if len(ids) == 0 {
		return nil
	}
	refs := make([]genai.Reference, 0, len(ids))
	for _, id := range ids {
		encoded, ok := s.assets.AssetBytes(ctx, id)
		if !ok {
			s.logger.Warn().Str("asset_id", id).Msg("reference asset missing, skipping")
			continue
		}
		mimeType, data, err := assets.DecodeDataURI(encoded)
		if err != nil {
			continue
		}
		refs = append(refs, genai.Reference{MIMEType: mimeType, Data: data})
	}
	return refs
}

// setProgress advances both the task record and the visible layer. The task
// registry enforces monotonicity; the layer mirrors whatever the task says.
func (s *Service) setProgress(task *taskman.Task, pct int) {
	task.SetProgress(pct)
	if s.tasks.Get(task.LayerID) == task {
		s.doc.Update(task.LayerID, canvas.Patch{Progress: canvas.IntPatch(task.Progress())})
	}
}

func layerKind(media taskman.MediaType) canvas.LayerKind {
	switch media {
	case taskman.MediaVideo:
		return canvas.LayerKindVideo
	case taskman.MediaAudio:
		return canvas.LayerKindAudio
	default:
		return canvas.LayerKindImage
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return ctx.Err()
	}
}
