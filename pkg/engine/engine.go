// Package engine owns the process-wide registry of live jobs and dispatches
// the four external commands (start, pause, cancel, retry_merge) to the
// right per-job supervisor, then drives the muxer once a supervisor reports
// a job ready to merge. It is grounded on the teacher's
// cmd/downloader.Download (context-cancellation-on-signal orchestration of
// a one-shot run), generalized from a single process-lifetime download into
// a long-lived registry that can start/pause/cancel/retry many jobs across
// their full lifecycle (spec.md §4.5).
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"streamengine/pkg/constants"
	"streamengine/pkg/engineerr"
	"streamengine/pkg/events"
	"streamengine/pkg/model"
	"streamengine/pkg/muxer"
	"streamengine/pkg/playlist"
	"streamengine/pkg/segment"
	"streamengine/pkg/store"
	"streamengine/pkg/supervisor"

	"github.com/rs/zerolog"
)

// Engine is the process-wide registry of live jobs (spec.md §4.5).
type Engine struct {
	st              store.Store
	sink            events.Sink
	mux             *muxer.Muxer
	segmentFetcher  *segment.Fetcher
	playlistFetcher *playlist.Fetcher
	log             zerolog.Logger

	mu     sync.Mutex
	active map[string]*supervisor.Supervisor
}

// New builds an Engine from its collaborators.
func New(st store.Store, sink events.Sink, mux *muxer.Muxer, segmentFetcher *segment.Fetcher, playlistFetcher *playlist.Fetcher, log zerolog.Logger) *Engine {
	return &Engine{
		st:              st,
		sink:            sink,
		mux:             mux,
		segmentFetcher:  segmentFetcher,
		playlistFetcher: playlistFetcher,
		log:             log,
		active:          make(map[string]*supervisor.Supervisor),
	}
}

// Start begins or resumes a job (spec.md §6: "begin or resume; errors if
// job absent or has no segments"). A job already downloading is not
// started twice: the second call is a no-op (spec.md §4.5).
func (e *Engine) Start(ctx context.Context, id string) error {
	job, err := e.st.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: start %s: %w", id, err)
	}
	if len(job.Segments) == 0 {
		return fmt.Errorf("engine: start %s: job has no segments", id)
	}

	e.mu.Lock()
	if _, running := e.active[id]; running {
		e.mu.Unlock()
		return nil
	}
	sup := supervisor.New(job, e.st, e.sink, e.segmentFetcher)
	e.active[id] = sup
	e.mu.Unlock()

	go e.run(context.Background(), id, job, sup)
	return nil
}

func (e *Engine) run(ctx context.Context, id string, job *model.Job, sup *supervisor.Supervisor) {
	defer func() {
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
	}()

	if err := sup.Run(ctx); err != nil {
		if !engineerr.IsCancellation(err) {
			e.log.Warn().Str("job_id", id).Err(err).Msg("supervisor run ended with an error")
		}
		return
	}

	updated, err := e.st.GetJob(ctx, id)
	if err != nil {
		e.log.Warn().Str("job_id", id).Err(err).Msg("reading job after supervisor run")
		return
	}
	if updated.Status != model.StatusMerging {
		return // paused mid-run; nothing further to do here
	}

	e.merge(ctx, updated)
}

func (e *Engine) merge(ctx context.Context, job *model.Job) {
	result, mergeErr := e.mux.Merge(ctx, job.ID, job.OutputDir, job.Filename, job.TotalSegments, constants.DefaultContainerExt, func(p float64) {
		e.sink.Emit(events.MergeProgressEvent(job.ID, p))
	})

	if errors.Is(mergeErr, muxer.ErrNoSegmentsToMerge) {
		// Reconstruction found nothing to merge: leave the job record as it
		// is rather than flipping it to completed or error (spec.md §9).
		e.sink.Emit(events.StatusEvent(job.ID, job.Status, "no segment files found to merge; nothing to do"))
		return
	}

	err := e.st.UpdateJob(ctx, job.ID, func(j *model.Job) {
		j.Status = model.StatusCompleted
		if mergeErr != nil {
			j.ErrorMessage = mergeErr.Error()
			return
		}
		j.OutputFile = result.OutputPath
		j.Duration = result.Duration
		j.ErrorMessage = ""
	})
	if err != nil {
		e.log.Warn().Str("job_id", job.ID).Err(err).Msg("recording merge result")
		return
	}

	if mergeErr != nil {
		e.sink.Emit(events.ErrorStatusEvent(job.ID, model.StatusCompleted, mergeErr.Error()))
		return
	}
	e.sink.Emit(events.CompletedStatusEvent(job.ID, result.OutputPath, "merge complete"))
}

// Pause requests the active supervisor for id stop at the next checkpoint.
// It is not an error when the job is not currently downloading (spec.md §6).
func (e *Engine) Pause(id string) error {
	e.mu.Lock()
	sup, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	sup.Pause()
	return nil
}

// Cancel stops the active supervisor for id (if any), removes the job from
// the registry, and marks it cancelled (spec.md §4.3, §6: "idempotent").
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	sup, ok := e.active[id]
	delete(e.active, id)
	e.mu.Unlock()

	if ok {
		sup.Cancel()
	}

	err := e.st.UpdateJob(ctx, id, func(j *model.Job) {
		j.Status = model.StatusCancelled
	})
	if err != nil {
		return fmt.Errorf("engine: cancel %s: %w", id, err)
	}
	e.sink.Emit(events.StatusEvent(id, model.StatusCancelled, "cancelled by operator"))
	return nil
}

// RetryMerge re-invokes the muxer for a job whose downloads already
// finished (spec.md §4.3, §6: "errors unless status is completed or
// error"). If the in-memory segment-file list was lost (typical after a
// process restart), it is reconstructed by probing deterministic paths.
func (e *Engine) RetryMerge(ctx context.Context, id string) error {
	job, err := e.st.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: retry_merge %s: %w", id, err)
	}
	if job.Status != model.StatusCompleted && job.Status != model.StatusError {
		return fmt.Errorf("engine: retry_merge %s: status must be completed or error, got %s", id, job.Status)
	}

	e.merge(ctx, job)
	return nil
}
