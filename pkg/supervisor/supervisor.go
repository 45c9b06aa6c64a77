// Package supervisor owns a single job's download lifecycle: reconciling
// with whatever segments already exist on disk, fetching the rest under a
// bounded worker pool, and reporting progress through an events.Sink. It is
// grounded on the teacher's cmd/downloader.Download and
// pkg/media.VariantDownloader (context cancellation via signal-driven
// context, semaphore-bounded goroutine-per-segment fan-out), generalized
// from a channel-of-struct{} semaphore to golang.org/x/sync/semaphore.Weighted
// so the worker limit is the spec's threads setting instead of a
// process-global constant, and from VOD-only sequential scan into the
// pause/cancel/resume state machine spec.md §4.3 requires.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"streamengine/pkg/engineerr"
	"streamengine/pkg/events"
	"streamengine/pkg/model"
	"streamengine/pkg/segment"
	"streamengine/pkg/store"
	"streamengine/pkg/utils"
)

// Supervisor drives one job's downloading phase. Callers construct one per
// active job and call Run; Pause/Cancel are safe to call concurrently with
// Run from another goroutine.
type Supervisor struct {
	job     *model.Job
	st      store.Store
	sink    events.Sink
	fetcher *segment.Fetcher

	paused  atomic.Bool
	cancel  context.CancelFunc
	pauseCh chan struct{}
}

// New builds a Supervisor for job, which must already have Segments
// populated (spec.md §4.1, resolved before the job enters
// StatusDownloading). Run sets TotalSegments from len(Segments).
func New(job *model.Job, st store.Store, sink events.Sink, fetcher *segment.Fetcher) *Supervisor {
	return &Supervisor{job: job, st: st, sink: sink, fetcher: fetcher, pauseCh: make(chan struct{})}
}

// Pause cooperatively suspends Run at the next segment boundary, recording
// StatusPaused (spec.md §3, Lifecycle: downloading -> paused).
func (s *Supervisor) Pause() {
	if s.paused.CompareAndSwap(false, true) {
		close(s.pauseCh)
	}
}

// Cancel stops Run immediately; in-flight segment fetches are aborted via
// context cancellation (spec.md §3, Lifecycle: downloading -> cancelled).
func (s *Supervisor) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Run downloads every not-yet-present segment under a worker pool sized to
// job.Threads, reporting progress after each completion and returning once
// every missing segment has been attempted, the job is paused, or ctx is
// cancelled. Segments reconcileWithDisk finds already present are never
// re-requested or re-counted (spec.md §4.3, resume-idempotence).
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	missing, err := s.reconcileWithDisk(ctx)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(int64(max(1, s.job.Threads)))
	var wg sync.WaitGroup
	var failed int64

	start := time.Now()
	var thisRunDownloaded int64

	for _, index := range missing {
		segURL := s.job.Segments[index]

		select {
		case <-s.pauseCh:
			wg.Wait()
			return s.transitionPaused(ctx)
		case <-runCtx.Done():
			wg.Wait()
			return engineerr.New(engineerr.KindCancelRequested, s.job.ID, "run cancelled", runCtx.Err())
		default:
		}

		if err := sem.Acquire(runCtx, 1); err != nil {
			wg.Wait()
			return engineerr.New(engineerr.KindCancelRequested, s.job.ID, "run cancelled during acquire", err)
		}

		wg.Add(1)
		go func(index int, segmentURL string) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := s.fetcher.Fetch(runCtx, segmentURL, s.job.OutputDir, s.job.Filename, index)
			if err != nil {
				if engineerr.IsCancellation(err) {
					return
				}
				atomic.AddInt64(&failed, 1)
				return
			}

			downloadedThisRun := atomic.AddInt64(&thisRunDownloaded, 1)
			s.recordProgress(ctx, result.Bytes, start, downloadedThisRun, atomic.LoadInt64(&failed))
		}(index, segURL)
	}

	wg.Wait()

	select {
	case <-s.pauseCh:
		return s.transitionPaused(ctx)
	default:
	}
	if runCtx.Err() != nil {
		return engineerr.New(engineerr.KindCancelRequested, s.job.ID, "run cancelled", runCtx.Err())
	}

	return s.finish(ctx, atomic.LoadInt64(&failed))
}

// reconcileWithDisk creates the job's output directory if absent (spec.md
// §4.3 step 3) and returns the indices of segments not already present on
// disk with nonzero size, updating the job record with the reconciled
// counts.
func (s *Supervisor) reconcileWithDisk(ctx context.Context) ([]int, error) {
	if err := utils.EnsureDir(s.job.OutputDir); err != nil {
		return nil, engineerr.New(engineerr.KindStorage, s.job.ID, "creating output directory", err)
	}

	downloaded := 0
	var missing []int
	for i := range s.job.Segments {
		dest := model.SegmentPath(s.job.OutputDir, s.job.Filename, i)
		if segmentExists(dest) {
			downloaded++
		} else {
			missing = append(missing, i)
		}
	}

	err := s.st.UpdateJob(ctx, s.job.ID, func(j *model.Job) {
		j.TotalSegments = len(s.job.Segments)
		j.DownloadedSegments = downloaded
		j.Status = model.StatusDownloading
		j.Progress = model.ProgressPercent(downloaded, len(s.job.Segments))
	})
	if err != nil {
		return nil, err
	}
	return missing, nil
}

func (s *Supervisor) recordProgress(ctx context.Context, bytesWritten int64, start time.Time, thisRunDownloaded, failed int64) {
	var progress float64
	var speed float64
	var eta int64
	var downloaded int

	_ = s.st.UpdateJob(ctx, s.job.ID, func(j *model.Job) {
		j.DownloadedSegments++
		j.DownloadedBytes += bytesWritten
		downloaded = j.DownloadedSegments
		progress = model.ProgressPercent(j.DownloadedSegments, j.TotalSegments)
		elapsed := time.Since(start).Seconds()
		speed = model.Speed(j.DownloadedBytes, elapsed)
		eta = model.ETA(j.TotalSegments, j.DownloadedSegments, int(failed), elapsed, int(thisRunDownloaded))
		j.Progress = progress
		j.Speed = speed
		j.ETA = eta
	})

	job, err := s.st.GetJob(ctx, s.job.ID)
	if err != nil {
		return
	}
	s.sink.Emit(events.ProgressEvent(s.job.ID, progress, downloaded, speed, eta, job.DownloadedBytes))
}

func (s *Supervisor) transitionPaused(ctx context.Context) error {
	err := s.st.UpdateJob(ctx, s.job.ID, func(j *model.Job) {
		j.Status = model.StatusPaused
	})
	if err != nil {
		return err
	}
	s.sink.Emit(events.StatusEvent(s.job.ID, model.StatusPaused, "paused by operator"))
	return nil
}

func (s *Supervisor) finish(ctx context.Context, failed int64) error {
	job, err := s.st.GetJob(ctx, s.job.ID)
	if err != nil {
		return err
	}

	complete, ratio := model.CompletionThreshold(job.DownloadedSegments, int(failed), job.TotalSegments)
	if !complete {
		msg := fmt.Sprintf("only %d/%d segments downloaded, %d failed", job.DownloadedSegments, job.TotalSegments, failed)
		_ = s.st.UpdateJob(ctx, s.job.ID, func(j *model.Job) {
			j.Status = model.StatusError
			j.ErrorMessage = msg
		})
		s.sink.Emit(events.ErrorStatusEvent(s.job.ID, model.StatusError, msg))
		return engineerr.New(engineerr.KindSegmentExhausted, s.job.ID, msg, nil)
	}

	finalProgress := model.FinalProgress(ratio)
	err = s.st.UpdateJob(ctx, s.job.ID, func(j *model.Job) {
		j.Status = model.StatusMerging
		j.Progress = finalProgress
	})
	if err != nil {
		return err
	}
	s.sink.Emit(events.StatusEvent(s.job.ID, model.StatusMerging, "all segments accounted for, starting merge"))
	return nil
}

func segmentExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
