package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"streamengine/pkg/config"
	"streamengine/pkg/events"
	"streamengine/pkg/model"
	"streamengine/pkg/muxer"
	"streamengine/pkg/playlist"
	"streamengine/pkg/segment"
	"streamengine/pkg/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	sink := events.NewChannelSink(64, zerolog.Nop())
	mux := muxer.New(&config.MuxerConfig{
		SearchPaths: []string{"/nonexistent/ffmpeg-for-tests"},
		BundledPath: "bin/ffmpeg-does-not-exist",
	}, zerolog.Nop())
	eng := New(st, sink, mux, segment.NewFetcher("test-agent/1.0"), playlist.NewFetcher("test-agent/1.0"), zerolog.Nop())
	return eng, st
}

func waitForTerminal(t *testing.T, st store.Store, id string, timeout time.Duration) *model.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := st.GetJob(context.Background(), id)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %s", id, timeout)
	return nil
}

func TestEngine_Start_CompletesAndMerges(t *testing.T) {
	mux := http.NewServeMux()
	for i := 0; i < 3; i++ {
		mux.HandleFunc(fmt.Sprintf("/seg%d.ts", i), func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("chunk"))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	eng, st := newTestEngine(t)
	job := &model.Job{
		ID:        "job-1",
		Filename:  "show",
		Threads:   2,
		OutputDir: t.TempDir(),
		Segments:  []string{srv.URL + "/seg0.ts", srv.URL + "/seg1.ts", srv.URL + "/seg2.ts"},
		Status:    model.StatusQueued,
	}
	require.NoError(t, st.CreateJob(context.Background(), job))

	require.NoError(t, eng.Start(context.Background(), "job-1"))

	final := waitForTerminal(t, st, "job-1", 2*time.Second)
	assert.Equal(t, model.StatusCompleted, final.Status)
	assert.NotEmpty(t, final.OutputFile)
}

func TestEngine_Start_IsIdempotentWhileRunning(t *testing.T) {
	block := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte("chunk"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() { close(block); srv.Close() })

	eng, st := newTestEngine(t)
	job := &model.Job{
		ID:        "job-2",
		Filename:  "show",
		Threads:   1,
		OutputDir: t.TempDir(),
		Segments:  []string{srv.URL + "/seg0.ts"},
		Status:    model.StatusQueued,
	}
	require.NoError(t, st.CreateJob(context.Background(), job))

	require.NoError(t, eng.Start(context.Background(), "job-2"))
	require.NoError(t, eng.Start(context.Background(), "job-2")) // second call must be a no-op
}

func TestEngine_Start_NoSegments(t *testing.T) {
	eng, st := newTestEngine(t)
	job := &model.Job{ID: "job-3", Status: model.StatusQueued}
	require.NoError(t, st.CreateJob(context.Background(), job))

	err := eng.Start(context.Background(), "job-3")
	assert.Error(t, err)
}

func TestEngine_Cancel(t *testing.T) {
	eng, st := newTestEngine(t)
	job := &model.Job{
		ID:        "job-4",
		Filename:  "show",
		OutputDir: t.TempDir(),
		Segments:  []string{"https://example.invalid/seg0.ts"},
		Status:    model.StatusQueued,
	}
	require.NoError(t, st.CreateJob(context.Background(), job))

	require.NoError(t, eng.Cancel(context.Background(), "job-4"))

	got, err := st.GetJob(context.Background(), "job-4")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	// idempotent
	assert.NoError(t, eng.Cancel(context.Background(), "job-4"))
}

func TestEngine_Pause_NotRunningIsNotAnError(t *testing.T) {
	eng, _ := newTestEngine(t)
	assert.NoError(t, eng.Pause("no-such-job"))
}

func TestEngine_RetryMerge_RequiresCompletedOrError(t *testing.T) {
	eng, st := newTestEngine(t)
	job := &model.Job{ID: "job-5", Status: model.StatusDownloading}
	require.NoError(t, st.CreateJob(context.Background(), job))

	err := eng.RetryMerge(context.Background(), "job-5")
	assert.Error(t, err)
}

func TestEngine_RetryMerge_ReconstructsFromDisk(t *testing.T) {
	eng, st := newTestEngine(t)
	dir := t.TempDir()
	job := &model.Job{
		ID:            "job-6",
		Filename:      "show",
		OutputDir:     dir,
		TotalSegments: 2,
		Status:        model.StatusError,
	}
	require.NoError(t, st.CreateJob(context.Background(), job))
	require.NoError(t, os.WriteFile(model.SegmentPath(dir, "show", 0), []byte("AAA"), 0644))
	require.NoError(t, os.WriteFile(model.SegmentPath(dir, "show", 1), []byte("BBB"), 0644))

	require.NoError(t, eng.RetryMerge(context.Background(), "job-6"))

	got, err := st.GetJob(context.Background(), "job-6")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.NotEmpty(t, got.OutputFile)
}

func TestEngine_RetryMerge_NoSegmentsIsNoOp(t *testing.T) {
	eng, st := newTestEngine(t)
	dir := t.TempDir()
	job := &model.Job{
		ID:            "job-7",
		Filename:      "show",
		OutputDir:     dir,
		TotalSegments: 2,
		Status:        model.StatusError,
		ErrorMessage:  "only 0/2 segments downloaded, 2 failed",
	}
	require.NoError(t, st.CreateJob(context.Background(), job))

	require.NoError(t, eng.RetryMerge(context.Background(), "job-7"))

	got, err := st.GetJob(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status, "a merge that finds nothing must not flip the job's status")
	assert.Empty(t, got.OutputFile)
}
