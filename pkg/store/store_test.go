package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"streamengine/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// implementations returns one fresh instance of each Store backend, so every
// test in this file runs against both without duplicating assertions.
func implementations(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func sampleJob(id string) *model.Job {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Job{
		ID:          id,
		SourceURL:   "https://example.com/video",
		PlaylistURL: "https://example.com/video/master.m3u8",
		Filename:    "video",
		Status:      model.StatusQueued,
		Threads:     4,
		OutputDir:   "/tmp/out/" + id,
		Segments:    []string{"https://example.com/seg0.ts", "https://example.com/seg1.ts"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestStore_CreateAndGetJob(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := sampleJob("job-1")

			require.NoError(t, s.CreateJob(ctx, job))

			got, err := s.GetJob(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, job.SourceURL, got.SourceURL)
			assert.Equal(t, job.Segments, got.Segments)
			assert.Equal(t, model.StatusQueued, got.Status)
		})
	}
}

func TestStore_GetJob_NotFound(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetJob(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_UpdateJob(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := sampleJob("job-2")
			require.NoError(t, s.CreateJob(ctx, job))

			err := s.UpdateJob(ctx, "job-2", func(j *model.Job) {
				j.Status = model.StatusDownloading
				j.DownloadedSegments = 1
				j.Progress = 50
			})
			require.NoError(t, err)

			got, err := s.GetJob(ctx, "job-2")
			require.NoError(t, err)
			assert.Equal(t, model.StatusDownloading, got.Status)
			assert.Equal(t, 1, got.DownloadedSegments)
			assert.Equal(t, 50.0, got.Progress)
		})
	}
}

func TestStore_UpdateJob_NotFound(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			err := s.UpdateJob(context.Background(), "missing", func(*model.Job) {})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ListJobs(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateJob(ctx, sampleJob("job-a")))
			require.NoError(t, s.CreateJob(ctx, sampleJob("job-b")))

			jobs, err := s.ListJobs(ctx)
			require.NoError(t, err)
			assert.Len(t, jobs, 2)
		})
	}
}

func TestStore_DeleteJob(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateJob(ctx, sampleJob("job-3")))

			require.NoError(t, s.DeleteJob(ctx, "job-3"))
			_, err := s.GetJob(ctx, "job-3")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, s.DeleteJob(ctx, "job-3"), ErrNotFound)
		})
	}
}

func TestStore_SettingsRoundTrip(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetSettings(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			settings := &model.Settings{
				MaxConcurrentDownloads: 3,
				DefaultThreads:         4,
				DefaultOutputPath:      "/data/out",
				AutoStart:              true,
			}
			require.NoError(t, s.SaveSettings(ctx, settings))

			got, err := s.GetSettings(ctx)
			require.NoError(t, err)
			assert.Equal(t, *settings, *got)

			settings.AutoStart = false
			require.NoError(t, s.SaveSettings(ctx, settings))
			got, err = s.GetSettings(ctx)
			require.NoError(t, err)
			assert.False(t, got.AutoStart)
		})
	}
}
