package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentFileName(t *testing.T) {
	assert.Equal(t, "show_segment_0.ts", SegmentFileName("show", 0))
	assert.Equal(t, "show_segment_42.ts", SegmentFileName("show", 42))
}

func TestOutputFilePath_CoalescesDuplicateExtension(t *testing.T) {
	tests := []struct {
		name     string
		stem     string
		ext      string
		wantBase string
	}{
		{"no extension present", "event", "mp4", "event.mp4"},
		{"duplicate extension coalesced", "event.mp4", "mp4", "event.mp4"},
		{"duplicate extension different case", "event.MP4", ".mp4", "event.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OutputFilePath("/out", tt.stem, tt.ext)
			assert.Equal(t, "/out/"+tt.wantBase, got)
		})
	}
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0.0, ProgressPercent(0, 0))
	assert.Equal(t, 50.0, ProgressPercent(5, 10))
	assert.Equal(t, 33.33, ProgressPercent(1, 3))
	assert.Equal(t, 100.0, ProgressPercent(10, 10))
}

func TestSpeed(t *testing.T) {
	assert.Equal(t, 0.0, Speed(1024, 0))
	assert.Equal(t, 0.0, Speed(1024, -1))
	assert.Equal(t, 512.0, Speed(1024, 2))
}

func TestETA(t *testing.T) {
	assert.EqualValues(t, 0, ETA(10, 10, 0, 5, 5), "nothing remaining -> 0")
	assert.EqualValues(t, 0, ETA(10, 5, 0, 0, 0), "no progress yet -> 0")
	// 10 total, 4 done this run in 4s (1s/segment), 6 remaining -> 6s
	assert.EqualValues(t, 6, ETA(10, 4, 0, 4, 4))
}

func TestCompletionThreshold(t *testing.T) {
	t.Run("all segments present", func(t *testing.T) {
		complete, ratio := CompletionThreshold(100, 0, 100)
		require.True(t, complete)
		assert.Equal(t, 1.0, ratio)
	})

	t.Run("98 percent rule", func(t *testing.T) {
		complete, _ := CompletionThreshold(981, 0, 1000)
		assert.True(t, complete)
	})

	t.Run("below 98 percent with no failures is incomplete", func(t *testing.T) {
		complete, _ := CompletionThreshold(900, 0, 1000)
		assert.False(t, complete)
	})

	t.Run("failed-tolerance rule with small total", func(t *testing.T) {
		// 99 downloaded + 1 failed = 100 total, tolerance = max(2, ceil(100*0.02)) = 2
		complete, _ := CompletionThreshold(99, 1, 100)
		assert.True(t, complete)
	})

	t.Run("failed-tolerance rule exceeded", func(t *testing.T) {
		// 3 failed > tolerance of 2 for a small playlist
		complete, _ := CompletionThreshold(7, 3, 10)
		assert.False(t, complete)
	})

	t.Run("zero total never completes", func(t *testing.T) {
		complete, _ := CompletionThreshold(0, 0, 0)
		assert.False(t, complete)
	})
}

func TestFinalProgress(t *testing.T) {
	assert.Equal(t, 100.0, FinalProgress(1.0))
	assert.Equal(t, 100.0, FinalProgress(1.5), "clamped to 100")
	assert.Equal(t, 99.0, FinalProgress(0.99))
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCancelled, StatusError}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	nonTerminal := []Status{StatusQueued, StatusDownloading, StatusPaused, StatusMerging}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}
