package engineerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(KindSegmentTransport, "job-1", "fetching segment 4", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "segment_transport")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIs(t *testing.T) {
	err := New(KindMuxRun, "job-1", "ffmpeg exited 1", nil)
	assert.True(t, Is(err, KindMuxRun))
	assert.False(t, Is(err, KindStorage))
	assert.False(t, Is(errors.New("plain"), KindMuxRun))
}

func TestKindOf(t *testing.T) {
	err := New(KindCleanup, "job-1", "rmdir failed", nil)
	assert.Equal(t, KindCleanup, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestIsCancellation(t *testing.T) {
	cancel := New(KindCancelRequested, "job-1", "stopped by operator", nil)
	assert.True(t, IsCancellation(cancel))

	transport := New(KindSegmentTransport, "job-1", "timeout", nil)
	assert.False(t, IsCancellation(transport))
}
