package constants

import (
	"sync"

	"streamengine/pkg/config"
)

var (
	globalConfig *config.Config
	configOnce   sync.Once
	configError  error
)

// GetConfig loads the process-wide configuration exactly once and returns
// the same instance on every subsequent call.
func GetConfig() (*config.Config, error) {
	configOnce.Do(func() {
		globalConfig, configError = config.Load()
	})
	return globalConfig, configError
}

// MustGetConfig is GetConfig for call sites that cannot propagate an error
// (engine construction is expected to fail fast at startup, per spec.md §9).
func MustGetConfig() *config.Config {
	cfg, err := GetConfig()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	return cfg
}

const (
	DefaultThreads         = 4
	MaxConcurrentDownloads = 3

	HTTPUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

	// SegmentAttemptTimeout is the per-attempt HTTP deadline for a segment GET (spec.md §4.2).
	SegmentAttemptTimeout = 15 // seconds
	// SegmentMaxAttempts is the number of attempts per segment before it is reported failed.
	SegmentMaxAttempts = 3
	// SegmentMaxRedirects bounds redirect following for a segment GET.
	SegmentMaxRedirects = 5
	// SegmentBackoffCapMillis caps the inter-attempt sleep at 5s (spec.md §4.2).
	SegmentBackoffCapMillis = 5000

	// PlaylistFetchTimeout is the deadline for resolving a playlist document.
	PlaylistFetchTimeout = 15 // seconds

	// DefaultContainerExt is the target container extension the muxer
	// produces for every job.
	DefaultContainerExt = "mp4"

	// CompletionMinorityFraction is the 98% threshold in the completion rule (spec.md §4.3).
	CompletionMinorityFraction = 0.98
	// CompletionFailedFloor is the minimum tolerated failed-segment count regardless of total.
	CompletionFailedFloor = 2
	// CompletionFailedFraction is the tolerated failed-segment fraction of total.
	CompletionFailedFraction = 0.02
)
