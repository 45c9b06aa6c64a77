// Package model holds the persisted data shapes of the download engine:
// the Job record, the Settings record, and the pure arithmetic spec.md §3–§4
// defines over them (progress rounding, the completion rule, segment and
// output file naming).
package model

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"streamengine/pkg/constants"
)

// Status is one of the lifecycle states a Job record moves through
// (spec.md §3, Lifecycle).
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusMerging     Status = "merging"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// IsTerminal reports whether the status suppresses further progress
// mutation (spec.md §3, Invariants).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// Job is one user-initiated download of one media playlist (spec.md §3).
type Job struct {
	ID          string
	SourceURL   string
	PlaylistURL string
	Filename    string
	Status      Status
	Threads     int
	OutputDir   string
	Segments    []string // ordered, absolute segment URLs; immutable once set

	TotalSegments      int
	DownloadedSegments int
	FileSize           int64
	DownloadedBytes    int64
	Progress           float64
	Speed              float64 // bytes/sec
	ETA                int64   // seconds

	OutputFile   string
	Duration     float64
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settings is the singleton configuration record (spec.md §3).
type Settings struct {
	MaxConcurrentDownloads int
	DefaultThreads         int
	DefaultOutputPath      string
	AutoStart              bool
}

// SegmentFileName returns the deterministic on-disk name for a segment,
// the sole cross-restart resume channel besides the job record itself
// (spec.md §3, Invariants and §6).
func SegmentFileName(filenameStem string, index int) string {
	return fmt.Sprintf("%s_segment_%d.ts", filenameStem, index)
}

// SegmentPath joins an output directory with a segment's deterministic name.
func SegmentPath(outputDir, filenameStem string, index int) string {
	return filepath.Join(outputDir, SegmentFileName(filenameStem, index))
}

// ConcatManifestPath returns the path of the temporary concat manifest fed
// to the external muxer (spec.md §6).
func ConcatManifestPath(outputDir, filenameStem string) string {
	return filepath.Join(outputDir, filenameStem+"_concat.txt")
}

// OutputFilePath coalesces a duplicate trailing extension and returns the
// final container path (spec.md §3, §4.4 "Filename policy").
func OutputFilePath(outputDir, filenameStem, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	stem := filenameStem
	suffix := "." + ext
	if strings.HasSuffix(strings.ToLower(stem), strings.ToLower(suffix)) {
		stem = stem[:len(stem)-len(suffix)]
	}
	return filepath.Join(outputDir, stem+suffix)
}

// Round2 rounds to two decimal places, matching the `round2` function
// referenced throughout spec.md §4.3 and §8.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ProgressPercent computes the progress field from segment counts
// (spec.md §3: "progress is a percentage in [0,100] derived from
// downloaded_segments / total_segments").
func ProgressPercent(downloaded, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Round2(float64(downloaded) / float64(total) * 100)
}

// Speed computes bytes/sec, 0 when elapsed is non-positive (spec.md §4.3).
func Speed(downloadedBytes int64, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return float64(downloadedBytes) / elapsedSeconds
}

// ETA computes the remaining-time estimate from the average per-segment
// time observed so far this run (spec.md §4.3). segmentsThisRun is the
// count of segments completed since the run's start timestamp.
func ETA(totalSegments, downloadedSegments, failedCount int, elapsedSeconds float64, segmentsThisRun int) int64 {
	if segmentsThisRun <= 0 || elapsedSeconds <= 0 {
		return 0
	}
	remaining := totalSegments - downloadedSegments - failedCount
	if remaining <= 0 {
		return 0
	}
	avgSegmentTime := elapsedSeconds / float64(segmentsThisRun)
	return int64(math.Round(float64(remaining) * avgSegmentTime))
}

// CompletionThreshold reports whether a job with the given counts meets one
// of the three completion conditions in spec.md §4.3, and the ratio to
// record as the final progress percentage.
func CompletionThreshold(downloaded, failed, total int) (complete bool, ratio float64) {
	if total <= 0 {
		return false, 0
	}
	if downloaded >= total {
		return true, 1
	}
	ratioDownloaded := float64(downloaded) / float64(total)
	if ratioDownloaded >= constants.CompletionMinorityFraction && downloaded > 0 {
		return true, ratioDownloaded
	}
	tolerance := failedTolerance(total)
	if downloaded+failed >= total && failed <= tolerance {
		return true, ratioDownloaded
	}
	return false, ratioDownloaded
}

func failedTolerance(total int) int {
	pct := int(math.Ceil(float64(total) * constants.CompletionFailedFraction))
	if pct > constants.CompletionFailedFloor {
		return pct
	}
	return constants.CompletionFailedFloor
}

// FinalProgress clamps and rounds the completion-time progress value
// (spec.md §4.3: "record progress = min(100, round(ratio*100))").
func FinalProgress(ratio float64) float64 {
	p := math.Round(ratio * 100)
	if p > 100 {
		p = 100
	}
	return p
}
