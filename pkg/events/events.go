// Package events defines the tagged-union progress/status messages the
// engine emits and a non-blocking sink that carries them to an external
// collaborator (the HTTP/WS API layer, out of core per spec.md §1).
package events

import (
	"streamengine/pkg/model"
)

// Kind discriminates the Event tagged union (spec.md §6).
type Kind string

const (
	KindDownloadStatus   Kind = "download_status"
	KindDownloadProgress Kind = "download_progress"
	KindMergeProgress    Kind = "merge_progress"
)

// Event is a discriminated variant rather than a generic bag-of-fields, per
// spec.md §9 ("Dynamic tagged messages"). Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind Kind
	JobID string

	// download_status
	Status       model.Status
	ErrorMessage string
	OutputFile   string
	Message      string

	// download_progress
	Progress           float64
	DownloadedSegments int
	Speed              float64
	ETA                int64
	DownloadedBytes    int64

	// merge_progress reuses Progress
}

// StatusEvent builds a download_status event.
func StatusEvent(jobID string, status model.Status, message string) Event {
	return Event{Kind: KindDownloadStatus, JobID: jobID, Status: status, Message: message}
}

// ErrorStatusEvent builds a download_status event carrying a failure cause.
func ErrorStatusEvent(jobID string, status model.Status, errMessage string) Event {
	return Event{Kind: KindDownloadStatus, JobID: jobID, Status: status, ErrorMessage: errMessage}
}

// CompletedStatusEvent builds a download_status event for a finished merge.
func CompletedStatusEvent(jobID, outputFile, message string) Event {
	return Event{Kind: KindDownloadStatus, JobID: jobID, Status: model.StatusCompleted, OutputFile: outputFile, Message: message}
}

// ProgressEvent builds a download_progress event.
func ProgressEvent(jobID string, progress float64, downloadedSegments int, speed float64, eta int64, downloadedBytes int64) Event {
	return Event{
		Kind:               KindDownloadProgress,
		JobID:              jobID,
		Progress:           progress,
		DownloadedSegments: downloadedSegments,
		Speed:              speed,
		ETA:                eta,
		DownloadedBytes:    downloadedBytes,
	}
}

// MergeProgressEvent builds a merge_progress event.
func MergeProgressEvent(jobID string, progress float64) Event {
	return Event{Kind: KindMergeProgress, JobID: jobID, Progress: progress}
}

// Sink receives engine events. Emit must never block the caller for long;
// implementations are expected to buffer and drop under backpressure
// (spec.md §5, "Suspension points").
type Sink interface {
	Emit(e Event)
}
