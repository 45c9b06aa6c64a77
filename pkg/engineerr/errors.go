// Package engineerr defines the error taxonomy the engine uses to decide
// how a failure should be surfaced and whether a job transitions to
// StatusError or simply logs a per-segment warning (spec.md §8).
package engineerr

import (
	"errors"
	"fmt"
)

// Kind discriminates the class of failure a Job-level operation can hit.
type Kind string

const (
	// KindPlaylistParse covers malformed or unreachable playlist documents.
	KindPlaylistParse Kind = "playlist_parse"
	// KindSegmentTransport covers a single segment's HTTP/network failure
	// once its attempts end: retries exhausted, or a non-retriable HTTP
	// status that stops retrying early.
	KindSegmentTransport Kind = "segment_transport"
	// KindSegmentEmpty covers a 200 response with a zero-byte body.
	KindSegmentEmpty Kind = "segment_empty"
	// KindSegmentExhausted covers a job whose failed-segment count crossed
	// the completion-threshold tolerance (spec.md §4.3).
	KindSegmentExhausted Kind = "segment_exhausted"
	// KindMuxBinaryMissing covers an unresolvable muxer binary.
	KindMuxBinaryMissing Kind = "mux_binary_missing"
	// KindMuxRun covers a muxer binary invocation that exited non-zero.
	KindMuxRun Kind = "mux_run"
	// KindCleanup covers a failure removing a segment file or the concat
	// manifest after a merge.
	KindCleanup Kind = "cleanup"
	// KindStorage covers a metadata-store read/write failure, or a
	// filesystem setup failure (e.g. creating a job's output directory)
	// a store implementation depends on.
	KindStorage Kind = "storage"
	// KindCancelRequested is not a failure: it signals a cooperative stop.
	KindCancelRequested Kind = "cancel_requested"
)

// Error wraps an underlying cause with the Kind that decides engine
// behavior, keeping fmt.Errorf's %w chain intact via Unwrap.
type Error struct {
	Kind  Kind
	JobID string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an engineerr.Error for the given kind.
func New(kind Kind, jobID, msg string, cause error) *Error {
	return &Error{Kind: kind, JobID: jobID, Msg: msg, Cause: cause}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsCancellation reports whether err represents a cooperative cancellation
// rather than a genuine failure, so callers can skip marking a job errored.
func IsCancellation(err error) bool {
	return Is(err, KindCancelRequested)
}
