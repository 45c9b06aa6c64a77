package events

import (
	"github.com/rs/zerolog"
)

// ChannelSink is a bounded, dropping event sink: Emit never blocks the
// caller. When the internal buffer is full the oldest unread event type is
// not evicted — the new event is simply dropped and logged, since a
// fetcher/supervisor goroutine must never stall on a slow consumer
// (spec.md §5, "the supervisor treats the event sink as non-blocking and
// best-effort").
type ChannelSink struct {
	ch      chan Event
	log     zerolog.Logger
	dropped uint64
}

// NewChannelSink creates a sink with the given buffer capacity. Capacity 0
// uses a reasonable default.
func NewChannelSink(capacity int, log zerolog.Logger) *ChannelSink {
	if capacity <= 0 {
		capacity = 256
	}
	return &ChannelSink{ch: make(chan Event, capacity), log: log}
}

// Emit never blocks: a full buffer drops the event.
func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
		s.dropped++
		s.log.Warn().Str("job_id", e.JobID).Str("kind", string(e.Kind)).Msg("event dropped, sink buffer full")
	}
}

// Events exposes the read side for a consumer (the out-of-core API layer
// in production; a test or CLI in this repo).
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Dropped returns the number of events dropped due to backpressure.
func (s *ChannelSink) Dropped() uint64 {
	return s.dropped
}

// Close closes the underlying channel. Callers must ensure no further Emit
// calls are made afterwards.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// NopSink discards every event; useful for tests that don't care about
// progress reporting.
type NopSink struct{}

func (NopSink) Emit(Event) {}
