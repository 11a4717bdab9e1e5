package scrobbler

import (
	"time"
)

// EventKind classifies a diagnostic event.
type EventKind int

const (
	// EventQueued is emitted when an eligible track enters the queue.
	EventQueued EventKind = iota
	// EventScrobbled is emitted when the service accepted a record.
	EventScrobbled
	// EventRetry is emitted when a record failed transiently and went back to pending.
	EventRetry
	// EventFailed is emitted when a record was dropped for good.
	EventFailed
	// EventEvicted is emitted when a full queue discarded its oldest pending record.
	EventEvicted
)

func (k EventKind) String() string {
	switch k {
	case EventQueued:
		return "queued"
	case EventScrobbled:
		return "scrobbled"
	case EventRetry:
		return "retry"
	case EventFailed:
		return "failed"
	case EventEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Event reports what happened to a record. Handlers run on the goroutine
// that caused the event and should return quickly.
type Event struct {
	Kind   EventKind
	Record Record
	At     time.Time
}
