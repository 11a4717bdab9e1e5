package scrobbler

import (
	"fmt"
	"sync"
	"time"
)

// Outcome is the result of a submission attempt for one record.
type Outcome int

const (
	OutcomeScrobbled Outcome = iota
	OutcomeRetryable
	OutcomePermanent
)

// QueueConfig bounds the scrobble queue.
type QueueConfig struct {
	// Capacity is the maximum number of records held. Zero means unbounded.
	Capacity int
	// MaxAttempts is the number of retryable failures tolerated before a
	// record fails permanently.
	MaxAttempts int
	// MaxAge drops records whose play started longer ago than this. Zero
	// disables the check.
	MaxAge time.Duration
}

// Queue holds scrobble records between the playback state machine, which
// appends, and the submission worker, which takes and resolves. It keeps
// insertion order so that the oldest plays are submitted first.
type Queue struct {
	cfg  QueueConfig
	now  func() time.Time
	emit func(Event)

	mu         sync.Mutex
	records    []*Record
	byID       map[string]*Record
	keys       map[string]string
	nowPlaying *Track

	ready chan struct{}
}

// NewQueue creates an empty queue. emit receives diagnostic events outside
// the queue's lock and may be nil.
func NewQueue(cfg QueueConfig, now func() time.Time, emit func(Event)) *Queue {
	if now == nil {
		now = time.Now
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &Queue{
		cfg:   cfg,
		now:   now,
		emit:  emit,
		byID:  make(map[string]*Record),
		keys:  make(map[string]string),
		ready: make(chan struct{}, 1),
	}
}

// Ready is signalled whenever new work is available.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Enqueue appends a pending record. A record for the same track and start
// time is rejected with ErrDuplicate. At capacity the oldest pending record
// is evicted; if every record is in flight the call fails with ErrQueueFull.
func (q *Queue) Enqueue(rec Record) error {
	q.mu.Lock()
	evicted, err := q.insert(rec)
	q.mu.Unlock()
	if err != nil {
		return err
	}

	now := q.now()
	if evicted != nil {
		q.emit(Event{Kind: EventEvicted, Record: *evicted, At: now})
	}
	rec.State = StatePending
	q.emit(Event{Kind: EventQueued, Record: rec, At: now})
	q.signal()
	return nil
}

// Restore loads previously persisted records as pending. Duplicates are
// skipped. It returns the number of records restored.
func (q *Queue) Restore(records []Record) int {
	var evicted []Record
	restored := 0

	q.mu.Lock()
	for _, rec := range records {
		ev, err := q.insert(rec)
		if err != nil {
			continue
		}
		if ev != nil {
			evicted = append(evicted, *ev)
		}
		restored++
	}
	q.mu.Unlock()

	now := q.now()
	for _, rec := range evicted {
		q.emit(Event{Kind: EventEvicted, Record: rec, At: now})
	}
	if restored > 0 {
		q.signal()
	}
	return restored
}

// insert must be called with mu held.
func (q *Queue) insert(rec Record) (*Record, error) {
	key := rec.Track.key()
	if _, ok := q.keys[key]; ok {
		return nil, fmt.Errorf("%w: %s - %s at %s", ErrDuplicate,
			rec.Track.Artist, rec.Track.Name, rec.Track.StartedAt.Format(time.RFC3339))
	}
	if _, ok := q.byID[rec.ID]; ok {
		return nil, fmt.Errorf("%w: id %s", ErrDuplicate, rec.ID)
	}

	var evicted *Record
	if q.cfg.Capacity > 0 && len(q.records) >= q.cfg.Capacity {
		idx := q.oldestPending()
		if idx < 0 {
			return nil, ErrQueueFull
		}
		old := *q.records[idx]
		old.State = StateFailed
		old.Reason = "evicted: queue full"
		evicted = &old
		q.removeAt(idx)
	}

	r := rec
	r.State = StatePending
	q.records = append(q.records, &r)
	q.byID[r.ID] = &r
	q.keys[key] = r.ID
	return evicted, nil
}

// TakeBatch marks up to max of the oldest pending records as in flight and
// returns copies of them. Records past MaxAge are failed instead of being
// returned.
func (q *Queue) TakeBatch(max int) []Record {
	if max <= 0 {
		return nil
	}

	now := q.now()
	var (
		batch   []Record
		expired []Record
	)

	q.mu.Lock()
	for i := 0; i < len(q.records); {
		r := q.records[i]
		if r.State != StatePending {
			i++
			continue
		}
		if q.expired(r, now) {
			r.State = StateFailed
			r.Reason = "too old to scrobble"
			expired = append(expired, *r)
			q.removeAt(i)
			continue
		}
		if len(batch) < max {
			r.State = StateInFlight
			batch = append(batch, *r)
		}
		i++
	}
	q.mu.Unlock()

	for _, rec := range expired {
		q.emit(Event{Kind: EventFailed, Record: rec, At: now})
	}
	return batch
}

func (q *Queue) expired(r *Record, now time.Time) bool {
	return q.cfg.MaxAge > 0 &&
		!r.Track.StartedAt.IsZero() &&
		now.Sub(r.Track.StartedAt) > q.cfg.MaxAge
}

// Resolve applies the outcome of a submission to an in-flight record.
// Scrobbled and permanently failed records leave the queue. A retryable
// failure returns the record to pending with one more attempt counted,
// unless that exceeds MaxAttempts.
func (q *Queue) Resolve(id string, outcome Outcome, reason string) error {
	q.mu.Lock()
	r, ok := q.byID[id]
	if !ok || r.State != StateInFlight {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}

	var kind EventKind
	switch outcome {
	case OutcomeScrobbled:
		r.State = StateScrobbled
		r.Reason = ""
		kind = EventScrobbled
	case OutcomeRetryable:
		r.Attempts++
		r.Reason = reason
		if q.cfg.MaxAttempts > 0 && r.Attempts > q.cfg.MaxAttempts {
			r.State = StateFailed
			r.Reason = fmt.Sprintf("gave up after %d attempts: %s", r.Attempts, reason)
			kind = EventFailed
		} else {
			r.State = StatePending
			kind = EventRetry
		}
	case OutcomePermanent:
		r.State = StateFailed
		r.Reason = reason
		kind = EventFailed
	default:
		q.mu.Unlock()
		return fmt.Errorf("unknown outcome %d", outcome)
	}

	snapshot := *r
	if r.State != StatePending {
		q.remove(r.ID)
	}
	q.mu.Unlock()

	q.emit(Event{Kind: kind, Record: snapshot, At: q.now()})
	return nil
}

// Snapshot returns every unresolved record in queue order. In-flight
// records are reported as pending since their outcome is unknown.
func (q *Queue) Snapshot() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Record, 0, len(q.records))
	for _, r := range q.records {
		rec := *r
		rec.State = StatePending
		out = append(out, rec)
	}
	return out
}

// Len returns the number of unresolved records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Pending returns the number of records waiting for submission.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, r := range q.records {
		if r.State == StatePending {
			n++
		}
	}
	return n
}

// SetNowPlaying stores the latest now-playing hint for the worker to
// forward. Older hints are overwritten.
func (q *Queue) SetNowPlaying(t Track) {
	q.mu.Lock()
	q.nowPlaying = &t
	q.mu.Unlock()
	q.signal()
}

// TakeNowPlaying returns and clears the pending now-playing hint.
func (q *Queue) TakeNowPlaying() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.nowPlaying
	q.nowPlaying = nil
	return t
}

func (q *Queue) oldestPending() int {
	for i, r := range q.records {
		if r.State == StatePending {
			return i
		}
	}
	return -1
}

func (q *Queue) remove(id string) {
	for i, r := range q.records {
		if r.ID == id {
			q.removeAt(i)
			return
		}
	}
}

func (q *Queue) removeAt(i int) {
	r := q.records[i]
	delete(q.byID, r.ID)
	delete(q.keys, r.Track.key())
	q.records = append(q.records[:i], q.records[i+1:]...)
}
