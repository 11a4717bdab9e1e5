package scrobbler

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Track is the metadata of a single play. StartedAt is stamped by the
// engine when playback begins; callers leave it zero.
type Track struct {
	Name        string
	Artist      string
	Album       string
	AlbumArtist string
	TrackNumber int
	MBID        string
	Duration    time.Duration
	StartedAt   time.Time
}

// Validate reports whether the track carries the fields Last.fm requires.
func (t Track) Validate() error {
	if strings.TrimSpace(t.Artist) == "" {
		return fmt.Errorf("%w: artist is required", ErrInvalidTrack)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTrack)
	}
	if t.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidTrack)
	}
	return nil
}

// SameAs reports whether both tracks are the same logical track. Duration
// and timestamps are ignored so that a re-reported track resumes instead of
// restarting.
func (t Track) SameAs(other Track) bool {
	return t.Name == other.Name &&
		t.Artist == other.Artist &&
		t.Album == other.Album
}

// normalized drops an MBID that is not a valid UUID, the same check
// Last.fm applies before matching it.
func (t Track) normalized() Track {
	if t.MBID == "" {
		return t
	}
	if _, err := uuid.Parse(t.MBID); err != nil {
		t.MBID = ""
	}
	return t
}

func (t Track) key() string {
	return t.Artist + "\x00" + t.Name + "\x00" + t.Album + "\x00" +
		fmt.Sprint(t.StartedAt.Unix())
}

// RecordState is the lifecycle position of a queued scrobble.
type RecordState int

const (
	StatePending RecordState = iota
	StateInFlight
	StateFailed
	StateScrobbled
)

func (s RecordState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in-flight"
	case StateFailed:
		return "failed"
	case StateScrobbled:
		return "scrobbled"
	default:
		return "unknown"
	}
}

// Record is a Track waiting in the queue together with its retry
// bookkeeping.
type Record struct {
	ID         string
	Track      Track
	State      RecordState
	Attempts   int
	Reason     string
	EnqueuedAt time.Time
}

// NewRecord wraps an eligible track in a fresh pending record.
func NewRecord(t Track, now time.Time) Record {
	return Record{
		ID:         uuid.NewString(),
		Track:      t.normalized(),
		State:      StatePending,
		EnqueuedAt: now,
	}
}
