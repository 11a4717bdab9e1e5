package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/scrobbled/internal/music"
	"github.com/jfmyers9/scrobbled/internal/scrobbler"
	"github.com/rs/zerolog"
)

// StatusFileName is the status file's name inside the data directory.
const StatusFileName = "status.json"

// defaultPersistInterval bounds how often position-only updates hit disk.
const defaultPersistInterval = 15 * time.Second

// Status is the daemon's view of playback, written for the now and tui
// commands.
type Status struct {
	Track        *music.Track  `json:"track,omitempty"`
	State        string        `json:"state"`
	Scrobbled    bool          `json:"scrobbled"`
	Pending      int           `json:"pending"`
	LastScrobble *LastScrobble `json:"last_scrobble,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// LastScrobble identifies the most recent record the service accepted.
type LastScrobble struct {
	Name   string    `json:"name"`
	Artist string    `json:"artist"`
	Album  string    `json:"album,omitempty"`
	At     time.Time `json:"at"`
}

// StatusFile manages the status with thread-safe access and persistence.
// Changes of track, play state or scrobble outcome are written at once;
// position updates are throttled to persistInterval.
type StatusFile struct {
	mu              sync.Mutex
	current         Status
	filePath        string
	persistInterval time.Duration
	lastPersist     time.Time
	dirty           bool
	now             func() time.Time
}

// NewStatusFile creates a StatusFile writing to filePath. An empty path
// keeps the status in memory only.
func NewStatusFile(filePath string) *StatusFile {
	return &StatusFile{
		current:         Status{State: music.StateStopped.String()},
		filePath:        filePath,
		persistInterval: defaultPersistInterval,
		now:             time.Now,
	}
}

// ReadStatus loads a status file written by a running daemon.
func ReadStatus(filePath string) (*Status, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}
	return &st, nil
}

// SetTrack records the latest poll result. A nil track means nothing is
// playing.
func (s *StatusFile) SetTrack(track *music.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := music.StateStopped
	if track != nil {
		state = track.State
	}
	if state == music.StateStopped {
		track = nil
	}

	changed := !sameTrack(s.current.Track, track) || s.current.State != state.String()
	if !sameTrack(s.current.Track, track) {
		s.current.Scrobbled = false
	}
	s.current.Track = track
	s.current.State = state.String()

	if changed {
		return s.persist()
	}
	return s.throttledPersist()
}

// SetEngine copies the engine's view of the current play and the queue.
func (s *StatusFile) SetEngine(stats scrobbler.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scrobbled := stats.Playback.Track != nil && stats.Playback.Scrobbled &&
		s.current.Track != nil && sameTitle(s.current.Track, stats.Playback.Track)

	if scrobbled == s.current.Scrobbled && stats.Pending == s.current.Pending {
		return nil
	}
	s.current.Scrobbled = scrobbled
	s.current.Pending = stats.Pending
	return s.persist()
}

// Observe folds an engine event into the status. The pending count is left
// to SetEngine.
func (s *StatusFile) Observe(ev scrobbler.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := ev.Record.Track
	switch ev.Kind {
	case scrobbler.EventQueued:
		if s.current.Track != nil && sameTitle(s.current.Track, &t) {
			s.current.Scrobbled = true
		}
	case scrobbler.EventScrobbled:
		s.current.LastScrobble = &LastScrobble{Name: t.Name, Artist: t.Artist, Album: t.Album, At: ev.At}
		s.current.LastError = ""
	case scrobbler.EventRetry:
		s.current.LastError = ev.Record.Reason
	case scrobbler.EventFailed, scrobbler.EventEvicted:
		s.current.LastError = fmt.Sprintf("%s - %s: %s", t.Artist, t.Name, ev.Record.Reason)
	}
	return s.persist()
}

// EventHandler returns a function suitable for scrobbler.WithEventHandler
// that records each event, logging write failures.
func (s *StatusFile) EventHandler(logger zerolog.Logger) func(scrobbler.Event) {
	return func(ev scrobbler.Event) {
		if err := s.Observe(ev); err != nil {
			logger.Warn().Err(err).Msg("Failed to write status")
		}
	}
}

// Get returns a copy of the current status
func (s *StatusFile) Get() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Flush writes pending throttled changes.
func (s *StatusFile) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persist()
}

// throttledPersist writes only when persistInterval has elapsed since the
// last write, otherwise it marks the status dirty.
// Must be called with lock held
func (s *StatusFile) throttledPersist() error {
	if s.now().Sub(s.lastPersist) < s.persistInterval {
		s.dirty = true
		return nil
	}
	return s.persist()
}

// persist saves the current status to disk
// Must be called with lock held
func (s *StatusFile) persist() error {
	s.current.UpdatedAt = s.now().UTC()
	if s.filePath == "" {
		s.dirty = false
		return nil
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmp, err := os.CreateTemp(dir, filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.filePath); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.lastPersist = s.now()
	s.dirty = false
	return nil
}

// sameTrack compares two tracks to determine if they're the same
func sameTrack(t1, t2 *music.Track) bool {
	if t1 == nil || t2 == nil {
		return t1 == t2
	}
	return t1.Name == t2.Name &&
		t1.Artist == t2.Artist &&
		t1.Album == t2.Album
}

func sameTitle(m *music.Track, t *scrobbler.Track) bool {
	return m.Name == t.Name && m.Artist == t.Artist && m.Album == t.Album
}
