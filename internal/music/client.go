package music

import (
	"context"
	"fmt"
	"time"
)

// Track represents a music track with its metadata and current state
type Track struct {
	Name        string        // Track name/title
	Artist      string        // Artist name
	Album       string        // Album name
	AlbumArtist string        // Album artist, empty when the source does not know it
	TrackNumber int           // Position on the album, zero when unknown
	MBID        string        // MusicBrainz recording id, empty when unknown
	Duration    time.Duration // Total track duration
	Position    time.Duration // Current playback position
	State       PlayState     // Current playback state
}

// PlayState represents the current playback state of the music player
type PlayState int

const (
	StateStopped PlayState = iota // No track playing
	StatePlaying                  // Track is currently playing
	StatePaused                   // Track is paused
)

// String returns a human-readable representation of the PlayState
func (s PlayState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Client defines the interface for reading the state of a music player
type Client interface {
	// GetCurrentTrack returns the currently playing/paused track, or nil if stopped
	GetCurrentTrack(ctx context.Context) (*Track, error)

	// IsRunning checks if the music player is reachable
	IsRunning(ctx context.Context) (bool, error)
}

// Source kinds accepted by NewClient.
const (
	KindAppleScript = "applescript"
	KindMPD         = "mpd"
)

// Options configures the source built by NewClient.
type Options struct {
	MPDAddress  string
	MPDPassword string
}

// NewClient returns the track source named by kind.
func NewClient(kind string, opts Options) (Client, error) {
	switch kind {
	case KindAppleScript, "":
		return NewAppleScriptClient(), nil
	case KindMPD:
		return NewMPDClient(opts.MPDAddress, opts.MPDPassword), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want %s or %s)", kind, KindAppleScript, KindMPD)
	}
}
