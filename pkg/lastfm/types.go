package lastfm

import (
	"time"
)

// Track represents a music track for scrobbling or now playing updates.
type Track struct {
	Artist      string // Required: Artist name
	Track       string // Required: Track name
	Album       string // Optional: Album name
	AlbumArtist string // Optional: Album artist (if different from track artist)
	Duration    int    // Optional: Track duration in seconds
	TrackNumber int    // Optional: Track number on album
	MBTrackID   string // Optional: MusicBrainz track ID
}

// Scrobble represents a single scrobble with timestamp.
type Scrobble struct {
	Track     Track     // The track being scrobbled
	Timestamp time.Time // When the track started playing
}

// Token represents an authentication token from auth.getToken.
type Token struct {
	Token string
}

// Session represents an authenticated session from auth.getSession or
// auth.getMobileSession.
type Session struct {
	Key        string // Session key for authenticated requests
	Username   string // Last.fm username
	Subscriber bool   // Whether user is a subscriber
}

// Codes reported in an ignoredMessage when Last.fm filters a scrobble.
const (
	IgnoredNone            = 0
	IgnoredArtist          = 1
	IgnoredTrack           = 2
	IgnoredTimestampTooOld = 3
	IgnoredTimestampTooNew = 4
	IgnoredDailyLimit      = 5
)

// IgnoredMessage explains why Last.fm ignored a scrobble. Code is zero for
// accepted scrobbles.
type IgnoredMessage struct {
	Code int
	Text string
}

// NowPlayingResponse represents the response from track.updateNowPlaying.
type NowPlayingResponse struct {
	Artist         string
	Track          string
	Album          string
	AlbumArtist    string
	IgnoredMessage IgnoredMessage
}

// ScrobbleResult is the per-item result within a track.scrobble response.
type ScrobbleResult struct {
	Artist         string
	Track          string
	Album          string
	Timestamp      int64
	IgnoredMessage IgnoredMessage
}

// Ignored reports whether Last.fm filtered this scrobble.
func (r ScrobbleResult) Ignored() bool {
	return r.IgnoredMessage.Code != IgnoredNone
}

// ScrobbleResponse represents the response from track.scrobble. Scrobbles
// holds one result per submitted item, in submission order.
type ScrobbleResponse struct {
	Accepted  int
	Ignored   int
	Scrobbles []ScrobbleResult
}
