package scrobbler

import (
	"time"
)

// Last.fm scrobbling rules.
const (
	// MinimumTrackDuration is the shortest track Last.fm accepts.
	MinimumTrackDuration = 30 * time.Second

	// ScrobblePercentage is the share of the track that must be played.
	ScrobblePercentage = 0.5

	// MaxScrobbleThreshold caps the required play time for long tracks.
	MaxScrobbleThreshold = 4 * time.Minute
)

// Threshold returns the played time after which a track of the given
// duration becomes eligible: min(4 minutes, duration/2). The second result
// is false for tracks that can never be scrobbled.
func Threshold(trackDuration time.Duration) (time.Duration, bool) {
	if !IsEligible(trackDuration) {
		return 0, false
	}
	threshold := time.Duration(float64(trackDuration) * ScrobblePercentage)
	if threshold > MaxScrobbleThreshold {
		threshold = MaxScrobbleThreshold
	}
	return threshold, true
}

// ShouldScrobble reports whether playedDuration of a track lasting
// trackDuration qualifies as a scrobble.
func ShouldScrobble(trackDuration, playedDuration time.Duration) bool {
	threshold, ok := Threshold(trackDuration)
	return ok && playedDuration >= threshold
}

// IsEligible filters out tracks that are too short to ever scrobble.
func IsEligible(trackDuration time.Duration) bool {
	return trackDuration >= MinimumTrackDuration
}
