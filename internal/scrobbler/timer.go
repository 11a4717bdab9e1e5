package scrobbler

import "time"

// eligibilityTimer measures played time for the current track and fires
// once when it crosses the scrobble threshold. It is owned by the playback
// goroutine and is not safe for concurrent use; only the scheduled
// callback runs elsewhere, and it just forwards its generation.
type eligibilityTimer struct {
	clock Clock
	fire  func(gen uint64)

	gen       uint64
	track     Track
	threshold time.Duration
	active    bool
	fired     bool
	paused    bool
	played    time.Duration
	resumedAt time.Time
	pending   Stopper
}

func newEligibilityTimer(clock Clock, fire func(gen uint64)) *eligibilityTimer {
	return &eligibilityTimer{clock: clock, fire: fire}
}

// start begins timing track and returns it with StartedAt stamped.
func (t *eligibilityTimer) start(track Track) Track {
	t.cancel()
	t.gen++

	now := t.clock.Now()
	track.StartedAt = now.UTC()

	t.track = track
	t.fired = false
	t.paused = false
	t.played = 0
	t.resumedAt = now
	t.threshold, t.active = Threshold(track.Duration)
	if t.active {
		t.schedule()
	}
	return track
}

func (t *eligibilityTimer) pause() {
	if !t.active || t.fired || t.paused {
		return
	}
	t.played += t.clock.Now().Sub(t.resumedAt)
	t.paused = true
	t.cancel()
}

func (t *eligibilityTimer) resume() {
	if !t.active || t.fired || !t.paused {
		return
	}
	t.paused = false
	t.resumedAt = t.clock.Now()
	t.schedule()
}

// elapsed returns played time, excluding paused intervals.
func (t *eligibilityTimer) elapsed() time.Duration {
	if !t.active || t.paused || t.fired {
		return t.played
	}
	return t.played + t.clock.Now().Sub(t.resumedAt)
}

// expire handles a callback for generation gen. It returns the stamped
// track when the threshold has really been reached, and goes inert.
func (t *eligibilityTimer) expire(gen uint64) (Track, bool) {
	if gen != t.gen || !t.active || t.fired {
		return Track{}, false
	}
	if !ShouldScrobble(t.track.Duration, t.elapsed()) {
		if !t.paused {
			t.schedule()
		}
		return Track{}, false
	}
	t.played = t.elapsed()
	t.fired = true
	t.cancel()
	return t.track, true
}

// abandon drops the current track without firing.
func (t *eligibilityTimer) abandon() {
	t.cancel()
	t.gen++
	t.active = false
}

func (t *eligibilityTimer) schedule() {
	t.cancel()
	remaining := t.threshold - t.elapsed()
	if remaining < 0 {
		remaining = 0
	}
	gen := t.gen
	t.pending = t.clock.AfterFunc(remaining, func() { t.fire(gen) })
}

func (t *eligibilityTimer) cancel() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
