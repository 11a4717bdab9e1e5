package scrobbler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// playbackHarness drives a playback machine synchronously: events are
// handled on the test goroutine and timer fires are drained after every
// clock advance.
type playbackHarness struct {
	t     *testing.T
	p     *playback
	queue *Queue
	clock *fakeClock
}

func newPlaybackHarness(t *testing.T) *playbackHarness {
	t.Helper()
	clock := newFakeClock()
	queue := NewQueue(QueueConfig{Capacity: 100, MaxAttempts: 3}, clock.Now, nil)
	return &playbackHarness{
		t:     t,
		p:     newPlayback(queue, clock, 8, zerolog.Nop()),
		queue: queue,
		clock: clock,
	}
}

func (h *playbackHarness) play(t Track) { h.p.handle(event{kind: eventPlay, track: t}) }

func (h *playbackHarness) stop() { h.p.handle(event{kind: eventStop}) }

func (h *playbackHarness) advance(d time.Duration) {
	h.clock.Advance(d)
	for {
		select {
		case gen := <-h.p.fired:
			h.p.eligible(gen)
		default:
			return
		}
	}
}

func song(name string, d time.Duration) Track {
	return Track{Name: name, Artist: "Artist", Album: "Album", Duration: d}
}

func TestPlayback_ScenarioA_FiresAtHalfDuration(t *testing.T) {
	h := newPlaybackHarness(t)
	start := h.clock.Now()

	h.play(song("A", 200*time.Second))
	h.advance(99 * time.Second)
	require.Zero(t, h.queue.Len())

	h.advance(time.Second)
	records := h.queue.Snapshot()
	require.Len(t, records, 1)
	require.Equal(t, "A", records[0].Track.Name)
	require.Equal(t, start, records[0].Track.StartedAt)
	require.True(t, h.p.state().Scrobbled)
}

func TestPlayback_ScenarioB_CapsAtFourMinutes(t *testing.T) {
	h := newPlaybackHarness(t)

	h.play(song("Long", 600*time.Second))
	h.advance(239 * time.Second)
	require.Zero(t, h.queue.Len())

	h.advance(time.Second)
	require.Equal(t, 1, h.queue.Len())
}

func TestPlayback_ScenarioC_ShortTrackNeverScrobbles(t *testing.T) {
	h := newPlaybackHarness(t)

	h.play(song("Jingle", 20*time.Second))
	h.advance(24 * time.Hour)
	require.Zero(t, h.queue.Len())

	// Replaying the short track changes nothing either.
	h.stop()
	h.play(song("Jingle", 20*time.Second))
	h.advance(time.Hour)
	require.Zero(t, h.queue.Len())
}

func TestPlayback_ScenarioD_PauseAndResumeKeepsPlayedTime(t *testing.T) {
	h := newPlaybackHarness(t)
	start := h.clock.Now()

	h.play(song("A", 200*time.Second))
	h.advance(10 * time.Second)
	h.stop()
	require.True(t, h.p.state().Paused)

	h.advance(40 * time.Second)
	h.play(song("A", 200*time.Second))
	require.False(t, h.p.state().Paused)

	// 10s before the pause plus 89s after it.
	h.advance(89 * time.Second)
	require.Zero(t, h.queue.Len())

	h.advance(time.Second)
	records := h.queue.Snapshot()
	require.Len(t, records, 1)
	require.Equal(t, start, records[0].Track.StartedAt, "resume must not restamp the start")
}

func TestPlayback_RepeatedStopIsNoop(t *testing.T) {
	h := newPlaybackHarness(t)

	h.play(song("A", 200*time.Second))
	h.advance(30 * time.Second)
	h.stop()
	h.advance(10 * time.Second)
	h.stop()
	h.advance(10 * time.Second)
	h.play(song("A", 200*time.Second))

	h.advance(69 * time.Second)
	require.Zero(t, h.queue.Len())
	h.advance(time.Second)
	require.Equal(t, 1, h.queue.Len())
}

func TestPlayback_TrackChangeDiscardsOldTimer(t *testing.T) {
	h := newPlaybackHarness(t)

	h.play(song("A", 200*time.Second))
	h.advance(90 * time.Second)
	h.play(song("B", 200*time.Second))

	h.advance(99 * time.Second)
	require.Zero(t, h.queue.Len(), "A must not be scrobbled after the switch")

	h.advance(time.Second)
	records := h.queue.Snapshot()
	require.Len(t, records, 1)
	require.Equal(t, "B", records[0].Track.Name)
}

func TestPlayback_DifferentAlbumIsADifferentTrack(t *testing.T) {
	h := newPlaybackHarness(t)

	h.play(song("A", 200*time.Second))
	h.advance(90 * time.Second)

	other := song("A", 200*time.Second)
	other.Album = "Live"
	h.play(other)

	h.advance(20 * time.Second)
	require.Zero(t, h.queue.Len())
}

func TestPlayback_ScrobblesOncePerPlay(t *testing.T) {
	h := newPlaybackHarness(t)

	h.play(song("A", 60*time.Second))
	h.advance(30 * time.Second)
	require.Equal(t, 1, h.queue.Len())

	// Stop and resume after the scrobble are no-ops.
	h.stop()
	require.False(t, h.p.state().Paused)
	h.play(song("A", 60*time.Second))
	h.advance(time.Hour)
	require.Equal(t, 1, h.queue.Len())

	// Playing it again after another track is a new play.
	h.play(song("B", 60*time.Second))
	h.play(song("A", 60*time.Second))
	h.advance(30 * time.Second)
	require.Equal(t, 2, h.queue.Len())
}

func TestPlayback_StopWhileIdle(t *testing.T) {
	h := newPlaybackHarness(t)

	h.stop()
	state := h.p.state()
	require.Nil(t, state.Track)
	require.False(t, state.Paused)
}

func TestPlayback_PublishesNowPlayingHint(t *testing.T) {
	h := newPlaybackHarness(t)

	h.play(song("A", 200*time.Second))
	h.play(song("B", 200*time.Second))

	hint := h.queue.TakeNowPlaying()
	require.NotNil(t, hint)
	require.Equal(t, "B", hint.Name, "latest hint wins")
	require.False(t, hint.StartedAt.IsZero())

	// Resuming the same track is not a new hint.
	h.stop()
	h.play(song("B", 200*time.Second))
	require.Nil(t, h.queue.TakeNowPlaying())
}

func TestPlayback_RunStopsOnCancel(t *testing.T) {
	h := newPlaybackHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.p.run(ctx) }()

	h.p.events <- event{kind: eventPlay, track: song("A", 200*time.Second)}
	require.Eventually(t, func() bool { return h.p.state().Track != nil }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}

	// Fires after shutdown must not block the clock.
	h.p.onFire(1)
	h.p.onFire(2)
	require.Zero(t, h.queue.Len())
}
