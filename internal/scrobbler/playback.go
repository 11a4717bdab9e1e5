package scrobbler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

type eventKind int

const (
	eventPlay eventKind = iota
	eventStop
)

// event is a caller observation delivered to the playback goroutine.
type event struct {
	kind  eventKind
	track Track
}

// PlaybackState is a point-in-time view of the state machine.
type PlaybackState struct {
	Track     *Track
	Paused    bool
	Scrobbled bool
}

// playback turns play/stop observations into scrobble records. All state is
// owned by the goroutine in run; snapshot is the only cross-goroutine view.
type playback struct {
	queue  *Queue
	clock  Clock
	timer  *eligibilityTimer
	logger zerolog.Logger

	events  chan event
	fired   chan uint64
	stopped chan struct{}

	tracking  bool
	current   Track
	paused    bool
	scrobbled bool

	mu       sync.Mutex
	snapshot PlaybackState
}

func newPlayback(queue *Queue, clock Clock, buffer int, logger zerolog.Logger) *playback {
	p := &playback{
		queue:   queue,
		clock:   clock,
		logger:  logger.With().Str("component", "playback").Logger(),
		events:  make(chan event, buffer),
		fired:   make(chan uint64, 1),
		stopped: make(chan struct{}),
	}
	p.timer = newEligibilityTimer(clock, p.onFire)
	return p
}

// onFire runs on the clock's goroutine.
func (p *playback) onFire(gen uint64) {
	select {
	case p.fired <- gen:
	case <-p.stopped:
	}
}

// run processes events one at a time until ctx is cancelled. Cancellation
// wins over pending events; the current track's progress is discarded.
func (p *playback) run(ctx context.Context) error {
	defer close(p.stopped)
	defer p.timer.abandon()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.events:
			p.handle(ev)
		case gen := <-p.fired:
			p.eligible(gen)
		}
	}
}

func (p *playback) handle(ev event) {
	switch ev.kind {
	case eventPlay:
		p.play(ev.track)
	case eventStop:
		p.stop()
	}
	p.publish()
}

func (p *playback) play(t Track) {
	if p.tracking && p.current.SameAs(t) {
		if !p.paused {
			return
		}
		p.paused = false
		p.timer.resume()
		p.logger.Debug().
			Str("track", t.Name).
			Dur("played", p.timer.elapsed()).
			Msg("Resumed")
		return
	}

	if p.tracking && !p.scrobbled {
		p.logger.Debug().
			Str("track", p.current.Name).
			Dur("played", p.timer.elapsed()).
			Msg("Track abandoned before eligibility")
	}

	p.current = p.timer.start(t)
	p.tracking = true
	p.paused = false
	p.scrobbled = false

	log := p.logger.Info().
		Str("track", t.Name).
		Str("artist", t.Artist).
		Dur("duration", t.Duration)
	if !IsEligible(t.Duration) {
		log = log.Bool("too_short", true)
	}
	log.Msg("Track changed")

	p.queue.SetNowPlaying(p.current)
}

func (p *playback) stop() {
	// Once scrobbled the timer is inert and a stop changes nothing.
	if !p.tracking || p.paused || p.scrobbled {
		return
	}
	p.paused = true
	p.timer.pause()
	p.logger.Debug().
		Str("track", p.current.Name).
		Dur("played", p.timer.elapsed()).
		Msg("Paused")
}

func (p *playback) eligible(gen uint64) {
	track, ok := p.timer.expire(gen)
	if !ok || !p.tracking || p.scrobbled {
		return
	}
	p.scrobbled = true
	p.publish()

	rec := NewRecord(track, p.clock.Now())
	if err := p.queue.Enqueue(rec); err != nil {
		lvl := p.logger.Error()
		if errors.Is(err, ErrDuplicate) {
			lvl = p.logger.Debug()
		}
		lvl.Err(err).Str("track", track.Name).Msg("Failed to queue scrobble")
		return
	}

	p.logger.Info().
		Str("track", track.Name).
		Str("artist", track.Artist).
		Str("id", rec.ID).
		Msg("Track eligible, queued for scrobbling")
}

func (p *playback) publish() {
	s := PlaybackState{Paused: p.paused, Scrobbled: p.scrobbled}
	if p.tracking {
		t := p.current
		s.Track = &t
	}
	p.mu.Lock()
	p.snapshot = s
	p.mu.Unlock()
}

func (p *playback) state() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}
