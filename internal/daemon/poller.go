package daemon

import (
	"context"
	"time"

	"github.com/jfmyers9/scrobbled/internal/music"
	"github.com/rs/zerolog"
)

// maxBackoffFactor caps how far the poll interval stretches while the
// source keeps failing.
const maxBackoffFactor = 8

// TrackUpdate is one observation of the music source
type TrackUpdate struct {
	Track *music.Track // nil when the player is closed or idle
	Err   error
}

// Poller polls a music source and reports what it sees
type Poller struct {
	source   music.Client
	interval time.Duration
	logger   zerolog.Logger

	failures int
}

// NewPoller creates a new Poller instance
func NewPoller(source music.Client, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		source:   source,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Run polls until ctx is cancelled. Consecutive source errors double the
// interval, up to maxBackoffFactor times the base; a good poll resets it.
func (p *Poller) Run(ctx context.Context, updates chan<- TrackUpdate) error {
	p.logger.Info().
		Dur("interval", p.interval).
		Msg("Starting poller")

	current := p.interval
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		p.poll(ctx, updates)

		if next := p.nextInterval(); next != current {
			current = next
			ticker.Reset(current)
			p.logger.Debug().Dur("interval", current).Msg("Poll interval changed")
		}

		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// nextInterval returns the wait before the next poll
func (p *Poller) nextInterval() time.Duration {
	d := p.interval
	for i := 0; i < p.failures && d < p.interval*maxBackoffFactor; i++ {
		d *= 2
	}
	return min(d, p.interval*maxBackoffFactor)
}

// poll queries the source once and sends the result
func (p *Poller) poll(ctx context.Context, updates chan<- TrackUpdate) {
	update := p.observe(ctx)
	if update.Err != nil {
		p.failures++
		p.logger.Debug().Err(update.Err).Int("failures", p.failures).Msg("Error getting current track")
	} else {
		p.failures = 0
		if t := update.Track; t != nil {
			p.logger.Debug().
				Str("track", t.Name).
				Str("artist", t.Artist).
				Str("state", t.State.String()).
				Dur("position", t.Position).
				Msg("Poll update")
		}
	}

	select {
	case updates <- update:
	case <-ctx.Done():
	}
}

// observe reads the current track. A player that is not running reports no
// track instead of an error, so the engine sees playback stop.
func (p *Poller) observe(ctx context.Context) TrackUpdate {
	running, err := p.source.IsRunning(ctx)
	if err != nil {
		return TrackUpdate{Err: err}
	}
	if !running {
		return TrackUpdate{}
	}

	track, err := p.source.GetCurrentTrack(ctx)
	if err != nil {
		return TrackUpdate{Err: err}
	}
	return TrackUpdate{Track: track}
}
