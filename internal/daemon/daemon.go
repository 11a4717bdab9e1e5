package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jfmyers9/scrobbled/internal/music"
	"github.com/jfmyers9/scrobbled/internal/scrobbler"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds daemon configuration
type Config struct {
	PollInterval time.Duration // How often to poll the music source
}

// Engine is the part of the scrobble engine the daemon drives.
type Engine interface {
	NowPlaying(t *scrobbler.Track) error
	Stats() scrobbler.Stats
	Shutdown(ctx context.Context) error
}

// Daemon feeds the music poller into the scrobble engine and keeps the
// status file current.
type Daemon struct {
	config Config
	engine Engine
	status *StatusFile
	poller *Poller
	logger zerolog.Logger
}

// New creates a new Daemon instance. status may be nil.
func New(cfg Config, musicClient music.Client, engine Engine, status *StatusFile, logger zerolog.Logger) *Daemon {
	if status == nil {
		status = NewStatusFile("")
	}
	return &Daemon{
		config: cfg,
		engine: engine,
		status: status,
		poller: NewPoller(musicClient, cfg.PollInterval, logger),
		logger: logger.With().Str("component", "daemon").Logger(),
	}
}

// Run starts the daemon and blocks until ctx is done or a shutdown signal
// is received, then shuts the engine down.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	return d.run(ctx)
}

// run is the main daemon loop
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	updates := make(chan TrackUpdate, 10)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := d.poller.Run(gctx, updates); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		d.handleUpdates(gctx, updates)
		return nil
	})

	runErr := g.Wait()

	// Readers see the last polled position while the engine drains.
	if err := d.status.Flush(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to write status")
	}

	// The engine has its own grace period.
	shutdownErr := d.engine.Shutdown(context.Background())
	if shutdownErr != nil {
		d.logger.Error().Err(shutdownErr).Msg("Engine shutdown incomplete")
	}

	if err := d.status.SetEngine(d.engine.Stats()); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to write final status")
	}
	if err := d.status.SetTrack(nil); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to write final status")
	}

	d.logger.Info().Msg("Daemon stopped")
	return errors.Join(runErr, shutdownErr)
}

// handleUpdates processes track updates from the poller
func (d *Daemon) handleUpdates(ctx context.Context, updates <-chan TrackUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if update.Err != nil {
				// Source errors are expected while the player is closed
				d.logger.Debug().Err(update.Err).Msg("Track update error")
				continue
			}
			d.handleTrackUpdate(update.Track)
		}
	}
}

// handleTrackUpdate forwards a single poll result to the engine
func (d *Daemon) handleTrackUpdate(track *music.Track) {
	var err error
	if track == nil || track.State != music.StatePlaying {
		err = d.engine.NowPlaying(nil)
	} else {
		t := toScrobblerTrack(track)
		err = d.engine.NowPlaying(&t)
	}

	switch {
	case errors.Is(err, scrobbler.ErrInvalidTrack):
		d.logger.Debug().Err(err).Msg("Ignoring track")
	case errors.Is(err, scrobbler.ErrBusy):
		d.logger.Debug().Msg("Engine busy, dropped update")
	case err != nil:
		d.logger.Warn().Err(err).Msg("Failed to report playback")
	}

	if err := d.status.SetTrack(track); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to write status")
	}
	if err := d.status.SetEngine(d.engine.Stats()); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to write status")
	}
}

func toScrobblerTrack(t *music.Track) scrobbler.Track {
	return scrobbler.Track{
		Name:        t.Name,
		Artist:      t.Artist,
		Album:       t.Album,
		AlbumArtist: t.AlbumArtist,
		TrackNumber: t.TrackNumber,
		MBID:        t.MBID,
		Duration:    t.Duration,
	}
}
