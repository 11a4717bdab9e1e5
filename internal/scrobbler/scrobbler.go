// Package scrobbler turns "now playing" observations into Last.fm scrobbles.
//
// A Scrobbler runs two goroutines. The playback goroutine measures how long
// the current track has been played and queues it once it is eligible. The
// submission worker drains the queue in batches and folds the service's
// answers back into it. NowPlaying never blocks, and all network I/O
// happens on the worker.
package scrobbler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jfmyers9/scrobbled/pkg/lastfm"
)

// APIConfig identifies the Last.fm account. Username and Password are only
// needed to renew an expired session.
type APIConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	SessionKey string
	Username   string
	Password   string
}

// Validate checks the fields the API client cannot work without.
func (c APIConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: API key is required", ErrConfiguration)
	}
	if strings.TrimSpace(c.APISecret) == "" {
		return fmt.Errorf("%w: API secret is required", ErrConfiguration)
	}
	base := c.BaseURL
	if base == "" {
		base = lastfm.DefaultBaseURL
	}
	if err := lastfm.ValidateBaseURL(base); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// Config holds the API account and the engine limits. Zero limits take
// their value from DefaultConfig.
type Config struct {
	API APIConfig

	BatchSize     int
	MaxAttempts   int
	QueueCapacity int
	EventBuffer   int

	RetryInterval time.Duration
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	SubmitTimeout time.Duration
	ShutdownGrace time.Duration
	MaxAge        time.Duration
}

// DefaultConfig returns the default engine limits with an empty account.
// MaxAttempts is sized so that retries keep going for the whole MaxAge
// window; a record is only given up on when Last.fm would reject it anyway.
func DefaultConfig() Config {
	c := Config{
		BatchSize:     lastfm.MaxBatchSize,
		QueueCapacity: 1000,
		EventBuffer:   64,
		RetryInterval: 30 * time.Second,
		BackoffMin:    5 * time.Second,
		BackoffMax:    5 * time.Minute,
		SubmitTimeout: 30 * time.Second,
		ShutdownGrace: 10 * time.Second,
		// Last.fm rejects plays older than two weeks.
		MaxAge: 14 * 24 * time.Hour,
	}
	c.MaxAttempts = RetryBudget(c.MaxAge, c.BackoffMin, c.BackoffMax)
	return c
}

// RetryBudget returns the number of retryable failures whose backoff waits,
// doubling from backoffMin and capped at backoffMax, add up to at least
// maxAge.
func RetryBudget(maxAge, backoffMin, backoffMax time.Duration) int {
	if maxAge <= 0 || backoffMin <= 0 || backoffMax < backoffMin {
		return 1
	}
	attempts := 0
	var total time.Duration
	for wait := backoffMin; total < maxAge; attempts++ {
		total += wait
		if wait < backoffMax {
			wait = min(wait*2, backoffMax)
		}
	}
	return attempts
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.BackoffMin == 0 {
		c.BackoffMin = d.BackoffMin
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	if c.MaxAge == 0 {
		c.MaxAge = d.MaxAge
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = RetryBudget(c.MaxAge, c.BackoffMin, c.BackoffMax)
	}
	return c
}

// Validate checks the account and the limits.
func (c Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	switch {
	case c.BatchSize < 1 || c.BatchSize > lastfm.MaxBatchSize:
		return fmt.Errorf("%w: batch size must be between 1 and %d", ErrConfiguration, lastfm.MaxBatchSize)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be positive", ErrConfiguration)
	case c.QueueCapacity < 1:
		return fmt.Errorf("%w: queue capacity must be positive", ErrConfiguration)
	case c.EventBuffer < 1:
		return fmt.Errorf("%w: event buffer must be positive", ErrConfiguration)
	case c.RetryInterval <= 0, c.SubmitTimeout <= 0, c.ShutdownGrace <= 0, c.MaxAge <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrConfiguration)
	case c.BackoffMin <= 0 || c.BackoffMax < c.BackoffMin:
		return fmt.Errorf("%w: backoff must satisfy 0 < min <= max", ErrConfiguration)
	}
	return nil
}

// Option customizes a Scrobbler.
type Option func(*options)

type options struct {
	client    Client
	clock     Clock
	logger    zerolog.Logger
	store     *Store
	handler   func(Event)
	onSession func(string)
}

// WithClient replaces the Last.fm client, mostly for tests.
func WithClient(c Client) Option {
	return func(o *options) { o.client = c }
}

// WithClock replaces the wall clock used by the eligibility timer.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore persists the queue in s. Pending records are restored from it
// by New and written back by Shutdown. The caller closes s.
func WithStore(s *Store) Option {
	return func(o *options) { o.store = s }
}

// WithEventHandler receives every queue event. It runs on the goroutine
// that caused the event.
func WithEventHandler(fn func(Event)) Option {
	return func(o *options) { o.handler = fn }
}

// WithSessionHandler is called with every session key obtained by
// re-authentication. It is ignored together with the default client when
// WithClient is used.
func WithSessionHandler(fn func(key string)) Option {
	return func(o *options) { o.onSession = fn }
}

// Stats is a snapshot of the engine for status displays.
type Stats struct {
	Queued   int
	Pending  int
	Playback PlaybackState
}

// Scrobbler is the engine's entry point.
type Scrobbler struct {
	cfg     Config
	logger  zerolog.Logger
	store   *Store
	handler func(Event)

	queue    *Queue
	playback *playback
	worker   *Worker

	cancel  context.CancelFunc
	done    chan struct{}
	waitErr error

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New validates cfg and starts the engine. It fails with ErrConfiguration
// when the account or the limits are invalid.
func New(cfg Config, opts ...Option) (*Scrobbler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: systemClock{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		lc, err := NewLastFMClient(cfg.API, o.logger, o.onSession)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		client = lc
	}

	s := &Scrobbler{
		cfg:     cfg,
		logger:  o.logger.With().Str("component", "scrobbler").Logger(),
		store:   o.store,
		handler: o.handler,
		done:    make(chan struct{}),
	}

	s.queue = NewQueue(QueueConfig{
		Capacity:    cfg.QueueCapacity,
		MaxAttempts: cfg.MaxAttempts,
		MaxAge:      cfg.MaxAge,
	}, o.clock.Now, s.dispatch)

	if s.store != nil {
		records, err := s.store.LoadPending(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to load pending scrobbles: %w", err)
		}
		if n := s.queue.Restore(records); n > 0 {
			s.logger.Info().Int("count", n).Msg("Restored pending scrobbles")
		}
	}

	s.playback = newPlayback(s.queue, o.clock, cfg.EventBuffer, o.logger)
	s.worker = NewWorker(s.queue, client, WorkerConfig{
		BatchSize:     cfg.BatchSize,
		RetryInterval: cfg.RetryInterval,
		BackoffMin:    cfg.BackoffMin,
		BackoffMax:    cfg.BackoffMax,
		SubmitTimeout: cfg.SubmitTimeout,
	}, o.logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.playback.run(gctx) })
	g.Go(func() error { return s.worker.Run(gctx) })
	go func() {
		s.waitErr = g.Wait()
		close(s.done)
	}()

	return s, nil
}

// NowPlaying reports the current track, or a stop when t is nil. It never
// blocks: when the event buffer is full the event is dropped and ErrBusy
// returned.
func (s *Scrobbler) NowPlaying(t *Track) error {
	if s.closed.Load() {
		return ErrClosed
	}

	ev := event{kind: eventStop}
	if t != nil {
		if err := t.Validate(); err != nil {
			return err
		}
		ev = event{kind: eventPlay, track: *t}
	}

	select {
	case s.playback.events <- ev:
		return nil
	case <-s.playback.stopped:
		return ErrClosed
	default:
		s.logger.Warn().Msg("Playback event buffer full, dropping event")
		return ErrBusy
	}
}

// Shutdown stops both goroutines and waits for them for at most the
// configured grace period or until ctx is done. A submission in progress is
// allowed to finish. Unresolved records are written to the store, if any.
// Later calls return the result of the first.
func (s *Scrobbler) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Scrobbler) shutdown(ctx context.Context) error {
	s.closed.Store(true)
	s.cancel()

	grace := time.NewTimer(s.cfg.ShutdownGrace)
	defer grace.Stop()

	var errs []error
	select {
	case <-s.done:
		if s.waitErr != nil {
			errs = append(errs, s.waitErr)
		}
	case <-grace.C:
		errs = append(errs, fmt.Errorf("%w after %s", ErrShutdownTimeout, s.cfg.ShutdownGrace))
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err()))
	}

	if s.store != nil {
		pending := s.queue.Snapshot()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.store.SavePending(sctx, pending); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist pending scrobbles: %w", err))
		} else {
			s.logger.Info().Int("count", len(pending)).Msg("Persisted pending scrobbles")
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Scrobbler stopped with errors")
	} else {
		s.logger.Debug().Msg("Scrobbler stopped")
	}
	return err
}

// Stats returns the queue depth and the playback state.
func (s *Scrobbler) Stats() Stats {
	return Stats{
		Queued:   s.queue.Len(),
		Pending:  s.queue.Pending(),
		Playback: s.playback.state(),
	}
}

// dispatch logs an event, mirrors it into the store and hands it to the
// handler.
func (s *Scrobbler) dispatch(ev Event) {
	rec := ev.Record
	log := s.logger.Debug()
	switch ev.Kind {
	case EventScrobbled:
		log = s.logger.Info()
	case EventFailed, EventEvicted:
		log = s.logger.Warn().Str("reason", rec.Reason)
	}
	log.Str("event", ev.Kind.String()).
		Str("id", rec.ID).
		Str("track", rec.Track.Name).
		Str("artist", rec.Track.Artist).
		Int("attempts", rec.Attempts).
		Msg("Scrobble " + ev.Kind.String())

	if s.store != nil {
		if err := s.persist(ev); err != nil {
			s.logger.Error().Err(err).Str("id", rec.ID).Msg("Failed to persist scrobble event")
		}
	}
	if s.handler != nil {
		s.handler(ev)
	}
}

func (s *Scrobbler) persist(ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch ev.Kind {
	case EventQueued:
		return s.store.AddPending(ctx, ev.Record)
	case EventRetry:
		return s.store.UpdatePending(ctx, ev.Record)
	default:
		return s.store.AppendHistory(ctx, ev)
	}
}
