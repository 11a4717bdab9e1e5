package scrobbler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ItemStatus is the service's verdict on one submitted track.
type ItemStatus int

const (
	Accepted ItemStatus = iota
	RejectedTransient
	RejectedPermanent
)

func (s ItemStatus) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case RejectedTransient:
		return "rejected-transient"
	case RejectedPermanent:
		return "rejected-permanent"
	default:
		return "unknown"
	}
}

// ItemOutcome pairs a status with the service's explanation.
type ItemOutcome struct {
	Status ItemStatus
	Reason string
}

// Client submits scrobbles to the remote service.
//
// SubmitBatch returns one outcome per track, in order. A batch-level error
// wrapping ErrAuthExpired asks the worker to call Reauthenticate and retry;
// any other error is treated as a transport failure.
type Client interface {
	SubmitBatch(ctx context.Context, tracks []Track) ([]ItemOutcome, error)
	Reauthenticate(ctx context.Context) error
}

// NowPlayingUpdater is implemented by clients that can publish the
// now-playing status. Updates are best effort.
type NowPlayingUpdater interface {
	UpdateNowPlaying(ctx context.Context, t Track) error
}

// WorkerConfig tunes the submission worker.
type WorkerConfig struct {
	BatchSize     int
	RetryInterval time.Duration
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	SubmitTimeout time.Duration
}

// Worker drains the queue in batches and folds the service's answers back
// into it. It is the only place that performs network I/O.
type Worker struct {
	queue   *Queue
	client  Client
	cfg     WorkerConfig
	logger  zerolog.Logger
	backoff time.Duration
}

// NewWorker creates a worker for queue using client.
func NewWorker(queue *Queue, client Client, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:  queue,
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "worker").Logger(),
	}
}

// Run waits for work until ctx is cancelled. A submission already in
// progress when ctx is cancelled is allowed to finish.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.RetryInterval)
	defer ticker.Stop()

	w.logger.Debug().
		Int("batch_size", w.cfg.BatchSize).
		Dur("retry_interval", w.cfg.RetryInterval).
		Msg("Submission worker started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.queue.Ready():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		w.updateNowPlaying(ctx)
		for w.drain(ctx) {
			wait := w.nextBackoff()
			w.logger.Info().
				Dur("backoff", wait).
				Int("pending", w.queue.Pending()).
				Msg("Submission failed, backing off")
			if !sleep(ctx, wait) {
				return nil
			}
		}
	}
}

// drain submits batches until the queue has nothing pending. It returns
// true when a batch left records to retry and the caller should back off.
func (w *Worker) drain(ctx context.Context) bool {
	for ctx.Err() == nil {
		batch := w.queue.TakeBatch(w.cfg.BatchSize)
		if len(batch) == 0 {
			return false
		}
		if w.submit(ctx, batch) {
			return true
		}
	}
	return false
}

// submit sends one batch and resolves every record in it.
func (w *Worker) submit(ctx context.Context, batch []Record) bool {
	tracks := make([]Track, len(batch))
	for i, rec := range batch {
		tracks[i] = rec.Track
	}

	outcomes, err := w.call(ctx, tracks)
	if errors.Is(err, ErrAuthExpired) {
		w.logger.Info().Err(err).Msg("Session expired, re-authenticating")
		if rerr := w.reauthenticate(ctx); rerr != nil {
			w.logger.Warn().Err(rerr).Msg("Re-authentication failed")
			w.resolveAll(batch, OutcomeRetryable, rerr.Error())
			return true
		}
		outcomes, err = w.call(ctx, tracks)
	}
	if err != nil {
		w.logger.Warn().Err(err).Int("count", len(batch)).Msg("Batch submission failed")
		w.resolveAll(batch, OutcomeRetryable, err.Error())
		return true
	}

	accepted, retry := 0, false
	for i, rec := range batch {
		if i >= len(outcomes) {
			w.resolve(rec, OutcomeRetryable, "no outcome reported")
			retry = true
			continue
		}
		switch outcomes[i].Status {
		case Accepted:
			accepted++
			w.resolve(rec, OutcomeScrobbled, "")
		case RejectedTransient:
			retry = true
			w.resolve(rec, OutcomeRetryable, outcomes[i].Reason)
		default:
			w.resolve(rec, OutcomePermanent, outcomes[i].Reason)
		}
	}

	w.logger.Info().
		Int("count", len(batch)).
		Int("accepted", accepted).
		Msg("Batch submitted")

	if accepted == len(batch) {
		w.backoff = 0
	}
	return retry
}

// call runs SubmitBatch detached from shutdown so an in-flight request is
// never torn down halfway.
func (w *Worker) call(ctx context.Context, tracks []Track) ([]ItemOutcome, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.SubmitTimeout)
	defer cancel()
	return w.client.SubmitBatch(sctx, tracks)
}

func (w *Worker) reauthenticate(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.SubmitTimeout)
	defer cancel()
	return w.client.Reauthenticate(sctx)
}

func (w *Worker) updateNowPlaying(ctx context.Context) {
	t := w.queue.TakeNowPlaying()
	if t == nil {
		return
	}
	updater, ok := w.client.(NowPlayingUpdater)
	if !ok {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
	defer cancel()
	if err := updater.UpdateNowPlaying(sctx, *t); err != nil {
		w.logger.Warn().Err(err).Str("track", t.Name).Msg("Failed to update now playing")
	}
}

func (w *Worker) resolveAll(batch []Record, outcome Outcome, reason string) {
	for _, rec := range batch {
		w.resolve(rec, outcome, reason)
	}
}

func (w *Worker) resolve(rec Record, outcome Outcome, reason string) {
	if err := w.queue.Resolve(rec.ID, outcome, reason); err != nil {
		w.logger.Error().Err(err).Str("id", rec.ID).Msg("Failed to resolve record")
	}
}

// nextBackoff doubles the wait from BackoffMin up to BackoffMax.
func (w *Worker) nextBackoff() time.Duration {
	if w.backoff == 0 {
		w.backoff = w.cfg.BackoffMin
	} else {
		w.backoff *= 2
	}
	if w.backoff > w.cfg.BackoffMax {
		w.backoff = w.cfg.BackoffMax
	}
	return w.backoff
}

// sleep waits for d or until ctx is cancelled. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
