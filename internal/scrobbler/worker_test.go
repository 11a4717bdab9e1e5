package scrobbler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeClient answers SubmitBatch from a script, one entry per call. The
// last entry repeats.
type fakeClient struct {
	mu       sync.Mutex
	script   []func(tracks []Track) ([]ItemOutcome, error)
	calls    [][]Track
	reauths  int
	reauth   error
	playing  []Track
	block    chan struct{}
	entered  chan struct{}
	ctxAlive []bool
}

func (c *fakeClient) SubmitBatch(ctx context.Context, tracks []Track) ([]ItemOutcome, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.block != nil {
		<-c.block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, append([]Track(nil), tracks...))
	c.ctxAlive = append(c.ctxAlive, ctx.Err() == nil)

	if len(c.script) == 0 {
		return acceptAll(tracks)
	}
	step := c.script[0]
	if len(c.script) > 1 {
		c.script = c.script[1:]
	}
	return step(tracks)
}

func (c *fakeClient) Reauthenticate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reauths++
	return c.reauth
}

func (c *fakeClient) UpdateNowPlaying(_ context.Context, t Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = append(c.playing, t)
	return nil
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func acceptAll(tracks []Track) ([]ItemOutcome, error) {
	out := make([]ItemOutcome, len(tracks))
	for i := range out {
		out[i] = ItemOutcome{Status: Accepted}
	}
	return out, nil
}

func fail(err error) func([]Track) ([]ItemOutcome, error) {
	return func([]Track) ([]ItemOutcome, error) { return nil, err }
}

func respond(outcomes ...ItemOutcome) func([]Track) ([]ItemOutcome, error) {
	return func([]Track) ([]ItemOutcome, error) { return outcomes, nil }
}

var testWorkerConfig = WorkerConfig{
	BatchSize:     50,
	RetryInterval: time.Hour,
	BackoffMin:    time.Second,
	BackoffMax:    5 * time.Second,
	SubmitTimeout: time.Second,
}

func newTestWorker(t *testing.T, client Client, cfg QueueConfig) (*Worker, *Queue, *eventLog) {
	t.Helper()
	q, log := newTestQueue(t, cfg)
	return NewWorker(q, client, testWorkerConfig, zerolog.Nop()), q, log
}

// resolvedKinds returns the events that followed the initial queueing.
func resolvedKinds(log *eventLog) []EventKind {
	var out []EventKind
	for _, k := range log.kinds() {
		if k != EventQueued {
			out = append(out, k)
		}
	}
	return out
}

func TestWorker_ScenarioE_ReauthenticatesAndResubmits(t *testing.T) {
	client := &fakeClient{script: []func([]Track) ([]ItemOutcome, error){
		fail(fmt.Errorf("%w: session key invalid", ErrAuthExpired)),
		acceptAll,
	}}
	w, q, log := newTestWorker(t, client, QueueConfig{MaxAttempts: 3})
	enqueueN(t, q, 3)

	retry := w.submit(context.Background(), q.TakeBatch(50))
	require.False(t, retry)

	require.Equal(t, 1, client.reauths)
	require.Len(t, client.calls, 2)
	require.Equal(t, client.calls[0], client.calls[1], "the identical batch is resubmitted")

	require.Equal(t, []EventKind{EventScrobbled, EventScrobbled, EventScrobbled}, resolvedKinds(log))
	for _, ev := range log.events[3:] {
		require.Zero(t, ev.Record.Attempts, "re-authentication costs no attempt")
	}
	require.Zero(t, q.Len())
}

func TestWorker_ReauthenticationFailure(t *testing.T) {
	client := &fakeClient{
		script: []func([]Track) ([]ItemOutcome, error){fail(ErrAuthExpired)},
		reauth: ErrNoCredentials,
	}
	w, q, log := newTestWorker(t, client, QueueConfig{MaxAttempts: 3})
	enqueueN(t, q, 2)

	require.True(t, w.submit(context.Background(), q.TakeBatch(50)))
	require.Len(t, client.calls, 1)
	require.Equal(t, []EventKind{EventRetry, EventRetry}, resolvedKinds(log))
	require.Equal(t, 1, log.last().Record.Attempts)
	require.Equal(t, 2, q.Pending())
}

func TestWorker_AuthExpiredTwice(t *testing.T) {
	client := &fakeClient{script: []func([]Track) ([]ItemOutcome, error){fail(ErrAuthExpired)}}
	w, q, log := newTestWorker(t, client, QueueConfig{MaxAttempts: 3})
	enqueueN(t, q, 1)

	require.True(t, w.submit(context.Background(), q.TakeBatch(50)))
	require.Equal(t, 1, client.reauths, "resubmitted only once")
	require.Len(t, client.calls, 2)
	require.Equal(t, []EventKind{EventRetry}, resolvedKinds(log))
}

func TestWorker_TransportFailure(t *testing.T) {
	client := &fakeClient{script: []func([]Track) ([]ItemOutcome, error){fail(errors.New("connection refused"))}}
	w, q, log := newTestWorker(t, client, QueueConfig{MaxAttempts: 3})
	enqueueN(t, q, 2)

	require.True(t, w.submit(context.Background(), q.TakeBatch(50)))
	require.Zero(t, client.reauths)
	require.Equal(t, []EventKind{EventRetry, EventRetry}, resolvedKinds(log))
	require.Contains(t, log.last().Record.Reason, "connection refused")
	require.Equal(t, 2, q.Pending())
}

func TestWorker_PerItemOutcomes(t *testing.T) {
	client := &fakeClient{script: []func([]Track) ([]ItemOutcome, error){respond(
		ItemOutcome{Status: Accepted},
		ItemOutcome{Status: RejectedTransient, Reason: "daily limit"},
		ItemOutcome{Status: RejectedPermanent, Reason: "artist ignored"},
	)}}
	w, q, log := newTestWorker(t, client, QueueConfig{MaxAttempts: 3})
	recs := enqueueN(t, q, 3)

	require.True(t, w.submit(context.Background(), q.TakeBatch(50)), "a transient rejection backs off")
	require.Equal(t, []EventKind{EventScrobbled, EventRetry, EventFailed}, resolvedKinds(log))

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, recs[1].ID, snap[0].ID)
	require.Equal(t, 1, snap[0].Attempts)
}

func TestWorker_PermanentRejectionsDoNotBackOff(t *testing.T) {
	client := &fakeClient{script: []func([]Track) ([]ItemOutcome, error){respond(
		ItemOutcome{Status: Accepted},
		ItemOutcome{Status: RejectedPermanent, Reason: "track ignored"},
	)}}
	w, q, _ := newTestWorker(t, client, QueueConfig{MaxAttempts: 3})
	enqueueN(t, q, 2)

	require.False(t, w.submit(context.Background(), q.TakeBatch(50)))
	require.Zero(t, q.Len())
}

func TestWorker_ShortResponseRetriesMissingItems(t *testing.T) {
	client := &fakeClient{script: []func([]Track) ([]ItemOutcome, error){respond(ItemOutcome{Status: Accepted})}}
	w, q, log := newTestWorker(t, client, QueueConfig{MaxAttempts: 3})
	enqueueN(t, q, 2)

	require.True(t, w.submit(context.Background(), q.TakeBatch(50)))
	require.Equal(t, []EventKind{EventScrobbled, EventRetry}, resolvedKinds(log))
}

func TestWorker_DrainSubmitsInBatches(t *testing.T) {
	client := &fakeClient{}
	q, _ := newTestQueue(t, QueueConfig{})
	cfg := testWorkerConfig
	cfg.BatchSize = 2
	w := NewWorker(q, client, cfg, zerolog.Nop())
	enqueueN(t, q, 5)

	require.False(t, w.drain(context.Background()))
	require.Len(t, client.calls, 3)
	require.Len(t, client.calls[0], 2)
	require.Len(t, client.calls[2], 1)
	require.Equal(t, "Song 0", client.calls[0][0].Name)
	require.Zero(t, q.Len())
}

func TestWorker_Backoff(t *testing.T) {
	client := &fakeClient{}
	w, q, _ := newTestWorker(t, client, QueueConfig{})

	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, w.nextBackoff())
	}
	require.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, got)

	// A fully accepted batch resets the backoff.
	enqueueN(t, q, 1)
	require.False(t, w.submit(context.Background(), q.TakeBatch(50)))
	require.Equal(t, time.Second, w.nextBackoff())
}

func TestWorker_BackoffNotResetByPartialSuccess(t *testing.T) {
	client := &fakeClient{script: []func([]Track) ([]ItemOutcome, error){respond(
		ItemOutcome{Status: Accepted},
		ItemOutcome{Status: RejectedPermanent},
	)}}
	w, q, _ := newTestWorker(t, client, QueueConfig{})
	w.nextBackoff()
	w.nextBackoff()

	enqueueN(t, q, 2)
	w.submit(context.Background(), q.TakeBatch(50))
	require.Equal(t, 4*time.Second, w.nextBackoff())
}

func TestWorker_ForwardsNowPlaying(t *testing.T) {
	client := &fakeClient{}
	w, q, _ := newTestWorker(t, client, QueueConfig{})

	w.updateNowPlaying(context.Background())
	require.Empty(t, client.playing)

	q.SetNowPlaying(song("A", time.Minute))
	w.updateNowPlaying(context.Background())
	require.Len(t, client.playing, 1)
	require.Equal(t, "A", client.playing[0].Name)
}

func TestWorker_RunRetriesUntilAccepted(t *testing.T) {
	client := &fakeClient{script: []func([]Track) ([]ItemOutcome, error){
		fail(errors.New("timeout")),
		fail(errors.New("timeout")),
		acceptAll,
	}}
	q, log := newTestQueue(t, QueueConfig{MaxAttempts: 5})
	cfg := testWorkerConfig
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond
	w := NewWorker(q, client, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	enqueueN(t, q, 1)
	require.Eventually(t, func() bool { return q.Len() == 0 }, 2*time.Second, time.Millisecond)
	require.Equal(t, 3, client.callCount())
	require.Equal(t, EventScrobbled, log.last().Kind)
	require.Equal(t, 2, log.last().Record.Attempts)

	cancel()
	require.NoError(t, <-done)
}

func TestWorker_InFlightSubmissionSurvivesShutdown(t *testing.T) {
	client := &fakeClient{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	w, q, log := newTestWorker(t, client, QueueConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	enqueueN(t, q, 1)
	<-client.entered
	cancel()
	close(client.block)

	require.NoError(t, <-done)
	require.Equal(t, []bool{true}, client.ctxAlive, "shutdown must not cancel the request")
	require.Equal(t, EventScrobbled, log.last().Kind)
}
