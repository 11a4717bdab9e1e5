package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jfmyers9/scrobbled/internal/music"
	"github.com/rs/zerolog"
)

// closedSource is a player that is not running.
type closedSource struct {
	fetched bool
}

func (s *closedSource) GetCurrentTrack(context.Context) (*music.Track, error) {
	s.fetched = true
	return nil, errors.New("should not be called")
}

func (s *closedSource) IsRunning(context.Context) (bool, error) { return false, nil }

func TestPoller_ClosedPlayerReportsNoTrack(t *testing.T) {
	source := &closedSource{}
	p := NewPoller(source, time.Second, zerolog.Nop())

	updates := make(chan TrackUpdate, 1)
	p.poll(context.Background(), updates)

	update := <-updates
	if update.Err != nil || update.Track != nil {
		t.Errorf("update = %+v, want empty", update)
	}
	if source.fetched {
		t.Error("GetCurrentTrack called on a closed player")
	}
}

func TestPoller_BackoffOnErrors(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	p := NewPoller(source, time.Second, zerolog.Nop())
	updates := make(chan TrackUpdate, 10)

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		p.poll(context.Background(), updates)
		if got := p.nextInterval(); got != w {
			t.Errorf("after %d failures nextInterval() = %v, want %v", i+1, got, w)
		}
		if u := <-updates; u.Err == nil {
			t.Errorf("poll %d: expected error update", i+1)
		}
	}

	source.mu.Lock()
	source.err = nil
	source.track = playing("Song")
	source.mu.Unlock()

	p.poll(context.Background(), updates)
	if got := p.nextInterval(); got != time.Second {
		t.Errorf("nextInterval() after success = %v, want 1s", got)
	}
	if u := <-updates; u.Track == nil || u.Track.Name != "Song" {
		t.Errorf("update = %+v, want Song", u)
	}
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(&closedSource{}, 0, zerolog.Nop())
	if p.interval != 3*time.Second {
		t.Errorf("interval = %v, want 3s", p.interval)
	}
}
