package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jfmyers9/scrobbled/internal/scrobbler"
)

func TestPrintQueue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	retrying := scrobbler.NewRecord(scrobbler.Track{
		Name: "Song A", Artist: "Artist", Duration: 3 * time.Minute, StartedAt: now.Add(-10 * time.Minute),
	}, now.Add(-8*time.Minute))
	retrying.Attempts = 2
	retrying.Reason = "connection refused"

	fresh := scrobbler.NewRecord(scrobbler.Track{
		Name: "Song B", Artist: "Artist", Duration: 3 * time.Minute, StartedAt: now.Add(-3 * time.Hour),
	}, now)

	accepted := scrobbler.HistoryEntry{Record: retrying, ResolvedAt: now.Add(-5 * time.Minute)}
	accepted.State = scrobbler.StateScrobbled
	accepted.Track.Name = "Song C"

	dropped := scrobbler.HistoryEntry{Record: fresh, ResolvedAt: now.Add(-2 * time.Hour)}
	dropped.State = scrobbler.StateFailed
	dropped.Reason = "artist ignored"

	var buf bytes.Buffer
	printQueue(&buf, []scrobbler.Record{retrying, fresh}, []scrobbler.HistoryEntry{accepted, dropped}, now)
	out := buf.String()

	for _, want := range []string{
		"Pending (2)",
		"Artist - Song A",
		"played 10 minutes ago, 2 attempts: connection refused",
		"played 3 hours ago\n",
		"✓ Artist - Song C",
		"5 minutes ago\n",
		"✗ Artist - Song B",
		"2 hours ago: artist ignored",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintQueue_Empty(t *testing.T) {
	var buf bytes.Buffer
	printQueue(&buf, nil, nil, time.Now())

	want := "Pending (0)\n  none\n\nHistory\n  none\n"
	if buf.String() != want {
		t.Errorf("printQueue() = %q, want %q", buf.String(), want)
	}
}
