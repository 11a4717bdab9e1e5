//go:build integration

package scrobbler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// integrationClient builds a client against the real Last.fm API.
// Run with: go test -tags=integration -v ./internal/scrobbler/
// Requires: LASTFM_API_KEY, LASTFM_API_SECRET and LASTFM_SESSION_KEY.
func integrationClient(t *testing.T) *LastFMClient {
	t.Helper()

	cfg := APIConfig{
		APIKey:     os.Getenv("LASTFM_API_KEY"),
		APISecret:  os.Getenv("LASTFM_API_SECRET"),
		SessionKey: os.Getenv("LASTFM_SESSION_KEY"),
		Username:   os.Getenv("LASTFM_USERNAME"),
		Password:   os.Getenv("LASTFM_PASSWORD"),
	}
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.SessionKey == "" {
		t.Skip("Skipping integration test: LASTFM_API_KEY, LASTFM_API_SECRET, and LASTFM_SESSION_KEY must be set")
	}

	client, err := NewLastFMClient(cfg, zerolog.New(zerolog.NewTestWriter(t)), nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestIntegration_UpdateNowPlaying(t *testing.T) {
	client := integrationClient(t)

	err := client.UpdateNowPlaying(context.Background(), Track{
		Name:     "Test Track",
		Artist:   "Test Artist",
		Album:    "Test Album",
		Duration: 3 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to update now playing: %v", err)
	}
}

func TestIntegration_SubmitBatch(t *testing.T) {
	client := integrationClient(t)

	now := time.Now()
	tracks := []Track{
		{Name: "Test Track 1", Artist: "Test Artist 1", Album: "Test Album 1", Duration: 3 * time.Minute, StartedAt: now.Add(-10 * time.Minute)},
		{Name: "Test Track 2", Artist: "Test Artist 2", Album: "Test Album 2", Duration: 4 * time.Minute, StartedAt: now.Add(-7 * time.Minute)},
	}

	outcomes, err := client.SubmitBatch(context.Background(), tracks)
	if err != nil {
		t.Fatalf("Failed to submit batch: %v", err)
	}
	for i, o := range outcomes {
		t.Logf("track %d: %s %s", i, o.Status, o.Reason)
	}
}

// TestIntegration_Reauthenticate additionally requires LASTFM_USERNAME and
// LASTFM_PASSWORD.
func TestIntegration_Reauthenticate(t *testing.T) {
	client := integrationClient(t)
	if client.username == "" {
		t.Skip("Skipping: LASTFM_USERNAME and LASTFM_PASSWORD must be set")
	}

	if err := client.Reauthenticate(context.Background()); err != nil {
		t.Fatalf("Failed to re-authenticate: %v", err)
	}
}
