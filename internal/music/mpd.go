package music

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
)

// DefaultMPDAddress is where MPD listens unless configured otherwise.
const DefaultMPDAddress = "localhost:6600"

// MPDClient implements the Client interface against a Music Player Daemon.
// The connection is opened on first use and re-dialled once when a command
// fails.
type MPDClient struct {
	address  string
	password string

	mu   sync.Mutex
	conn *mpd.Client
}

// NewMPDClient creates a client for the MPD server at address.
func NewMPDClient(address, password string) *MPDClient {
	if address == "" {
		address = DefaultMPDAddress
	}
	return &MPDClient{address: address, password: password}
}

// IsRunning reports whether the MPD server answers a ping.
func (c *MPDClient) IsRunning(ctx context.Context) (bool, error) {
	err := c.do(ctx, func(conn *mpd.Client) error { return conn.Ping() })
	return err == nil, nil
}

// GetCurrentTrack returns the current song, or nil when MPD is stopped or the
// server is unreachable.
func (c *MPDClient) GetCurrentTrack(ctx context.Context) (*Track, error) {
	var status, song mpd.Attrs
	err := c.do(ctx, func(conn *mpd.Client) error {
		var err error
		if status, err = conn.Status(); err != nil {
			return err
		}
		if status["state"] == "stop" {
			return nil
		}
		song, err = conn.CurrentSong()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query MPD: %w", err)
	}
	if status["state"] == "stop" || len(song) == 0 {
		return nil, nil
	}
	return parseMPDSong(status, song)
}

// Close closes the connection to MPD.
func (c *MPDClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// do runs fn on a live connection, dialling and retrying once if needed.
func (c *MPDClient) do(ctx context.Context, fn func(*mpd.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if c.conn == nil {
			if c.conn, err = c.dial(); err != nil {
				continue
			}
		}
		if err = fn(c.conn); err == nil {
			return nil
		}
		_ = c.conn.Close()
		c.conn = nil
	}
	return err
}

func (c *MPDClient) dial() (*mpd.Client, error) {
	network := "tcp"
	if strings.HasPrefix(c.address, "/") {
		network = "unix"
	}
	if c.password != "" {
		return mpd.DialAuthenticated(network, c.address, c.password)
	}
	return mpd.Dial(network, c.address)
}

// parseMPDSong converts MPD status and currentsong attributes into a Track.
func parseMPDSong(status, song mpd.Attrs) (*Track, error) {
	var state PlayState
	switch status["state"] {
	case "play":
		state = StatePlaying
	case "pause":
		state = StatePaused
	case "stop":
		state = StateStopped
	default:
		return nil, fmt.Errorf("unknown player state: %q", status["state"])
	}

	name := song["Title"]
	if name == "" {
		name = strings.TrimSuffix(path.Base(song["file"]), path.Ext(song["file"]))
	}

	// Newer servers send a fractional "duration"; older ones only "Time".
	durationStr := song["duration"]
	if durationStr == "" {
		durationStr = song["Time"]
	}
	if durationStr == "" {
		durationStr = status["duration"]
	}
	durationSec, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration %q: %w", durationStr, err)
	}

	var positionSec float64
	if elapsed := status["elapsed"]; elapsed != "" {
		if positionSec, err = strconv.ParseFloat(elapsed, 64); err != nil {
			return nil, fmt.Errorf("failed to parse elapsed %q: %w", elapsed, err)
		}
	}

	// Track is "3" or "3/12".
	var number int
	if n, _, _ := strings.Cut(song["Track"], "/"); n != "" {
		number, _ = strconv.Atoi(strings.TrimSpace(n))
	}

	return &Track{
		Name:        name,
		Artist:      song["Artist"],
		Album:       song["Album"],
		AlbumArtist: song["AlbumArtist"],
		TrackNumber: number,
		MBID:        song["MUSICBRAINZ_TRACKID"],
		Duration:    secondsToDuration(durationSec),
		Position:    secondsToDuration(positionSec),
		State:       state,
	}, nil
}
