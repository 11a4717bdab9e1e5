package music

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// AppleScriptClient implements the Client interface using AppleScript to query Apple Music.
// It only works on macOS.
type AppleScriptClient struct{}

// NewAppleScriptClient creates a new AppleScript-based music client
func NewAppleScriptClient() *AppleScriptClient {
	return &AppleScriptClient{}
}

// IsRunning checks if the Music app is currently running
func (c *AppleScriptClient) IsRunning(ctx context.Context) (bool, error) {
	script := `tell application "System Events" to (name of processes) contains "Music"`

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to check if Music is running: %w", err)
	}

	result := strings.TrimSpace(string(output))
	return result == "true", nil
}

// GetCurrentTrack returns the currently playing or paused track from Apple Music
// This uses a single osascript call that checks if Music is running and queries
// track data atomically, avoiding the overhead of two separate subprocess spawns.
func (c *AppleScriptClient) GetCurrentTrack(ctx context.Context) (*Track, error) {
	script := `
tell application "System Events"
	if not ((name of processes) contains "Music") then
		return "not_running"
	end if
end tell
tell application "Music"
	if player state is stopped then
		return "stopped"
	else
		set trackName to name of current track
		set trackArtist to artist of current track
		set trackAlbum to album of current track
		set trackDuration to duration of current track
		set playerPos to player position
		set playerState to player state as string

		return trackName & "|||" & trackArtist & "|||" & trackAlbum & "|||" & trackAlbumArtist & "|||" & trackNumber & "|||" & trackDuration & "|||" & playerPos & "|||" & playerState
	end if
end tell`

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	output, err := cmd.Output()
	if err != nil {
		// If there's an error, try to extract the error message
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("osascript error: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("failed to execute osascript: %w", err)
	}

	result := strings.TrimSpace(string(output))

	// Handle not running or stopped states
	if result == "not_running" || result == "stopped" {
		return nil, nil
	}

	// Parse the result
	track, err := parseTrackOutput(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse track output: %w", err)
	}

	return track, nil
}

// trackFields is the number of |||-delimited fields the script returns.
const trackFields = 8

// parseTrackOutput parses the delimited output from the AppleScript
func parseTrackOutput(output string) (*Track, error) {
	// Split by our custom delimiter
	parts := strings.Split(output, "|||")
	if len(parts) != trackFields {
		return nil, fmt.Errorf("expected %d parts, got %d: %q", trackFields, len(parts), output)
	}

	name := strings.TrimSpace(parts[0])
	artist := strings.TrimSpace(parts[1])
	album := strings.TrimSpace(parts[2])
	albumArtist := strings.TrimSpace(parts[3])
	numberStr := strings.TrimSpace(parts[4])
	durationStr := strings.TrimSpace(parts[5])
	positionStr := strings.TrimSpace(parts[6])
	stateStr := strings.TrimSpace(parts[7])

	// Music reports 0 for tracks without a number.
	number, err := strconv.Atoi(numberStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse track number %q: %w", numberStr, err)
	}

	// Parse duration (in seconds as float)
	durationSec, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration %q: %w", durationStr, err)
	}

	// Parse position (in seconds as float)
	positionSec, err := strconv.ParseFloat(positionStr, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse position %q: %w", positionStr, err)
	}

	// Parse state
	var state PlayState
	switch stateStr {
	case "playing":
		state = StatePlaying
	case "paused":
		state = StatePaused
	case "stopped":
		state = StateStopped
	default:
		return nil, fmt.Errorf("unknown player state: %q", stateStr)
	}

	return &Track{
		Name:        name,
		Artist:      artist,
		Album:       album,
		AlbumArtist: albumArtist,
		TrackNumber: number,
		Duration:    secondsToDuration(durationSec),
		Position:    secondsToDuration(positionSec),
		State:       state,
	}, nil
}

// secondsToDuration converts seconds (as float) to time.Duration
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
