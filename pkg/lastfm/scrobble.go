package lastfm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ScrobbleService provides scrobbling operations for the Last.fm API.
type ScrobbleService struct {
	client *Client
}

const (
	// MaxBatchSize is the maximum number of scrobbles allowed in a single batch.
	MaxBatchSize = 50
)

// UpdateNowPlaying updates the "now playing" status on Last.fm.
//
// This should be called when a track starts playing. It does not count
// as a scrobble and does not affect play counts.
//
// Requires authentication (session key must be set via SetSessionKey).
func (s *ScrobbleService) UpdateNowPlaying(ctx context.Context, track Track) (*NowPlayingResponse, error) {
	params := map[string]string{}
	addTrackParams(params, track, "")

	inner, err := s.client.call(ctx, "track.updateNowPlaying", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Artist         string     `xml:"nowplaying>artist"`
		Track          string     `xml:"nowplaying>track"`
		Album          string     `xml:"nowplaying>album"`
		AlbumArtist    string     `xml:"nowplaying>albumArtist"`
		IgnoredMessage xmlIgnored `xml:"nowplaying>ignoredMessage"`
	}
	if err := unmarshalInner(inner, &resp); err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse now playing response: %w", err)
	}

	return &NowPlayingResponse{
		Artist:         resp.Artist,
		Track:          resp.Track,
		Album:          resp.Album,
		AlbumArtist:    resp.AlbumArtist,
		IgnoredMessage: resp.IgnoredMessage.toIgnored(),
	}, nil
}

// Scrobble submits a single scrobble to Last.fm.
//
// Requires authentication (session key must be set via SetSessionKey).
func (s *ScrobbleService) Scrobble(ctx context.Context, scrobble Scrobble) (*ScrobbleResponse, error) {
	return s.ScrobbleBatch(ctx, []Scrobble{scrobble})
}

// ScrobbleBatch submits up to MaxBatchSize scrobbles in one request.
//
// Larger batches are rejected rather than truncated so that callers never
// lose track of which items were sent. The response carries one result per
// item, in order; an ignored item has a non-zero IgnoredMessage.Code.
//
// Requires authentication (session key must be set via SetSessionKey).
//
// Example:
//
//	resp, err := client.Scrobble().ScrobbleBatch(ctx, scrobbles)
//	if err != nil {
//	    log.Printf("Failed to scrobble batch: %v", err)
//	}
//	fmt.Printf("Accepted: %d, Ignored: %d\n", resp.Accepted, resp.Ignored)
func (s *ScrobbleService) ScrobbleBatch(ctx context.Context, scrobbles []Scrobble) (*ScrobbleResponse, error) {
	if len(scrobbles) == 0 {
		return &ScrobbleResponse{}, nil
	}
	if len(scrobbles) > MaxBatchSize {
		return nil, fmt.Errorf("lastfm: batch of %d exceeds maximum of %d", len(scrobbles), MaxBatchSize)
	}

	params := map[string]string{}
	for i, sc := range scrobbles {
		idx := fmt.Sprintf("[%d]", i)
		addTrackParams(params, sc.Track, idx)
		params["timestamp"+idx] = strconv.FormatInt(sc.Timestamp.Unix(), 10)
	}

	inner, err := s.client.call(ctx, "track.scrobble", params, true)
	if err != nil {
		return nil, err
	}

	resp, err := unmarshalScrobbles(inner)
	if err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse scrobble response: %w", err)
	}
	return resp, nil
}

// addTrackParams adds the track fields under keys suffixed with idx, which
// is empty for single-track methods and "[i]" for batches.
func addTrackParams(params map[string]string, t Track, idx string) {
	params["artist"+idx] = t.Artist
	params["track"+idx] = t.Track
	if t.Album != "" {
		params["album"+idx] = t.Album
	}
	if t.AlbumArtist != "" {
		params["albumArtist"+idx] = t.AlbumArtist
	}
	if t.Duration > 0 {
		params["duration"+idx] = strconv.Itoa(t.Duration)
	}
	if t.TrackNumber > 0 {
		params["trackNumber"+idx] = strconv.Itoa(t.TrackNumber)
	}
	if t.MBTrackID != "" {
		params["mbid"+idx] = t.MBTrackID
	}
}

type xmlIgnored struct {
	Code int    `xml:"code,attr"`
	Text string `xml:",chardata"`
}

func (x xmlIgnored) toIgnored() IgnoredMessage {
	return IgnoredMessage{Code: x.Code, Text: strings.TrimSpace(x.Text)}
}

// unmarshalScrobbles parses the inner XML of a track.scrobble response.
func unmarshalScrobbles(inner []byte) (*ScrobbleResponse, error) {
	var resp struct {
		Scrobbles struct {
			Accepted  int `xml:"accepted,attr"`
			Ignored   int `xml:"ignored,attr"`
			Scrobbles []struct {
				Artist         string     `xml:"artist"`
				Track          string     `xml:"track"`
				Album          string     `xml:"album"`
				Timestamp      int64      `xml:"timestamp"`
				IgnoredMessage xmlIgnored `xml:"ignoredMessage"`
			} `xml:"scrobble"`
		} `xml:"scrobbles"`
	}
	if err := unmarshalInner(inner, &resp); err != nil {
		return nil, err
	}

	out := &ScrobbleResponse{
		Accepted:  resp.Scrobbles.Accepted,
		Ignored:   resp.Scrobbles.Ignored,
		Scrobbles: make([]ScrobbleResult, len(resp.Scrobbles.Scrobbles)),
	}
	for i, sc := range resp.Scrobbles.Scrobbles {
		out.Scrobbles[i] = ScrobbleResult{
			Artist:         strings.TrimSpace(sc.Artist),
			Track:          strings.TrimSpace(sc.Track),
			Album:          strings.TrimSpace(sc.Album),
			Timestamp:      sc.Timestamp,
			IgnoredMessage: sc.IgnoredMessage.toIgnored(),
		}
	}
	return out, nil
}
