package scrobbler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/scrobbled/pkg/lastfm"
)

// LastFMClient submits scrobbles through the Last.fm API. It implements
// Client and NowPlayingUpdater.
type LastFMClient struct {
	api       *lastfm.Client
	username  string
	password  string
	onSession func(key string)
	logger    zerolog.Logger
}

// NewLastFMClient creates a client for cfg. onSession, if not nil, is
// called with every session key obtained by Reauthenticate so that it can
// be saved.
func NewLastFMClient(cfg APIConfig, logger zerolog.Logger, onSession func(key string)) (*LastFMClient, error) {
	logger = logger.With().Str("component", "lastfm").Logger()

	api, err := lastfm.NewClient(lastfm.Config{
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		SessionKey: cfg.SessionKey,
		BaseURL:    cfg.BaseURL,
		Logger:     debugLogger{logger},
		// The worker owns retries and backoff.
		MaxAttempts: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lastfm client: %w", err)
	}

	return &LastFMClient{
		api:       api,
		username:  cfg.Username,
		password:  cfg.Password,
		onSession: onSession,
		logger:    logger,
	}, nil
}

// SubmitBatch scrobbles tracks in one request. Ignored items are mapped to
// outcomes by their ignoredMessage code: the daily limit is transient,
// everything else is permanent.
func (c *LastFMClient) SubmitBatch(ctx context.Context, tracks []Track) ([]ItemOutcome, error) {
	scrobbles := make([]lastfm.Scrobble, len(tracks))
	for i, t := range tracks {
		scrobbles[i] = lastfm.Scrobble{Track: toLastFM(t), Timestamp: t.StartedAt}
	}

	resp, err := c.api.Scrobble().ScrobbleBatch(ctx, scrobbles)
	if err != nil {
		return nil, classify(err)
	}

	// Some responses carry only the counters.
	if len(resp.Scrobbles) == 0 && resp.Ignored == 0 && resp.Accepted == len(tracks) {
		outcomes := make([]ItemOutcome, len(tracks))
		for i := range outcomes {
			outcomes[i] = ItemOutcome{Status: Accepted}
		}
		return outcomes, nil
	}

	n := min(len(resp.Scrobbles), len(tracks))
	outcomes := make([]ItemOutcome, n)
	for i := 0; i < n; i++ {
		outcomes[i] = itemOutcome(resp.Scrobbles[i].IgnoredMessage)
	}
	return outcomes, nil
}

// Reauthenticate obtains a fresh session with the configured username and
// password.
func (c *LastFMClient) Reauthenticate(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return ErrNoCredentials
	}

	session, err := c.api.Auth().GetMobileSession(ctx, c.username, c.password)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	c.api.SetSessionKey(session.Key)
	c.logger.Info().Str("user", session.Username).Msg("Obtained new Last.fm session")
	if c.onSession != nil {
		c.onSession(session.Key)
	}
	return nil
}

// UpdateNowPlaying publishes t as the user's current track.
func (c *LastFMClient) UpdateNowPlaying(ctx context.Context, t Track) error {
	resp, err := c.api.Scrobble().UpdateNowPlaying(ctx, toLastFM(t))
	if err != nil {
		return classify(err)
	}
	if resp.IgnoredMessage.Code != lastfm.IgnoredNone {
		return fmt.Errorf("now playing ignored: %s", resp.IgnoredMessage.Text)
	}
	return nil
}

func toLastFM(t Track) lastfm.Track {
	return lastfm.Track{
		Artist:      t.Artist,
		Track:       t.Name,
		Album:       t.Album,
		AlbumArtist: t.AlbumArtist,
		Duration:    int(t.Duration.Round(time.Second) / time.Second),
		TrackNumber: t.TrackNumber,
		MBTrackID:   t.MBID,
	}
}

func itemOutcome(msg lastfm.IgnoredMessage) ItemOutcome {
	switch msg.Code {
	case lastfm.IgnoredNone:
		return ItemOutcome{Status: Accepted}
	case lastfm.IgnoredDailyLimit:
		return ItemOutcome{Status: RejectedTransient, Reason: ignoredReason(msg)}
	default:
		return ItemOutcome{Status: RejectedPermanent, Reason: ignoredReason(msg)}
	}
}

func ignoredReason(msg lastfm.IgnoredMessage) string {
	if msg.Text != "" {
		return msg.Text
	}
	switch msg.Code {
	case lastfm.IgnoredArtist:
		return "artist ignored"
	case lastfm.IgnoredTrack:
		return "track ignored"
	case lastfm.IgnoredTimestampTooOld:
		return "timestamp too old"
	case lastfm.IgnoredTimestampTooNew:
		return "timestamp too new"
	case lastfm.IgnoredDailyLimit:
		return "daily scrobble limit exceeded"
	default:
		return fmt.Sprintf("ignored with code %d", msg.Code)
	}
}

// classify marks session failures so the worker re-authenticates.
func classify(err error) error {
	if lastfm.IsSessionError(err) {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	return err
}

// debugLogger adapts zerolog to the SDK's Logger.
type debugLogger struct {
	l zerolog.Logger
}

func (d debugLogger) Debugf(format string, args ...interface{}) {
	d.l.Debug().Msgf(format, args...)
}
