package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jfmyers9/scrobbled/internal/config"
	"github.com/jfmyers9/scrobbled/internal/daemon"
	"github.com/jfmyers9/scrobbled/internal/music"
	"github.com/jfmyers9/scrobbled/internal/scrobbler"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// historyRetention bounds how long resolved scrobbles stay in the database.
const historyRetention = 30 * 24 * time.Hour

var (
	daemonLogFile  string
	daemonLogLevel string
	daemonDataDir  string
	daemonSource   string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scrobbling daemon",
	Long: `Run the scrobbling daemon that monitors a music player and scrobbles tracks to Last.fm.

The daemon will:
- Poll the music source (Apple Music or MPD) every few seconds
- Track playback time and handle pause/resume correctly
- Scrobble tracks once they have played for half their length or 4 minutes
- Keep unsent scrobbles in a local database and retry them with backoff
- Handle graceful shutdown on SIGINT/SIGTERM

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a file (useful for launchd and systemd).`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "", "Log level (debug, info, warn, error; default from config)")
	daemonCmd.Flags().StringVar(&daemonDataDir, "data-dir", "", "Data directory for status and queue (default: ~/.local/share/scrobbled)")
	daemonCmd.Flags().StringVar(&daemonSource, "source", "", "Music source: applescript or mpd (default from config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.LastFM.APIKey == "" || cfg.LastFM.APISecret == "" || cfg.LastFM.SessionKey == "" {
		return fmt.Errorf("Last.fm credentials not configured. Run 'scrobbled auth' first")
	}

	level := cfg.LogLevel
	if daemonLogLevel != "" {
		level = daemonLogLevel
	}
	logger, closeLog := setupLogger(daemonLogFile, level)
	defer closeLog()

	logger.Info().
		Str("version", version).
		Msg("Starting scrobbled daemon")

	dataDir := cfg.DataDir
	if daemonDataDir != "" {
		dataDir = daemonDataDir
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	logger.Info().Str("data_dir", dataDir).Msg("Using data directory")

	sourceKind := cfg.Source.Kind
	if daemonSource != "" {
		sourceKind = daemonSource
	}
	source, err := music.NewClient(sourceKind, music.Options{
		MPDAddress:  cfg.Source.MPDAddress,
		MPDPassword: cfg.Source.MPDPassword,
	})
	if err != nil {
		return err
	}
	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	store, err := scrobbler.OpenStore(filepath.Join(dataDir, "queue.db"))
	if err != nil {
		return fmt.Errorf("failed to open queue database: %w", err)
	}
	defer store.Close()

	status := daemon.NewStatusFile(filepath.Join(dataDir, daemon.StatusFileName))

	engine, err := scrobbler.New(engineConfig(cfg),
		scrobbler.WithLogger(logger),
		scrobbler.WithStore(store),
		scrobbler.WithEventHandler(status.EventHandler(logger)),
		scrobbler.WithSessionHandler(func(key string) {
			cfg.LastFM.SessionKey = key
			if err := cfg.Save(); err != nil {
				logger.Warn().Err(err).Msg("Failed to save new session key")
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to start scrobbler: %w", err)
	}

	d := daemon.New(daemon.Config{PollInterval: cfg.Source.PollInterval}, source, engine, status, logger)

	// Run daemon (blocks until shutdown signal)
	runErr := d.Run(context.Background())

	if n, err := store.Cleanup(context.Background(), historyRetention); err != nil {
		logger.Warn().Err(err).Msg("Failed to clean up history")
	} else if n > 0 {
		logger.Info().Int64("deleted", n).Msg("Cleaned up scrobble history")
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("Error during shutdown")
		return runErr
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}

// engineConfig maps the file configuration onto the engine's. Zero values
// keep the engine defaults.
func engineConfig(cfg *config.Config) scrobbler.Config {
	return scrobbler.Config{
		API: scrobbler.APIConfig{
			BaseURL:    cfg.LastFM.BaseURL,
			APIKey:     cfg.LastFM.APIKey,
			APISecret:  cfg.LastFM.APISecret,
			SessionKey: cfg.LastFM.SessionKey,
			Username:   cfg.LastFM.Username,
			Password:   cfg.LastFM.Password,
		},
		BatchSize:     cfg.Engine.BatchSize,
		MaxAttempts:   cfg.Engine.MaxAttempts,
		QueueCapacity: cfg.Engine.QueueCapacity,
		EventBuffer:   cfg.Engine.EventBuffer,
		RetryInterval: cfg.Engine.RetryInterval,
		BackoffMin:    cfg.Engine.BackoffMin,
		BackoffMax:    cfg.Engine.BackoffMax,
		SubmitTimeout: cfg.Engine.SubmitTimeout,
		ShutdownGrace: cfg.Engine.ShutdownGrace,
		MaxAge:        cfg.Engine.MaxAge,
	}
}

// setupLogger creates a logger with the specified configuration. The
// returned func closes the log file, if any.
func setupLogger(logFile, logLevel string) (zerolog.Logger, func()) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	closeFn := func() {}

	// Use pretty console output if logging to stderr
	if logFile == "" {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).
			With().
			Timestamp().
			Logger()
		return logger, closeFn
	}

	var output io.Writer = os.Stderr
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			output = f
			closeFn = func() { _ = f.Close() }
		}
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closeFn
}
