package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jfmyers9/scrobbled/internal/config"
	"github.com/jfmyers9/scrobbled/internal/daemon"
	"github.com/jfmyers9/scrobbled/internal/scrobbler"
	"github.com/jfmyers9/scrobbled/internal/tui"
	"github.com/spf13/cobra"
)

var tuiDataDir string

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Display a terminal UI for the scrobbling daemon",
	Long: `Display a terminal-based user interface showing what the daemon sees:
the current track, progress toward the scrobble point, the number of
queued scrobbles and the most recent Last.fm submissions.

The TUI reads the daemon's status file and queue database, so the
daemon must be running for it to show live data.

Press 'q' to quit or 'r' to reload immediately.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().StringVar(&tuiDataDir, "data-dir", "", "Daemon data directory (default from config)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := cfg.DataDir
	if tuiDataDir != "" {
		dataDir = tuiDataDir
	}

	loader := newSnapshotLoader(
		filepath.Join(dataDir, daemon.StatusFileName),
		filepath.Join(dataDir, "queue.db"),
	)
	defer loader.Close()

	return tui.New().Run(context.Background(), loader.Load)
}

// snapshotLoader reads the status file and opens the queue database once it
// exists, so the TUI can be started before the daemon.
type snapshotLoader struct {
	statusPath string
	dbPath     string

	mu    sync.Mutex
	store *scrobbler.Store
}

func newSnapshotLoader(statusPath, dbPath string) *snapshotLoader {
	return &snapshotLoader{statusPath: statusPath, dbPath: dbPath}
}

func (l *snapshotLoader) Load(ctx context.Context) tui.Snapshot {
	var snap tui.Snapshot

	status, err := daemon.ReadStatus(l.statusPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		snap.Err = err
	}
	snap.Status = status

	store, err := l.openStore()
	if err != nil {
		if snap.Err == nil {
			snap.Err = err
		}
		return snap
	}
	if store == nil {
		return snap
	}

	history, err := store.History(ctx, 5)
	if err != nil && snap.Err == nil {
		snap.Err = err
	}
	snap.History = history
	return snap
}

func (l *snapshotLoader) openStore() (*scrobbler.Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store != nil {
		return l.store, nil
	}
	if _, err := os.Stat(l.dbPath); err != nil {
		return nil, nil
	}
	store, err := scrobbler.OpenStore(l.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	l.store = store
	return store, nil
}

func (l *snapshotLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	return l.store.Close()
}
