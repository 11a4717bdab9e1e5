package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jfmyers9/scrobbled/internal/config"
	"github.com/jfmyers9/scrobbled/internal/scrobbler"
	"github.com/spf13/cobra"
)

var (
	queueDataDir string
	queueLimit   int
	queueCleanup bool
	queueMaxAge  time.Duration
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show queued and recently resolved scrobbles",
	Long: `List the scrobbles waiting to be sent to Last.fm and the most recent
scrobbles that were accepted or dropped.

The list is read from the daemon's queue database. While the daemon runs,
records it is currently submitting may still show as pending.

Use --cleanup to delete history older than --max-age.`,
	RunE: runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)

	queueCmd.Flags().StringVar(&queueDataDir, "data-dir", "", "Daemon data directory (default from config)")
	queueCmd.Flags().IntVarP(&queueLimit, "limit", "n", 20, "Number of history entries to show")
	queueCmd.Flags().BoolVar(&queueCleanup, "cleanup", false, "Delete old history entries")
	queueCmd.Flags().DurationVar(&queueMaxAge, "max-age", historyRetention, "History age deleted by --cleanup")
}

func runQueue(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := cfg.DataDir
	if queueDataDir != "" {
		dataDir = queueDataDir
	}
	dbPath := filepath.Join(dataDir, "queue.db")
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no queue database at %s (has the daemon run?)", dbPath)
	}

	store, err := scrobbler.OpenStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open queue database: %w", err)
	}
	defer store.Close()

	if queueCleanup {
		n, err := store.Cleanup(ctx, queueMaxAge)
		if err != nil {
			return fmt.Errorf("failed to clean up history: %w", err)
		}
		fmt.Printf("✓ Deleted %d history %s older than %s\n", n, plural(n, "entry", "entries"), queueMaxAge)
		return nil
	}

	pending, err := store.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending scrobbles: %w", err)
	}
	history, err := store.History(ctx, queueLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	printQueue(os.Stdout, pending, history, time.Now())
	return nil
}

// printQueue writes the pending list and the history as aligned columns.
func printQueue(w io.Writer, pending []scrobbler.Record, history []scrobbler.HistoryEntry, now time.Time) {
	const titleWidth = 40

	fmt.Fprintf(w, "Pending (%d)\n", len(pending))
	if len(pending) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, rec := range pending {
		line := fmt.Sprintf("  %s  played %s",
			padToWidth(rec.Track.Artist+" - "+rec.Track.Name, titleWidth),
			humanize.RelTime(rec.Track.StartedAt, now, "ago", "from now"))
		if rec.Attempts > 0 {
			line += fmt.Sprintf(", %d %s", rec.Attempts, plural(int64(rec.Attempts), "attempt", "attempts"))
		}
		if rec.Reason != "" {
			line += ": " + rec.Reason
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nHistory\n")
	if len(history) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, h := range history {
		mark := "✓"
		if h.State != scrobbler.StateScrobbled {
			mark = "✗"
		}
		line := fmt.Sprintf("  %s %s  %s",
			mark,
			padToWidth(h.Track.Artist+" - "+h.Track.Name, titleWidth),
			humanize.RelTime(h.ResolvedAt, now, "ago", "from now"))
		if h.State != scrobbler.StateScrobbled && h.Reason != "" {
			line += ": " + h.Reason
		}
		fmt.Fprintln(w, line)
	}
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
