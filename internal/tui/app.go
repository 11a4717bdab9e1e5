package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/jfmyers9/scrobbled/internal/daemon"
	"github.com/jfmyers9/scrobbled/internal/music"
	"github.com/jfmyers9/scrobbled/internal/scrobbler"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"
)

const maxRecentTracks = 5

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to reload the status
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: time.Second,
	}
}

// Snapshot is what the TUI shows: the daemon's status file and the tail of
// the scrobble history. Status is nil when the daemon has not written one.
type Snapshot struct {
	Status  *daemon.Status
	History []scrobbler.HistoryEntry
	Err     error
}

// Loader fetches a fresh Snapshot.
type Loader func(ctx context.Context) Snapshot

// App is the TUI application for displaying the daemon's state
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	status     *tview.TextView
	scrobble   *tview.TextView
	recent     *tview.TextView

	config Config

	mu      sync.Mutex
	current Snapshot

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastScrobble   string
	lastRecent     string

	// Cached progress bar width to stabilize change detection.
	// Updated only when GetInnerRect returns a positive value.
	lastBarWidth int

	reload     chan struct{}
	cancelFunc context.CancelFunc
}

// New creates a new TUI application with default config
func New() *App {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new TUI application with the given config
func NewWithConfig(cfg Config) *App {
	a := &App{
		app:    tview.NewApplication(),
		config: cfg,
		reload: make(chan struct{}, 1),
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	a.scrobble = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.scrobble.SetBorder(true).
		SetTitle(" Scrobble ").
		SetTitleAlign(tview.AlignLeft)

	a.recent = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.recent.SetBorder(true).
		SetTitle(" Recent ").
		SetTitleAlign(tview.AlignLeft)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]q:quit  r:reload[-]")

	// Top row: now playing (takes most space)
	// Middle row: progress bar
	// Bottom row: scrobble status | recent scrobbles
	// Footer: key help
	bottomRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.scrobble, 0, 1, false).
		AddItem(a.recent, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 0, 3, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(bottomRow, maxRecentTracks+2, 1, false).
		AddItem(a.status, 1, 1, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

// handleKeyEvent processes keyboard input
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 'q', 'Q':
		a.Stop()
		return nil
	case 'r', 'R':
		select {
		case a.reload <- struct{}{}:
		default:
		}
		return nil
	}
	return event
}

// Run starts the TUI and reloads through load until the user quits or ctx
// is cancelled.
func (a *App) Run(ctx context.Context, load Loader) error {
	ctx, a.cancelFunc = context.WithCancel(ctx)
	defer a.cancelFunc()

	go a.poll(ctx, load)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// poll is the only source of redraws
func (a *App) poll(ctx context.Context, load Loader) {
	refreshRate := a.config.RefreshRate
	if refreshRate <= 0 {
		refreshRate = time.Second
	}
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		snap := load(ctx)
		a.mu.Lock()
		a.current = snap
		a.mu.Unlock()
		a.refresh()

		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
		case <-a.reload:
		}
	}
}

// refresh updates all UI components
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		now := time.Now()
		a.setIfChanged(a.nowPlaying, &a.lastNowPlaying, renderNowPlaying(a.current.Status))

		_, _, width, _ := a.progress.GetInnerRect()
		// Only update cached width when GetInnerRect returns a positive value,
		// avoiding flicker from transient zero-width during layout.
		if barWidth := width - 14; barWidth > 0 {
			a.lastBarWidth = barWidth
		}
		if a.lastBarWidth < 10 {
			a.lastBarWidth = 10
		}
		a.setIfChanged(a.progress, &a.lastProgress, renderProgress(a.current.Status, a.lastBarWidth))
		a.setIfChanged(a.scrobble, &a.lastScrobble, renderScrobbleStatus(a.current, now))

		_, _, recentWidth, _ := a.recent.GetInnerRect()
		a.setIfChanged(a.recent, &a.lastRecent, renderRecent(a.current.History, recentWidth, now))
	})
}

func (a *App) setIfChanged(view *tview.TextView, last *string, text string) {
	if text != *last {
		*last = text
		view.SetText(text)
	}
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// playingTrack returns the track shown, or nil when nothing plays.
func playingTrack(st *daemon.Status) *music.Track {
	if st == nil || st.Track == nil || st.Track.State == music.StateStopped {
		return nil
	}
	return st.Track
}

// renderNowPlaying renders the now playing panel
func renderNowPlaying(st *daemon.Status) string {
	track := playingTrack(st)
	if st == nil {
		return "\n\n[gray]Daemon not running[-]"
	}
	if track == nil {
		return "\n\n[gray]No track playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(track.Name)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(track.Artist)))
	sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(track.Album)))

	stateIcon := "[green]▶[-]" // Play triangle
	if track.State == music.StatePaused {
		stateIcon = "[yellow]⏸[-]" // Pause icon
	}
	sb.WriteString(fmt.Sprintf("\n\n%s", stateIcon))
	return sb.String()
}

// renderProgress renders the progress bar
func renderProgress(st *daemon.Status, barWidth int) string {
	track := playingTrack(st)
	if track == nil {
		return ""
	}
	return fmt.Sprintf("%s %s %s",
		formatDuration(track.Position),
		buildProgressBar(track.Position, track.Duration, barWidth),
		formatDuration(track.Duration))
}

// renderScrobbleStatus renders the scrobble status panel
func renderScrobbleStatus(snap Snapshot, now time.Time) string {
	var sb strings.Builder
	st := snap.Status
	track := playingTrack(st)

	switch {
	case track == nil:
		sb.WriteString("[gray]No track[-]\n")
	case st.Scrobbled:
		sb.WriteString("[green]✓ Scrobbled[-]\n")
	default:
		if threshold, ok := scrobbler.Threshold(track.Duration); ok {
			progress := min(float64(track.Position)/float64(threshold)*100, 100)
			const barWidth = 10
			filled := int(progress / 100 * barWidth)
			bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
			sb.WriteString(fmt.Sprintf("[yellow]%s %.0f%%[-]\n", bar, progress))
		} else {
			sb.WriteString("[gray]Too short to scrobble[-]\n")
		}
	}

	pending := 0
	if st != nil {
		pending = st.Pending
	}
	sb.WriteString(fmt.Sprintf("Pending: %d\n", pending))

	if st != nil && st.LastScrobble != nil {
		sb.WriteString(fmt.Sprintf("Last: %s\n", humanize.RelTime(st.LastScrobble.At, now, "ago", "from now")))
	}
	switch {
	case snap.Err != nil:
		sb.WriteString(fmt.Sprintf("[red]%s[-]", tview.Escape(snap.Err.Error())))
	case st != nil && st.LastError != "":
		sb.WriteString(fmt.Sprintf("[red]%s[-]", tview.Escape(st.LastError)))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// renderRecent renders the most recent history entries, newest first
func renderRecent(history []scrobbler.HistoryEntry, width int, now time.Time) string {
	if len(history) == 0 {
		return "[gray]No recent scrobbles[-]"
	}

	var sb strings.Builder
	for i, h := range history {
		if i == maxRecentTracks {
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}

		if h.State == scrobbler.StateScrobbled {
			sb.WriteString("[green]✓[-] ")
		} else {
			sb.WriteString("[red]✗[-] ")
		}

		when := humanize.RelTime(h.ResolvedAt, now, "ago", "from now")
		// Marker, spaces and the relative time share the row with the name
		nameWidth := max(width-runewidth.StringWidth(when)-4, 10)
		name := runewidth.Truncate(h.Track.Name, nameWidth, "...")
		sb.WriteString(fmt.Sprintf("[white]%s[-] [gray]%s[-]", tview.Escape(name), when))
	}
	return sb.String()
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration == 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}

	progress := float64(position) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	filled := int(progress * float64(width))
	empty := width - filled

	bar := "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"

	return bar
}

// formatDuration formats a duration as MM:SS or HH:MM:SS for longer durations
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
