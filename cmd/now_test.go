package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jfmyers9/scrobbled/internal/music"
	"github.com/mattn/go-runewidth"
)

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "no padding when width is 0",
			input:    "Hello",
			width:    0,
			expected: "Hello",
		},
		{
			name:     "no padding when width is negative",
			input:    "Hello",
			width:    -1,
			expected: "Hello",
		},
		{
			name:     "pad short text with spaces",
			input:    "Hi",
			width:    10,
			expected: "Hi        ",
		},
		{
			name:     "exact width unchanged",
			input:    "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{
			name:     "handle emoji correctly",
			input:    "🎵 Music",
			width:    15,
			expected: "🎵 Music       ", // emoji is 2 chars wide, so 8 total + 7 spaces
		},
		{
			name:     "truncate emoji text",
			input:    "🎵 This is a very long song title",
			width:    15,
			expected: "🎵 This is a...",
		},
		{
			name:     "handle unicode characters",
			input:    "日本語",
			width:    10,
			expected: "日本語    ",
		},
		{
			name:     "truncate unicode text",
			input:    "日本語とても長いテキスト",
			width:    10,
			expected: "日本語... ", // 日本語 is 6 chars, ... is 3, need 1 space
		},
		{
			name:     "empty string padding",
			input:    "",
			width:    5,
			expected: "     ",
		},
		{
			name:     "single character padding",
			input:    "A",
			width:    5,
			expected: "A    ",
		},
		{
			name:     "minimum width for truncation",
			input:    "Hello",
			width:    3,
			expected: "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := padToWidth(tt.input, tt.width)
			if result != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, expected %q",
					tt.input, tt.width, result, tt.expected)
			}

			// Verify the result has the expected display width (if width > 0)
			if tt.width > 0 {
				resultWidth := runewidth.StringWidth(result)
				if resultWidth != tt.width {
					t.Errorf("padToWidth(%q, %d) produced width %d, expected %d",
						tt.input, tt.width, resultWidth, tt.width)
				}
			}
		})
	}
}

func TestFormatTrack(t *testing.T) {
	data := nowData{
		Track: music.Track{
			Name:     "Bohemian Rhapsody",
			Artist:   "Queen",
			Album:    "A Night at the Opera",
			Duration: 354 * time.Second,
			State:    music.StatePlaying,
		},
		Scrobbled: true,
		Pending:   2,
	}

	tests := []struct {
		name     string
		template string
		expected string
		wantErr  bool
	}{
		{"default", "{{.Artist}} - {{.Name}}", "Queen - Bohemian Rhapsody", false},
		{"album and state", "{{.Name}} ({{.Album}}) {{.State}}", "Bohemian Rhapsody (A Night at the Opera) playing", false},
		{"scrobble marker", "{{if .Scrobbled}}✓ {{end}}{{.Name}} [{{.Pending}}]", "✓ Bohemian Rhapsody [2]", false},
		{"invalid template", "{{.Name", "", true},
		{"unknown field", "{{.Genre}}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatTrack(data, tt.template)
			if tt.wantErr {
				if err == nil {
					t.Errorf("formatTrack(%q) expected error", tt.template)
				}
				return
			}
			if err != nil {
				t.Fatalf("formatTrack(%q) unexpected error: %v", tt.template, err)
			}
			if got != tt.expected {
				t.Errorf("formatTrack(%q) = %q, expected %q", tt.template, got, tt.expected)
			}
		})
	}
}

func TestMarqueeText(t *testing.T) {
	// Short text is padded, not scrolled
	if got := marqueeText("Hi", 5, 2, " | "); got != "Hi   " {
		t.Errorf("marqueeText short = %q", got)
	}

	if got := marqueeText("unchanged", 0, 2, " | "); got != "unchanged" {
		t.Errorf("marqueeText width 0 = %q", got)
	}

	long := "Queen - Bohemian Rhapsody (A Night at the Opera)"
	for _, width := range []int{5, 10, 20} {
		got := marqueeText(long, width, 3, " • ")
		if w := runewidth.StringWidth(got); w != width {
			t.Errorf("marqueeText(width=%d) produced width %d: %q", width, w, got)
		}
	}
}

func TestLoadStatus(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		st, err := loadStatus(filepath.Join(dir, "missing.json"))
		if err != nil || st != nil {
			t.Errorf("loadStatus() = %+v, %v; want nil, nil", st, err)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := loadStatus(path); err == nil {
			t.Error("loadStatus() succeeded on a corrupt status file")
		}
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "status.json")
		data := `{"track":{"Name":"Song","Artist":"Artist","State":1},"state":"playing","pending":2}`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		st, err := loadStatus(path)
		if err != nil {
			t.Fatalf("loadStatus() error = %v", err)
		}
		if st.Pending != 2 || st.Track == nil || st.Track.Name != "Song" {
			t.Errorf("loadStatus() = %+v", st)
		}
	})
}
