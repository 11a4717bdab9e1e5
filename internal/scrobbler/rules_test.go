package scrobbler

import (
	"testing"
	"time"
)

func TestShouldScrobble(t *testing.T) {
	tests := []struct {
		name   string
		track  time.Duration
		played time.Duration
		want   bool
	}{
		{"too short, fully played", 29 * time.Second, 29 * time.Second, false},
		{"30s track at 15s", 30 * time.Second, 15 * time.Second, true},
		{"30s track at 14s", 30 * time.Second, 14 * time.Second, false},
		{"3m track at 90s", 3 * time.Minute, 90 * time.Second, true},
		{"3m track at 89s", 3 * time.Minute, 89 * time.Second, false},
		{"8m track at 4m", 8 * time.Minute, 4 * time.Minute, true},
		{"8m track at 3m59s", 8 * time.Minute, 3*time.Minute + 59*time.Second, false},
		{"10m track capped at 4m", 10 * time.Minute, 4 * time.Minute, true},
		{"1h track at 3m", 60 * time.Minute, 3 * time.Minute, false},
		{"not played", 3 * time.Minute, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldScrobble(tt.track, tt.played); got != tt.want {
				t.Errorf("ShouldScrobble(%v, %v) = %v, want %v", tt.track, tt.played, got, tt.want)
			}
		})
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name   string
		track  time.Duration
		want   time.Duration
		wantOK bool
	}{
		{"too short", 29 * time.Second, 0, false},
		{"zero", 0, 0, false},
		{"30 seconds", 30 * time.Second, 15 * time.Second, true},
		{"200 seconds", 200 * time.Second, 100 * time.Second, true},
		{"4 minutes", 4 * time.Minute, 2 * time.Minute, true},
		{"8 minutes", 8 * time.Minute, 4 * time.Minute, true},
		{"600 seconds", 600 * time.Second, 240 * time.Second, true},
		{"1 hour", time.Hour, 4 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Threshold(tt.track)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Threshold(%v) = (%v, %v), want (%v, %v)", tt.track, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsEligible(t *testing.T) {
	for d, want := range map[time.Duration]bool{
		0:                false,
		time.Second:      false,
		29 * time.Second: false,
		30 * time.Second: true,
		3 * time.Minute:  true,
	} {
		if got := IsEligible(d); got != want {
			t.Errorf("IsEligible(%v) = %v, want %v", d, got, want)
		}
	}
}

func BenchmarkShouldScrobble(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ShouldScrobble(3*time.Minute, 90*time.Second)
	}
}
