/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scrobbled",
	Short: "Last.fm scrobbler for Apple Music and MPD",
	Long: `scrobbled is a Last.fm scrobbler for Apple Music and MPD.

It runs as a background daemon that watches the music player, decides
when a play counts as a scrobble according to Last.fm's rules, and
submits scrobbles in batches. Scrobbles that cannot be sent yet are kept
in a local queue and retried with backoff, across restarts.

It also provides commands to query the currently playing track (useful
in tmux status lines), inspect the queue, and watch the daemon in a
terminal UI.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
