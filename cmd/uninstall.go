package cmd

import (
	"fmt"
	"os"

	"github.com/jfmyers9/scrobbled/internal/daemon"
	"github.com/spf13/cobra"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the scrobbled login service",
	Long: `Uninstall the scrobbled daemon service and stop it from running automatically.

This command will:
  - Stop the running daemon (if any)
  - Unload it from launchd (macOS) or disable it in systemd (Linux)
  - Remove the service file

Queued scrobbles stay in the data directory and are sent the next time
the daemon runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := daemon.DefaultServiceKind()
		if err != nil {
			return err
		}

		servicePath, err := daemon.ServicePath(kind)
		if err != nil {
			return fmt.Errorf("failed to get service path: %w", err)
		}

		if _, err := os.Stat(servicePath); os.IsNotExist(err) {
			fmt.Println("Daemon is not installed (service file not found)")
			return nil
		}

		fmt.Println("Stopping daemon...")
		if err := unloadService(kind); err != nil {
			fmt.Printf("Warning: failed to unload daemon: %v\n", err)
			fmt.Println("Continuing with service file removal...")
		} else {
			fmt.Println("✓ Daemon stopped")
		}

		if err := os.Remove(servicePath); err != nil {
			return fmt.Errorf("failed to remove service file: %w", err)
		}

		fmt.Printf("✓ Removed %s\n", servicePath)
		fmt.Println("\nThe scrobbled daemon has been uninstalled successfully.")
		fmt.Println("It will no longer run automatically on login.")
		fmt.Println("\nTo reinstall, run:")
		fmt.Println("  scrobbled install")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
