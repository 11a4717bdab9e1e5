package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jfmyers9/scrobbled/internal/daemon"
	"github.com/spf13/cobra"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install scrobbled daemon as a login service",
	Long: `Install scrobbled daemon as a service that runs automatically on login.

On macOS this command will:
  - Generate a launchd plist in ~/Library/LaunchAgents/
  - Load the agent with launchctl

On Linux this command will:
  - Generate a systemd user unit in ~/.config/systemd/user/
  - Enable and start it with systemctl --user

The daemon will run in the background and scrobble tracks to Last.fm.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := daemon.DefaultServiceKind()
		if err != nil {
			return err
		}

		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// Resolve symlinks to get the actual binary path
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		logPath, err := daemon.GetDefaultLogPath()
		if err != nil {
			return fmt.Errorf("failed to get log path: %w", err)
		}
		if err := os.MkdirAll(logPath, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		content, err := daemon.GenerateService(kind, daemon.ServiceConfig{
			BinaryPath:       binaryPath,
			LogPath:          logPath,
			WorkingDirectory: home,
		})
		if err != nil {
			return fmt.Errorf("failed to generate service definition: %w", err)
		}

		servicePath, err := daemon.ServicePath(kind)
		if err != nil {
			return fmt.Errorf("failed to get service path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(servicePath), 0755); err != nil {
			return fmt.Errorf("failed to create service directory: %w", err)
		}

		if _, err := os.Stat(servicePath); err == nil {
			fmt.Println("Daemon is already installed. Uninstalling first...")
			if err := unloadService(kind); err != nil {
				fmt.Printf("Warning: failed to unload existing daemon: %v\n", err)
			}
		}

		if err := os.WriteFile(servicePath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write service file: %w", err)
		}
		fmt.Printf("✓ Installed %s service to %s\n", kind, servicePath)

		if err := loadService(kind, servicePath); err != nil {
			return fmt.Errorf("failed to load daemon: %w", err)
		}

		fmt.Println("✓ Daemon loaded and started successfully")
		fmt.Printf("✓ Logs will be written to %s\n", logPath)
		fmt.Println("\nThe scrobbled daemon is now running and will start automatically on login.")
		fmt.Println("\nYou can check the daemon status with:")
		if kind == daemon.ServiceLaunchd {
			fmt.Println("  launchctl list | grep scrobbled")
		} else {
			fmt.Println("  systemctl --user status scrobbled")
		}
		fmt.Println("\nTo uninstall, run:")
		fmt.Println("  scrobbled uninstall")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

// loadService starts the installed service
func loadService(kind, servicePath string) error {
	if kind == daemon.ServiceSystemd {
		if err := run("systemctl", "--user", "daemon-reload"); err != nil {
			return err
		}
		return run("systemctl", "--user", "enable", "--now", "scrobbled.service")
	}

	domain, err := launchdDomain()
	if err != nil {
		return err
	}
	return run("launchctl", "bootstrap", domain, servicePath)
}

// unloadService stops the service. Failures because the service is not
// loaded are reported as warnings only.
func unloadService(kind string) error {
	if kind == daemon.ServiceSystemd {
		if err := run("systemctl", "--user", "disable", "--now", "scrobbled.service"); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		return nil
	}

	domain, err := launchdDomain()
	if err != nil {
		return err
	}
	if err := run("launchctl", "bootout", domain+"/"+daemon.ServiceLabel); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	return nil
}

// launchdDomain returns the per-user launchd domain, gui/<uid>
func launchdDomain() (string, error) {
	out, err := exec.Command("id", "-u").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get user ID: %w", err)
	}
	return "gui/" + strings.TrimSpace(string(out)), nil
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return fmt.Errorf("%s %s failed: %s", name, args[0], msg)
		}
		return fmt.Errorf("failed to run %s: %w", name, err)
	}
	return nil
}
