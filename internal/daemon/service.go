package daemon

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// ServiceLabel names the launchd job and the systemd unit.
const ServiceLabel = "com.scrobbled.daemon"

// Service managers supported by install and uninstall.
const (
	ServiceLaunchd = "launchd"
	ServiceSystemd = "systemd"
)

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
		<string>daemon</string>
		<string>--log-file</string>
		<string>{{.LogPath}}/scrobbled.log</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.LogPath}}/scrobbled.out</string>
	<key>StandardErrorPath</key>
	<string>{{.LogPath}}/scrobbled.err</string>
	<key>WorkingDirectory</key>
	<string>{{.WorkingDirectory}}</string>
	<key>EnvironmentVariables</key>
	<dict>
		<key>PATH</key>
		<string>/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin</string>
	</dict>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=scrobbled Last.fm scrobbler
After=network-online.target sound.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.BinaryPath}} daemon --log-file {{.LogPath}}/scrobbled.log
WorkingDirectory={{.WorkingDirectory}}
Restart=on-failure
RestartSec=10
# SIGINT lets queued scrobbles reach the database before exit
KillSignal=SIGINT
TimeoutStopSec=30

[Install]
WantedBy=default.target
`

// ServiceConfig holds the values substituted into service definitions
type ServiceConfig struct {
	Label            string
	BinaryPath       string
	LogPath          string
	WorkingDirectory string
}

// GenerateLaunchdPlist renders a launchd agent definition
func GenerateLaunchdPlist(config ServiceConfig) (string, error) {
	return render("plist", plistTemplate, config)
}

// GenerateSystemdUnit renders a systemd user unit
func GenerateSystemdUnit(config ServiceConfig) (string, error) {
	return render("systemd", systemdTemplate, config)
}

// GenerateService renders the definition for the given service manager
func GenerateService(kind string, config ServiceConfig) (string, error) {
	switch kind {
	case ServiceLaunchd:
		return GenerateLaunchdPlist(config)
	case ServiceSystemd:
		return GenerateSystemdUnit(config)
	default:
		return "", fmt.Errorf("unsupported service manager %q", kind)
	}
}

func render(name, text string, config ServiceConfig) (string, error) {
	if config.Label == "" {
		config.Label = ServiceLabel
	}

	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}

	return buf.String(), nil
}

// DefaultServiceKind returns the service manager for the running OS
func DefaultServiceKind() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return ServiceLaunchd, nil
	case "linux":
		return ServiceSystemd, nil
	default:
		return "", fmt.Errorf("service install is not supported on %s", runtime.GOOS)
	}
}

// ServicePath returns the path where the service definition is installed
func ServicePath(kind string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch kind {
	case ServiceLaunchd:
		return filepath.Join(home, "Library", "LaunchAgents", ServiceLabel+".plist"), nil
	case ServiceSystemd:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "systemd", "user", "scrobbled.service"), nil
	default:
		return "", fmt.Errorf("unsupported service manager %q", kind)
	}
}

// GetDefaultLogPath returns the default path for daemon logs
func GetDefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "scrobbled", "logs"), nil
}
