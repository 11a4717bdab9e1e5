package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jfmyers9/scrobbled/internal/config"
	"github.com/jfmyers9/scrobbled/pkg/lastfm"
	"github.com/spf13/cobra"
)

var authMobile bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with Last.fm",
	Long: `Authenticate with Last.fm to enable scrobbling.

This command will guide you through the Last.fm authentication process:
1. You'll be prompted to enter your Last.fm API key and secret
2. A browser URL will be provided for you to authorize the application
3. After authorization, a session key will be saved to your config file

With --mobile, your Last.fm username and password are exchanged for a
session key directly. They are kept in the config file so the daemon can
obtain a fresh session if Last.fm revokes the current one.

You can get API credentials from: https://www.last.fm/api/account/create`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.Flags().BoolVar(&authMobile, "mobile", false, "Authenticate with username and password instead of the browser")
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("Last.fm Authentication")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("You can get API credentials from: https://www.last.fm/api/account/create")
	fmt.Println()

	// Check if we already have credentials
	if cfg.LastFM.APIKey != "" && cfg.LastFM.APISecret != "" {
		fmt.Printf("Found existing API credentials.\n")
		fmt.Printf("API Key: %s\n", cfg.LastFM.APIKey)
		if !confirm(reader, "\nUse existing credentials? [Y/n]: ") {
			cfg.LastFM.APIKey = ""
			cfg.LastFM.APISecret = ""
		}
	}

	if cfg.LastFM.APIKey == "" {
		if cfg.LastFM.APIKey, err = prompt(reader, "Enter your Last.fm API Key: "); err != nil {
			return err
		}
	}
	if cfg.LastFM.APISecret == "" {
		if cfg.LastFM.APISecret, err = prompt(reader, "Enter your Last.fm API Secret: "); err != nil {
			return err
		}
	}

	if cfg.LastFM.APIKey == "" || cfg.LastFM.APISecret == "" {
		return fmt.Errorf("API key and secret are required")
	}

	client, err := lastfm.NewClient(lastfm.Config{
		APIKey:    cfg.LastFM.APIKey,
		APISecret: cfg.LastFM.APISecret,
		BaseURL:   cfg.LastFM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create Last.fm client: %w", err)
	}

	var session *lastfm.Session
	if authMobile {
		session, err = authenticateMobile(ctx, reader, client, cfg)
	} else {
		session, err = authenticateToken(ctx, reader, client)
	}
	if err != nil {
		return err
	}

	cfg.LastFM.SessionKey = session.Key
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	configPath := config.GetConfigDir()
	fmt.Printf("\n✓ Authenticated as %s\n", session.Username)
	fmt.Printf("✓ Session key saved to %s/config.yaml\n", configPath)
	fmt.Println("\nYou can now use 'scrobbled daemon' to start scrobbling.")

	return nil
}

// authenticateToken runs the browser flow: auth.getToken, user approval,
// then auth.getSession.
func authenticateToken(ctx context.Context, reader *bufio.Reader, client *lastfm.Client) (*lastfm.Session, error) {
	fmt.Println("\nGenerating authentication token...")
	token, err := client.Auth().GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate auth token: %w", err)
	}

	fmt.Println("\nPlease visit this URL to authorize scrobbled:")
	fmt.Printf("\n  %s\n\n", client.Auth().GetAuthURL(token.Token))
	fmt.Println("After authorizing, press Enter to continue...")
	_, _ = reader.ReadString('\n')

	// The approval can take a moment to reach the API
	fmt.Println("Retrieving session key...")
	const maxRetries = 3
	retryDelay := 2 * time.Second

	var session *lastfm.Session
	for i := 0; i < maxRetries; i++ {
		session, err = client.Auth().GetSession(ctx, token.Token)
		if err == nil {
			return session, nil
		}

		if i < maxRetries-1 {
			fmt.Printf("Failed to retrieve session (attempt %d/%d). Retrying in %v...\n",
				i+1, maxRetries, retryDelay)
			time.Sleep(retryDelay)
		}
	}

	return nil, fmt.Errorf("failed to get session key after %d attempts: %w", maxRetries, err)
}

// authenticateMobile exchanges a username and password for a session and
// keeps them for later re-authentication.
func authenticateMobile(ctx context.Context, reader *bufio.Reader, client *lastfm.Client, cfg *config.Config) (*lastfm.Session, error) {
	var err error
	if cfg.LastFM.Username == "" {
		if cfg.LastFM.Username, err = prompt(reader, "Last.fm username: "); err != nil {
			return nil, err
		}
	}
	if cfg.LastFM.Password == "" {
		if cfg.LastFM.Password, err = prompt(reader, "Last.fm password: "); err != nil {
			return nil, err
		}
	}

	session, err := client.Auth().GetMobileSession(ctx, cfg.LastFM.Username, cfg.LastFM.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to get mobile session: %w", err)
	}
	return session, nil
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func confirm(reader *bufio.Reader, label string) bool {
	fmt.Print(label)
	response, err := reader.ReadString('\n')
	if err != nil {
		return true
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "" || response == "y" || response == "yes"
}
