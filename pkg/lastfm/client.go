package lastfm

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// Config holds client configuration.
type Config struct {
	APIKey     string       // Required: Last.fm API key
	APISecret  string       // Required: Last.fm API secret
	SessionKey string       // Optional: Session key for authenticated requests
	HTTPClient *http.Client // Optional: HTTP client (defaults to http.DefaultClient)
	BaseURL    string       // Optional: Base URL for API (defaults to Last.fm API, used for testing)
	Logger     Logger       // Optional: Logger interface for debug logging

	// MaxAttempts bounds how many times a single call is tried when the
	// failure is temporary. Zero uses DefaultMaxAttempts.
	MaxAttempts int
}

// Logger is an optional interface for logging.
type Logger interface {
	// Debugf logs a debug message with format and arguments.
	Debugf(format string, args ...interface{})
}

// Client is the main entry point for Last.fm API operations.
type Client struct {
	apiKey      string
	apiSecret   string
	httpClient  *http.Client
	baseURL     string
	logger      Logger
	maxAttempts int

	mu         sync.RWMutex
	sessionKey string

	auth     *AuthService
	scrobble *ScrobbleService
}

const (
	// DefaultBaseURL is the default Last.fm API endpoint.
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// DefaultMaxAttempts is the number of tries for a temporary failure.
	DefaultMaxAttempts = 3
)

// NewClient creates a new Last.fm API client.
//
// Returns an error wrapping ErrInvalidConfig if the API key or secret is
// missing, or if BaseURL is not an absolute http(s) URL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: APIKey is required", ErrInvalidConfig)
	}
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: APISecret is required", ErrInvalidConfig)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	c := &Client{
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		sessionKey:  cfg.SessionKey,
		httpClient:  httpClient,
		baseURL:     baseURL,
		logger:      cfg.Logger,
		maxAttempts: maxAttempts,
	}

	c.auth = &AuthService{client: c}
	c.scrobble = &ScrobbleService{client: c}

	return c, nil
}

// ValidateBaseURL checks that raw is an absolute http or https URL.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: base URL %q: %v", ErrInvalidConfig, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base URL %q must be an absolute http(s) URL", ErrInvalidConfig, raw)
	}
	return nil
}

// Auth returns the authentication service.
func (c *Client) Auth() *AuthService {
	return c.auth
}

// Scrobble returns the scrobbling service.
func (c *Client) Scrobble() *ScrobbleService {
	return c.scrobble
}

// SetSessionKey sets the session key for authenticated requests.
func (c *Client) SetSessionKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKey = key
}

// GetSessionKey returns the current session key.
func (c *Client) GetSessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionKey
}

// IsAuthenticated reports whether a session key is set.
func (c *Client) IsAuthenticated() bool {
	return c.GetSessionKey() != ""
}

// logDebugf logs a debug message if a logger is configured.
func (c *Client) logDebugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}
