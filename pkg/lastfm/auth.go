package lastfm

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// AuthService provides authentication operations for the Last.fm API.
type AuthService struct {
	client *Client
}

// GetToken requests an authentication token from Last.fm.
//
// This is the first step of the web authentication flow. After obtaining a
// token, the user must authorize it by visiting the URL returned by
// GetAuthURL.
func (a *AuthService) GetToken(ctx context.Context) (*Token, error) {
	inner, err := a.client.call(ctx, "auth.getToken", nil, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Token string `xml:"token"`
	}
	if err := unmarshalInner(inner, &resp); err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse token response: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("lastfm: empty token in response")
	}

	return &Token{Token: strings.TrimSpace(resp.Token)}, nil
}

// GetAuthURL returns the URL where users authorize the token.
func (a *AuthService) GetAuthURL(token string) string {
	q := url.Values{}
	q.Set("api_key", a.client.apiKey)
	q.Set("token", token)
	return "https://www.last.fm/api/auth/?" + q.Encode()
}

// GetSession exchanges an authorized token for a session key.
//
// Session keys do not expire unless the user revokes access, so the key
// should be stored and reused.
//
// Example:
//
//	session, err := client.Auth().GetSession(ctx, token.Token)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.SetSessionKey(session.Key)
func (a *AuthService) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("lastfm: token is required")
	}
	inner, err := a.client.call(ctx, "auth.getSession", map[string]string{"token": token}, false)
	if err != nil {
		return nil, err
	}
	return parseSession(inner)
}

// GetMobileSession creates a session directly from a username and password.
//
// This is the non-interactive flow used by headless clients, and the one
// used to renew a session that Last.fm stopped accepting.
func (a *AuthService) GetMobileSession(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("lastfm: username and password are required")
	}
	params := map[string]string{
		"username": username,
		"password": password,
	}
	inner, err := a.client.call(ctx, "auth.getMobileSession", params, false)
	if err != nil {
		return nil, err
	}
	return parseSession(inner)
}

func parseSession(inner []byte) (*Session, error) {
	var resp struct {
		Session struct {
			Name       string `xml:"name"`
			Key        string `xml:"key"`
			Subscriber int    `xml:"subscriber"`
		} `xml:"session"`
	}
	if err := unmarshalInner(inner, &resp); err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse session response: %w", err)
	}
	if resp.Session.Key == "" {
		return nil, fmt.Errorf("lastfm: empty session key in response")
	}

	return &Session{
		Key:        strings.TrimSpace(resp.Session.Key),
		Username:   strings.TrimSpace(resp.Session.Name),
		Subscriber: resp.Session.Subscriber == 1,
	}, nil
}

// unmarshalInner decodes the inner XML of an <lfm> envelope, which has no
// single root element of its own.
func unmarshalInner(inner []byte, v interface{}) error {
	wrapped := make([]byte, 0, len(inner)+13)
	wrapped = append(wrapped, "<root>"...)
	wrapped = append(wrapped, inner...)
	wrapped = append(wrapped, "</root>"...)
	return xml.Unmarshal(wrapped, v)
}
