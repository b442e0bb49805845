package mangadexapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
)

const authURL = "https://auth.mangadex.org/realms/mangadex/protocol/openid-connect/token"

// MangaDex access tokens live 15 minutes unless the grant says otherwise.
const defaultTokenLifetime = 15 * time.Minute

// SetAuth stores the personal client credentials used for the password grant.
func (c *Client) SetAuth(a AuthForm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = a
}

// Authenticate performs the password grant and replaces the current session.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	if !c.auth.Complete() {
		return fmt.Errorf("%w: mangadex credentials incomplete", apperr.ErrAuthentication)
	}
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.auth.Username)
	form.Set("password", c.auth.Password)
	form.Set("client_id", c.auth.ClientID)
	form.Set("client_secret", c.auth.ClientSecret)

	token, err := c.postToken(ctx, "authenticate", form)
	if err != nil {
		return err
	}
	c.token = token
	c.expiry = c.expiryFor(token)
	return nil
}

// RefreshToken renews the access token. When the refresh grant is refused and credentials
// are available, it logs in again.
func (c *Client) RefreshToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	if c.token == nil || c.token.RefreshToken == "" {
		return c.authenticateLocked(ctx)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.token.RefreshToken)
	form.Set("client_id", c.auth.ClientID)
	form.Set("client_secret", c.auth.ClientSecret)

	token, err := c.postToken(ctx, "refresh token", form)
	if err != nil {
		if apperr.IsAuth(err) && c.auth.Complete() {
			return c.authenticateLocked(ctx)
		}
		return err
	}
	if token.AccessToken != "" {
		c.token.AccessToken = token.AccessToken
	}
	if token.RefreshToken != "" {
		c.token.RefreshToken = token.RefreshToken
	}
	c.token.ExpiresIn = token.ExpiresIn
	c.expiry = c.expiryFor(c.token)
	return nil
}

// EnsureToken logs in on first use and refreshes a token that expires within a minute.
// A client without credentials or session stays anonymous.
func (c *Client) EnsureToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.token == nil && c.auth.Complete():
		return c.authenticateLocked(ctx)
	case c.token == nil:
		return nil
	case c.expiry.IsZero() || c.expiry.Sub(c.now()) >= time.Minute:
		return nil
	case c.token.RefreshToken == "" && !c.auth.Complete():
		return nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	return nil
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return ""
	}
	return c.token.AccessToken
}

func (c *Client) canRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth.Complete() || (c.token != nil && c.token.RefreshToken != "")
}

func (c *Client) expiryFor(t *Token) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.ExpiresIn > 0 {
		return c.now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return c.now().Add(defaultTokenLifetime)
}

func (c *Client) postToken(ctx context.Context, op string, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Network(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, &apperr.RemoteError{
				Op:     op,
				Status: resp.StatusCode,
				Kind:   apperr.Permanent,
				Err:    fmt.Errorf("%w: %s", apperr.ErrAuthentication, truncate(string(b), 200)),
			}
		}
		return nil, apperr.FromStatus(op, resp.StatusCode, parseRetryAfter(resp.Header, c.now()), fmt.Errorf("%s", truncate(string(b), 200)))
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, apperr.Malformed(op, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w: empty access token", op, apperr.ErrAuthentication)
	}
	return &token, nil
}
