// Package anilist reads a user's manga list from the AniList GraphQL API.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/Another0Noob/mangadex-sync/internal/throttle"
)

const endpoint = "https://graphql.anilist.co"

const listQuery = `query ($userName: String) {
  MediaListCollection(userName: $userName, type: MANGA) {
    lists {
      entries {
        media {
          id
          title { romaji english native }
          synonyms
        }
        status
        progress
      }
    }
  }
}`

type Client struct {
	httpClient *http.Client
	endpoint   string
	userName   string
	token      string
	throttle   *throttle.Throttle
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = u }
}

// WithToken sends the token as a bearer credential. Private lists need one.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithThrottle(t *throttle.Throttle) Option {
	return func(c *Client) { c.throttle = t }
}

func NewClient(userName string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: time.Minute},
		endpoint:   endpoint,
		userName:   userName,
		throttle:   throttle.New(1, time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "anilist " + c.userName }

type mediaTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

type listEntry struct {
	Media struct {
		ID       int        `json:"id"`
		Title    mediaTitle `json:"title"`
		Synonyms []string   `json:"synonyms"`
	} `json:"media"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

type listResponse struct {
	Data struct {
		MediaListCollection *struct {
			Lists []struct {
				Entries []listEntry `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

// FetchList returns every manga on the user's lists. A title placed in several custom lists
// appears once, as first seen.
func (c *Client) FetchList(ctx context.Context) ([]models.SourceEntry, error) {
	const op = "anilist list"

	body, err := json.Marshal(map[string]any{
		"query":     listQuery,
		"variables": map[string]string{"userName": c.userName},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal query: %w", op, err)
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit wait: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Network(op, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Network(op, fmt.Errorf("read body: %w", err))
	}

	var out listResponse
	decodeErr := json.Unmarshal(b, &out)

	if resp.StatusCode != http.StatusOK {
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
			c.throttle.Pause(retryAfter)
		}
		cause := errors.New(http.StatusText(resp.StatusCode))
		if decodeErr == nil && len(out.Errors) > 0 {
			cause = errors.New(out.Errors[0].Message)
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return nil, apperr.Configf("anilist user %q not found", c.userName)
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, fmt.Errorf("%w: anilist: %v", apperr.ErrAuthentication, cause)
		}
		return nil, apperr.FromStatus(op, resp.StatusCode, retryAfter, cause)
	}
	if decodeErr != nil {
		return nil, apperr.Malformed(op, decodeErr)
	}
	if len(out.Errors) > 0 {
		return nil, &apperr.RemoteError{Op: op, Kind: apperr.Permanent, Err: errors.New(out.Errors[0].Message)}
	}
	if out.Data.MediaListCollection == nil {
		return nil, apperr.Malformed(op, errors.New("missing MediaListCollection"))
	}

	var entries []models.SourceEntry
	seen := make(map[int]struct{})
	for _, list := range out.Data.MediaListCollection.Lists {
		for _, e := range list.Entries {
			if _, dup := seen[e.Media.ID]; dup {
				continue
			}
			seen[e.Media.ID] = struct{}{}

			entry, err := toSourceEntry(e)
			if err != nil {
				return nil, fmt.Errorf("%s: media %d: %w", op, e.Media.ID, err)
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func toSourceEntry(e listEntry) (models.SourceEntry, error) {
	status, err := mapStatus(e.Status)
	if err != nil {
		return models.SourceEntry{}, err
	}
	title, alts := titles(e.Media.Title, e.Media.Synonyms)
	if title == "" {
		return models.SourceEntry{}, errors.New("media has no title")
	}
	progress := e.Progress
	if progress < 0 {
		progress = 0
	}
	return models.SourceEntry{
		ID:        strconv.Itoa(e.Media.ID),
		Title:     title,
		AltTitles: alts,
		Status:    status,
		Progress:  progress,
	}, nil
}

func mapStatus(s string) (models.SourceStatus, error) {
	switch s {
	case "CURRENT":
		return models.SourceReading, nil
	case "PLANNING":
		return models.SourcePlanning, nil
	case "COMPLETED":
		return models.SourceCompleted, nil
	case "PAUSED":
		return models.SourcePaused, nil
	case "DROPPED":
		return models.SourceDropped, nil
	case "REPEATING":
		return models.SourceRepeating, nil
	}
	return "", fmt.Errorf("unknown anilist status %q", s)
}

// titles picks english, then romaji, then native as canonical. The rest and the synonyms,
// in that order, become alternates.
func titles(t mediaTitle, synonyms []string) (string, []string) {
	ordered := []string{t.English, t.Romaji, t.Native}
	ordered = append(ordered, synonyms...)

	var canonical string
	var alts []string
	seen := make(map[string]struct{})
	for _, s := range ordered {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		if canonical == "" {
			canonical = s
			continue
		}
		alts = append(alts, s)
	}
	return canonical, alts
}
