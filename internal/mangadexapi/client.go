package mangadexapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/throttle"
	"github.com/google/uuid"
)

const (
	baseURL   = "https://api.mangadex.org"
	userAgent = "MangaDex-Sync/0.2 (https://github.com/Another0Noob/mangadex-sync)"
)
const (
	rateLimitRequests = 5
	rateLimitDuration = time.Second
)

// Client talks to the MangaDex API. It is safe for concurrent use; every request
// passes through one shared throttle.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authURL    string
	userAgent  string
	throttle   *throttle.Throttle

	mu    sync.Mutex
	auth  AuthForm
	token *Token
	// expiry of token.AccessToken
	expiry time.Time
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another API host (tests, mirrors).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithAuthURL(u string) Option {
	return func(c *Client) { c.authURL = u }
}

// WithThrottle replaces the default 5 req/s throttle.
func WithThrottle(t *throttle.Throttle) Option {
	return func(c *Client) { c.throttle = t }
}

// NewClient creates a new MangaDex API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: time.Minute},
		baseURL:    baseURL,
		authURL:    authURL,
		userAgent:  userAgent,
		throttle:   throttle.New(rateLimitRequests, rateLimitDuration),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken injects a session obtained elsewhere. Without a refresh token and credentials
// the session cannot be renewed.
func (c *Client) SetToken(token *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiry = c.expiryFor(token)
}

// doRequest performs an HTTP request to the MangaDex API (raw, no JSON decoding).
// A 401 is answered with one token refresh and one resend.
func (c *Client) doRequest(ctx context.Context, op, method, endpoint string, params url.Values, body any) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request body: %w", op, err)
		}
		bodyBytes = b
	}

	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", op, err)
		}
		if err := c.EnsureToken(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("%s: create request: %w", op, err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if tok := c.accessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apperr.Network(op, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 && c.canRefresh() {
			resp.Body.Close()
			if err := c.RefreshToken(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			continue
		}
		return resp, nil
	}
}

// readResponse reads the body and converts non-2xx statuses into apperr.RemoteError.
func (c *Client) readResponse(op string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Network(op, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return b, nil
	}

	retryAfter := parseRetryAfter(resp.Header, c.now())
	if resp.StatusCode == http.StatusTooManyRequests {
		c.throttle.Pause(retryAfter)
		// another caller may already hold a longer pause
		retryAfter = max(retryAfter, c.throttle.PausedFor())
	}

	var cause error
	var env Envelope
	if json.Unmarshal(b, &env) == nil && len(env.Errors) > 0 {
		cause = fmt.Errorf("%s: %s", env.Errors[0].Title, env.Errors[0].Detail)
	} else if len(b) > 0 && resp.StatusCode != http.StatusNotFound {
		cause = errors.New(truncate(string(b), 200))
	}
	return nil, apperr.FromStatus(op, resp.StatusCode, retryAfter, cause)
}

// doEnvelope executes the request and decodes the common response wrapper.
func (c *Client) doEnvelope(ctx context.Context, op, method, endpoint string, params url.Values, body any) (*Envelope, error) {
	resp, err := c.doRequest(ctx, op, method, endpoint, params, body)
	if err != nil {
		return nil, err
	}
	b, err := c.readResponse(op, resp)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, apperr.Malformed(op, err)
	}

	// Treat any "error" result as failure, even if errors array is empty.
	if env.Result == "error" {
		if len(env.Errors) > 0 {
			first := env.Errors[0]
			return nil, apperr.FromStatus(op, first.Status, 0, fmt.Errorf("%s: %s", first.Title, first.Detail))
		}
		return nil, &apperr.RemoteError{Op: op, Kind: apperr.Permanent, Err: errors.New("result=error with no error details")}
	}
	return &env, nil
}

// doJSON decodes the envelope, then its data field into out.
func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, params url.Values, body any, out any) error {
	env, err := c.doEnvelope(ctx, op, method, endpoint, params, body)
	if err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.Malformed(op, fmt.Errorf("decode data: %w", err))
	}
	return nil
}

// doInto decodes the whole body into out, for endpoints without a data field.
func (c *Client) doInto(ctx context.Context, op, method, endpoint string, params url.Values, body any, out any) error {
	resp, err := c.doRequest(ctx, op, method, endpoint, params, body)
	if err != nil {
		return err
	}
	b, err := c.readResponse(op, resp)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return apperr.Malformed(op, err)
	}
	return nil
}

// parseRetryAfter understands MangaDex's X-RateLimit-Retry-After (unix seconds) and the
// standard Retry-After (seconds or HTTP date).
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("X-RateLimit-Retry-After"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(ts, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ToValues converts QueryParams to url.Values for the request.
func (q QueryParams) ToValues() url.Values {
	v := url.Values{}
	rv := reflect.ValueOf(q)
	rt := reflect.TypeOf(q)

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		tag := sf.Tag.Get("url")
		if tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		name := parts[0]
		omitempty := false
		for _, p := range parts[1:] {
			if p == "omitempty" {
				omitempty = true
			}
		}
		fv := rv.Field(i)

		if omitempty && isZeroValue(fv) {
			continue
		}

		switch fv.Kind() {
		case reflect.Map:
			addMapParams(v, name, fv)
		case reflect.Slice, reflect.Array:
			for j := 0; j < fv.Len(); j++ {
				item := fv.Index(j)
				if isZeroValue(item) {
					continue
				}
				v.Add(name, valueToString(item))
			}
		default:
			v.Add(name, valueToString(fv))
		}
	}
	return v
}

// addMapParams renders map fields as name[key]=value in key order.
func addMapParams(v url.Values, name string, m reflect.Value) {
	keys := make([]string, 0, m.Len())
	for _, k := range m.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := m.MapIndex(reflect.ValueOf(k).Convert(m.Type().Key()))
		v.Add(name+"["+k+"]", valueToString(val))
	}
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	}
	return v.IsZero()
}

func valueToString(v reflect.Value) string {
	switch val := v.Interface().(type) {
	case uuid.UUID:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

func decodeData(data json.RawMessage, out any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, out)
}
