package eventapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
)

// DefaultBaseURL is the public Dicoding event API.
const DefaultBaseURL = "https://event-api.dicoding.dev/"

// ErrTransport marks failures where no usable response was obtained:
// connection errors, timeouts, unreadable or malformed bodies.
var ErrTransport = errors.New("event api: transport failure")

// APIError is returned when the server answered with a non-success status.
type APIError struct {
	StatusCode int
	// Message is the HTTP reason phrase, e.g. "Not Found".
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("event api: %d %s", e.StatusCode, e.Message)
}

// Source is the query interface the rest of the service consumes.
type Source interface {
	ListEvents(ctx context.Context, status model.Status, query string) ([]model.Event, error)
	GetEvent(ctx context.Context, id int) (*model.Event, error)
	LatestEvent(ctx context.Context) (*model.Event, error)
}

// Client talks to the event API over HTTP.
type Client struct {
	client  *http.Client
	baseURL *url.URL
}

// NewClient creates a Client for baseURL. A zero timeout leaves the
// transport defaults in place.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("event api: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("event api: base url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: u,
	}, nil
}

// NewClientWithHTTP is NewClient with a caller-provided *http.Client.
func NewClientWithHTTP(baseURL string, hc *http.Client) (*Client, error) {
	c, err := NewClient(baseURL, 0)
	if err != nil {
		return nil, err
	}
	if hc != nil {
		c.client = hc
	}
	return c, nil
}

// ListEvents returns events filtered by status and, when query is not empty,
// by server-side text search. A response without listEvents yields an empty,
// non-nil slice.
func (c *Client) ListEvents(ctx context.Context, status model.Status, query string) ([]model.Event, error) {
	q := url.Values{}
	q.Set("active", strconv.Itoa(int(status)))
	if query != "" {
		q.Set("q", query)
	}

	resp, err := c.get(ctx, "events", q)
	if err != nil {
		return nil, err
	}
	if resp.ListEvents == nil {
		return []model.Event{}, nil
	}
	return resp.ListEvents, nil
}

// GetEvent returns one event by id.
func (c *Client) GetEvent(ctx context.Context, id int) (*model.Event, error) {
	resp, err := c.get(ctx, "events/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}
	return resp.Event, nil
}

// LatestEvent returns the first event of the unfiltered list, or nil when
// the server has no events.
func (c *Client) LatestEvent(ctx context.Context) (*model.Event, error) {
	q := url.Values{}
	q.Set("active", strconv.Itoa(int(model.StatusAll)))
	q.Set("limit", "1")

	resp, err := c.get(ctx, "events", q)
	if err != nil {
		return nil, err
	}
	if len(resp.Events) == 0 {
		return nil, nil
	}
	ev := resp.Events[0]
	return &ev, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*model.EventResponse, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	appLog.Debug("event api request start", "url", redactURL(u.String()), "path", path)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: reasonPhrase(resp)}
		appLog.Error("event api non-OK response", apiErr, "path", path, "status", resp.StatusCode)
		return nil, apiErr
	}

	var out model.EventResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrTransport, err)
	}

	appLog.Debug("event api request success", "path", path, "status", resp.StatusCode,
		"list_events", len(out.ListEvents), "events", len(out.Events), "has_event", out.Event != nil)
	return &out, nil
}

// reasonPhrase extracts "Not Found" from "404 Not Found". HTTP/2 carries no
// reason phrase, so the standard text for the code is used instead.
func reasonPhrase(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode) + " "
	if msg := strings.TrimSpace(strings.TrimPrefix(resp.Status, prefix)); msg != "" && msg != resp.Status {
		return msg
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "HTTP " + strconv.Itoa(resp.StatusCode)
}

// redactURL hides the path and query of an API URL for logging purposes.
//
//	https://event-api.dicoding.dev/events?q=secret
//	-> https://event-api.dicoding.dev/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "...(redacted)"
	}
	host := u[i+3:]
	if j := strings.IndexByte(host, '/'); j >= 0 {
		host = host[:j]
	}
	return u[:i+3] + host + redactedSuffix
}
