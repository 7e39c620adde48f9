// Package zulip is a minimal Zulip REST client covering what the competition
// service needs: an event queue for incoming private messages, private
// replies, and attachment downloads.
package zulip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/oraculus/pkg/logger"
)

// Default client configuration constants.
const (
	defaultHTTPTimeout = 90 * time.Second // must outlast the server's long-poll window
	maxAttachmentBytes = 16 << 20
)

// csv attachment markdown: [name.csv](/user_uploads/...).
var attachmentPattern = regexp.MustCompile(`(?i)\[([^\]]+\.csv)\]\(([^)]+)\)`)

// Message is an incoming Zulip message as delivered in an event.
type Message struct {
	SenderID       int64  `json:"sender_id"`
	SenderEmail    string `json:"sender_email"`
	SenderFullName string `json:"sender_full_name"`
	Content        string `json:"content"`
	Type           string `json:"type"`
}

// Event is a single entry from the events long-poll.
type Event struct {
	ID      int64    `json:"id"`
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// Client talks to a single Zulip realm with bot credentials.
type Client struct {
	httpc  *http.Client
	site   string
	email  string
	apiKey string
	logger logger.Logger
}

// New creates a Client for the given realm site (e.g. https://chat.example.com).
func New(site, email, apiKey string, opts ...Option) *Client {
	c := &Client{
		httpc:  &http.Client{Timeout: defaultHTTPTimeout},
		site:   strings.TrimRight(site, "/"),
		email:  email,
		apiKey: apiKey,
		logger: logger.Get().Named("zulip"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Email returns the bot's own address, used to skip self-sent messages.
func (c *Client) Email() string { return c.email }

// RegisterQueue registers an event queue for message events and returns the
// queue id and the last event id to resume from.
func (c *Client) RegisterQueue(ctx context.Context) (string, int64, error) {
	form := url.Values{}
	form.Set("event_types", `["message"]`)

	var resp struct {
		Result      string `json:"result"`
		Msg         string `json:"msg"`
		QueueID     string `json:"queue_id"`
		LastEventID int64  `json:"last_event_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/register", form, &resp); err != nil {
		return "", 0, fmt.Errorf("register event queue: %w", err)
	}
	if resp.Result != "success" {
		return "", 0, fmt.Errorf("register event queue: %s", resp.Msg)
	}
	return resp.QueueID, resp.LastEventID, nil
}

// Events long-polls the given queue for events past lastEventID. The call
// blocks server-side until events arrive or the poll window closes.
func (c *Client) Events(ctx context.Context, queueID string, lastEventID int64) ([]Event, error) {
	q := url.Values{}
	q.Set("queue_id", queueID)
	q.Set("last_event_id", strconv.FormatInt(lastEventID, 10))

	var resp struct {
		Result string  `json:"result"`
		Msg    string  `json:"msg"`
		Code   string  `json:"code"`
		Events []Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/events?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("poll events: %w", err)
	}
	if resp.Result != "success" {
		if resp.Code == "BAD_EVENT_QUEUE_ID" {
			return nil, fmt.Errorf("poll events: %w", ErrBadQueue)
		}
		return nil, fmt.Errorf("poll events: %s", resp.Msg)
	}
	return resp.Events, nil
}

// SendPrivate sends a private message to a single recipient email.
func (c *Client) SendPrivate(ctx context.Context, email, content string) error {
	form := url.Values{}
	form.Set("type", "private")
	form.Set("to", email)
	form.Set("content", content)

	var resp struct {
		Result string `json:"result"`
		Msg    string `json:"msg"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/messages", form, &resp); err != nil {
		return fmt.Errorf("send private message: %w", err)
	}
	if resp.Result != "success" {
		return fmt.Errorf("send private message: %s", resp.Msg)
	}
	return nil
}

// ResolveAttachment finds the first CSV attachment link in a message body and
// downloads it. Returns ErrNoAttachment when the body carries none.
func (c *Client) ResolveAttachment(ctx context.Context, content string) (string, []byte, error) {
	m := attachmentPattern.FindStringSubmatch(content)
	if m == nil {
		return "", nil, ErrNoAttachment
	}
	filename, href := m[1], m[2]

	if strings.HasPrefix(href, "/") {
		href = c.site + href
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build attachment request: %w", err)
	}
	req.SetBasicAuth(c.email, c.apiKey)

	res, err := c.httpc.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download attachment: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("download attachment: unexpected status %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxAttachmentBytes))
	if err != nil {
		return "", nil, fmt.Errorf("read attachment: %w", err)
	}
	return filename, body, nil
}

// do performs an authenticated API call and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.site+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.email, c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
