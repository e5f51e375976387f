// Package backend queries the conversation status API and polls it until a
// submitted request reaches a terminal state.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chatrelay/chatrelay/internal/domain"
)

// ErrNotReady means the backend answered but the conversation body is not
// usable yet (empty or not valid JSON). The poller keeps waiting without
// consuming its transient budget, bounded only by the ceiling.
var ErrNotReady = errors.New("conversation not ready")

const (
	fetchTimeout    = 15 * time.Second
	maxBodySnippet  = 300
	wantedRole      = "assistant"
	statusFinished  = "finished_successfully"
	statusInFlight  = "in_progress"
	defaultBaseURL  = "https://chatgpt.com"
	conversationAPI = "/backend-api/conversation/"
)

// StatusError is a non-2xx answer from the backend. Whether it is retryable
// is the classifier's call, not ours.
type StatusError struct {
	Status  int
	Snippet string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Snippet)
}

// HTTPStatus implements the interface the classifier probes for.
func (e *StatusError) HTTPStatus() int { return e.Status }

// Snapshot is the view of the newest conversation node that the poller
// decides on: who wrote it, whether it is finished, and its assembled text.
type Snapshot struct {
	Role   string
	Status string
	Text   string
	Empty  bool // mapping had no usable node yet
}

// Client fetches conversation state over the backend JSON API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	logger     *slog.Logger
}

func NewClient(baseURL, authToken string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: fetchTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		logger:     logger,
	}
}

// FetchSnapshot retrieves the conversation and extracts its latest node.
func (c *Client) FetchSnapshot(ctx context.Context, id domain.ConversationID) (Snapshot, error) {
	doc, err := c.fetch(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return latestNode(doc), nil
}

func (c *Client) fetch(ctx context.Context, id domain.ConversationID) (gjson.Result, error) {
	url := c.baseURL + conversationAPI + string(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, err
	}

	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.6")
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("OAI-Language", "en-US")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36")
	// Some edge checks require a referer that matches the conversation page.
	req.Header.Set("Referer", c.baseURL+"/c/"+string(id))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}

	c.logger.Debug("backend fetch",
		"conversation_id", string(id),
		"status", resp.StatusCode,
		"bytes", len(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, &StatusError{Status: resp.StatusCode, Snippet: snippet(body)}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return gjson.Result{}, fmt.Errorf("%w: empty body", ErrNotReady)
	}
	if !gjson.ValidBytes(body) {
		c.logger.Debug("backend body not valid JSON", "conversation_id", string(id), "body", snippet(body))
		return gjson.Result{}, fmt.Errorf("%w: body not valid JSON", ErrNotReady)
	}

	return gjson.ParseBytes(body), nil
}

// latestNode walks the order-significant mapping object and returns the view
// of its final entry. gjson iterates object members in document order, which
// is what makes "the newest node is the last one" hold; a decoded Go map
// would lose that ordering.
func latestNode(doc gjson.Result) Snapshot {
	var last gjson.Result
	found := false
	doc.Get("mapping").ForEach(func(_, node gjson.Result) bool {
		last = node
		found = true
		return true
	})
	if !found {
		return Snapshot{Empty: true}
	}

	msg := last.Get("message")
	if !msg.Exists() {
		return Snapshot{Empty: true}
	}

	return Snapshot{
		Role:   msg.Get("author.role").String(),
		Status: msg.Get("status").String(),
		Text:   contentText(msg),
	}
}

// contentText assembles the displayable text of a message node. Interim
// chain-of-thought nodes carry no user-visible content.
func contentText(msg gjson.Result) string {
	content := msg.Get("content")
	switch content.Get("content_type").String() {
	case "text":
		var parts []string
		content.Get("parts").ForEach(func(_, p gjson.Result) bool {
			parts = append(parts, p.String())
			return true
		})
		return strings.TrimSpace(strings.Join(parts, "\n"))
	case "execution_output":
		return strings.TrimSpace(content.Get("text").String())
	case "thoughts":
		return ""
	default:
		return strings.TrimSpace(content.Raw)
	}
}

func snippet(body []byte) string {
	s := strings.ReplaceAll(string(body), "\n", " ")
	if len(s) > maxBodySnippet {
		s = s[:maxBodySnippet]
	}
	return s
}
