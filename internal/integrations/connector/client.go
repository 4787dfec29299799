package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"restaurant-agent/internal/domain"
)

// activity is the outbound message shape posted to the connector service.
type activity struct {
	ID               string       `json:"id"`
	Type             string       `json:"type"`
	Conversation     convRef      `json:"conversation"`
	Text             string       `json:"text,omitempty"`
	AttachmentLayout string       `json:"attachmentLayout,omitempty"`
	Attachments      []attachment `json:"attachments,omitempty"`
}

type convRef struct {
	ID string `json:"id"`
}

type attachment struct {
	ContentType string      `json:"contentType"`
	Content     heroContent `json:"content"`
}

type heroContent struct {
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle,omitempty"`
	Images   []cardImage `json:"images,omitempty"`
}

type cardImage struct {
	URL string `json:"url"`
}

const heroCardContentType = "application/vnd.microsoft.card.hero"

// tokenPayload is the expected JSON shape stored in SSM for the bearer token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("connector: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client delivers outbound activities to the connector service and tracks,
// per conversation, whether a reply has gone out during the current turn.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	token   string
	keyErr  error

	mu        sync.Mutex
	responded map[string]bool
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client backed by the given paramstore Getter for
// bearer-token retrieval.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("connector: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("connector: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://smba.trafficmanager.net/apis",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
		responded:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StartTurn resets the responded flag for a conversation at the beginning of
// an inbound turn.
func (c *Client) StartTurn(conversationID string) {
	c.mu.Lock()
	delete(c.responded, conversationID)
	c.mu.Unlock()
}

// HasResponded reports whether a reply was already sent to the conversation
// during the current turn.
func (c *Client) HasResponded(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded[conversationID]
}

// SendText posts a plain text message activity.
func (c *Client) SendText(ctx context.Context, conversationID, text string) error {
	return c.send(ctx, conversationID, activity{
		ID:           uuid.NewString(),
		Type:         "message",
		Conversation: convRef{ID: conversationID},
		Text:         text,
	})
}

// SendCarousel posts a single message activity carrying the cards as a
// carousel of hero-card attachments.
func (c *Client) SendCarousel(ctx context.Context, conversationID string, cards []domain.HeroCard) error {
	attachments := make([]attachment, 0, len(cards))
	for _, card := range cards {
		attachments = append(attachments, attachment{
			ContentType: heroCardContentType,
			Content: heroContent{
				Title:    card.Title,
				Subtitle: card.Subtitle,
				Images:   []cardImage{{URL: card.ImageURL}},
			},
		})
	}
	return c.send(ctx, conversationID, activity{
		ID:               uuid.NewString(),
		Type:             "message",
		Conversation:     convRef{ID: conversationID},
		AttachmentLayout: "carousel",
		Attachments:      attachments,
	})
}

func (c *Client) send(ctx context.Context, conversationID string, act activity) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("connector: marshal activity: %w", err)
	}

	reqURL := activitiesURL(c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connector: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	if err := c.doRequest(req, reqURL); err != nil {
		return fmt.Errorf("connector: send activity: %w", err)
	}

	c.mu.Lock()
	c.responded[conversationID] = true
	c.mu.Unlock()
	return nil
}

func activitiesURL(baseURL, conversationID string) string {
	base := strings.TrimRight(baseURL, "/")
	return fmt.Sprintf("%s/v3/conversations/%s/activities", base, conversationID)
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.token, c.keyErr = fetchTokenFromParamStore(ctx, c.getter, c.paramPrefix+"/connector-token")
	})
	return c.token, c.keyErr
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Client) doRequest(req *http.Request, url string) error {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func fetchTokenFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("connector: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("connector: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("connector: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("connector: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("connector: bearer token is empty")
	}
	return tp.Token, nil
}
