package qna

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"restaurant-agent/internal/domain"
)

// The service reports "no match" as a ranked answer rather than an empty
// list; it is filtered out so callers only ever see usable candidates.
const noMatchSentinel = "No good match found in KB."

type answerRequest struct {
	Question string `json:"question"`
	Top      int    `json:"top"`
}

// answerResponse is the minimal response shape of the generateAnswer endpoint.
type answerResponse struct {
	Answers []struct {
		Answer string  `json:"answer"`
		Score  float64 `json:"score"`
	} `json:"answers"`
}

// keyPayload is the expected JSON shape stored in SSM for the endpoint key.
type keyPayload struct {
	Key string `json:"key"`
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
	return fmt.Sprintf("qna: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the knowledge-base answer endpoint.
type Client struct {
	baseURL     string
	kbID        string
	top         int
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
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

// WithTop overrides how many candidates are requested per question.
func WithTop(top int) Option {
	return func(c *Client) {
		if top > 0 {
			c.top = top
		}
	}
}

// NewClient creates a Client backed by the given paramstore Getter for
// endpoint-key retrieval.
func NewClient(ps Getter, paramPrefix, kbID string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("qna: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("qna: parameter prefix must not be empty")
	}
	kbID = strings.TrimSpace(kbID)
	if kbID == "" {
		return nil, errors.New("qna: knowledge base id must not be empty")
	}
	c := &Client{
		baseURL:     "https://cafe-kb.azurewebsites.net/qnamaker",
		kbID:        kbID,
		top:         3,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = fetchKeyFromParamStore(ctx, c.getter, c.keyParameterName())
	})
	return c.apiKey, c.keyErr
}

func (c *Client) keyParameterName() string {
	return c.paramPrefix + "/qna-endpoint-key"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func answerURL(baseURL, kbID string) string {
	base := strings.TrimRight(baseURL, "/")
	return fmt.Sprintf("%s/knowledgebases/%s/generateAnswer", base, kbID)
}

// GetAnswers fetches ranked candidate answers for free text. The returned
// slice is ordered by descending score and may be empty.
func (c *Client) GetAnswers(ctx context.Context, text string) ([]domain.AnswerCandidate, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(answerRequest{Question: text, Top: c.top})
	if err != nil {
		return nil, fmt.Errorf("qna: marshal request: %w", err)
	}

	reqURL := answerURL(c.baseURL, c.kbID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qna: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "EndpointKey "+apiKey)

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return nil, fmt.Errorf("qna: request failed: %w", err)
	}

	var payload answerResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("qna: decode response: %w", err)
	}

	candidates := make([]domain.AnswerCandidate, 0, len(payload.Answers))
	for _, a := range payload.Answers {
		if a.Answer == noMatchSentinel || strings.TrimSpace(a.Answer) == "" {
			continue
		}
		candidates = append(candidates, domain.AnswerCandidate{Text: a.Answer, Score: a.Score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("qna: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("qna: key parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("qna: fetch key from paramstore: %w", err)
	}
	var kp keyPayload
	if err := json.Unmarshal([]byte(raw), &kp); err != nil {
		return "", fmt.Errorf("qna: unmarshal paramstore key value as JSON: %w", err)
	}
	if kp.Key == "" {
		return "", errors.New("qna: endpoint key is empty")
	}
	return kp.Key, nil
}
