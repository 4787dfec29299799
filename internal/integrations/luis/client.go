package luis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"restaurant-agent/internal/domain"
)

// predictionResponse is the minimal response shape of the prediction endpoint.
type predictionResponse struct {
	Prediction struct {
		TopIntent string `json:"topIntent"`
		Intents   map[string]struct {
			Score float64 `json:"score"`
		} `json:"intents"`
		Entities map[string][]json.RawMessage `json:"entities"`
	} `json:"prediction"`
}

// keyPayload is the expected JSON shape stored in SSM for the prediction key.
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
	return fmt.Sprintf("luis: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the intent prediction endpoint.
type Client struct {
	baseURL     string
	appID       string
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

// NewClient creates a Client backed by the given paramstore Getter for
// prediction-key retrieval. The key is fetched on the first Recognize call
// and reused for the lifetime of the process.
func NewClient(ps Getter, paramPrefix, appID string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("luis: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("luis: parameter prefix must not be empty")
	}
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, errors.New("luis: app id must not be empty")
	}
	c := &Client{
		baseURL:     "https://westus.api.cognitive.microsoft.com",
		appID:       appID,
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
	return c.paramPrefix + "/luis-prediction-key"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func predictURL(baseURL, appID, query string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://westus.api.cognitive.microsoft.com"
	}
	return fmt.Sprintf("%s/luis/prediction/v3.0/apps/%s/slots/production/predict?query=%s",
		base, appID, url.QueryEscape(query))
}

// Recognize classifies free text into the top intent, its score, and any
// extracted entities. Empty text returns an empty result with no network
// call; the router treats it the same as an unknown intent.
func (c *Client) Recognize(ctx context.Context, text string) (domain.IntentResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.IntentResult{}, nil
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return domain.IntentResult{}, err
	}

	reqURL := predictURL(c.baseURL, c.appID, text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("luis: create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("luis: request failed: %w", err)
	}

	var payload predictionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.IntentResult{}, fmt.Errorf("luis: decode response: %w", err)
	}
	return flattenPrediction(payload), nil
}

// flattenPrediction reduces the service's nested prediction document to the
// top intent, its score, and entity values as plain strings.
func flattenPrediction(payload predictionResponse) domain.IntentResult {
	res := domain.IntentResult{Intent: payload.Prediction.TopIntent}
	if top, ok := payload.Prediction.Intents[res.Intent]; ok {
		res.Score = top.Score
	}

	if len(payload.Prediction.Entities) > 0 {
		res.Entities = make(map[string][]string, len(payload.Prediction.Entities))
		for name, raws := range payload.Prediction.Entities {
			for _, r := range raws {
				res.Entities[name] = append(res.Entities[name], rawToString(r))
			}
		}
	}
	return res
}

// rawToString renders an entity value as text whether the service returned
// it as a JSON string, number, or anything more structured.
func rawToString(r json.RawMessage) string {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(r))
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
		return "", errors.New("luis: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("luis: key parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("luis: fetch key from paramstore: %w", err)
	}
	var kp keyPayload
	if err := json.Unmarshal([]byte(raw), &kp); err != nil {
		return "", fmt.Errorf("luis: unmarshal paramstore key value as JSON: %w", err)
	}
	if kp.Key == "" {
		return "", errors.New("luis: prediction key is empty")
	}
	return kp.Key, nil
}
