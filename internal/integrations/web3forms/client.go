package web3forms

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

	"kennel-assistant/internal/domain"
	"kennel-assistant/internal/integrations/paramstore"
)

const DefaultEndpoint = "https://api.web3forms.com/submit"

// submitResponse is the JSON body the relay returns for every submission.
type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// keyPayload is the JSON shape stored in SSM for the access key.
type keyPayload struct {
	AccessKey string `json:"accessKey"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError is a non-2xx reply that carries no usable verdict. Message
// holds the relay's own text when the body was JSON.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("web3forms: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ServiceError means the relay answered and refused the submission.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("web3forms: submission rejected (status %d): %s", e.StatusCode, e.Message)
}

func (e *ServiceError) HTTPStatusCode() int {
	return e.StatusCode
}

// NetworkError wraps transport failures: DNS, refused connections, timeouts.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("web3forms: request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client posts lead forms to the Web3Forms relay.
type Client struct {
	endpoint   string
	httpClient *http.Client
	getter     Getter
	keyParam   string

	keyMu     sync.Mutex
	accessKey string
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimSpace(endpoint)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a relay client. The access key is read from the
// parameter named keyParam on the first submission and cached for the
// lifetime of the process once a fetch succeeds.
func NewClient(g Getter, keyParam string, opts ...Option) (*Client, error) {
	if g == nil {
		return nil, errors.New("web3forms: paramstore getter must not be nil")
	}
	keyParam = strings.TrimSpace(keyParam)
	if keyParam == "" {
		return nil, errors.New("web3forms: access key parameter must not be empty")
	}
	c := &Client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		getter:     g,
		keyParam:   keyParam,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	return c, nil
}

// resolveAccessKey returns the cached key. Failed fetches are not cached, so
// the next submission retries.
func (c *Client) resolveAccessKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.accessKey != "" {
		return c.accessKey, nil
	}
	key, err := fetchAccessKey(ctx, c.getter, c.keyParam)
	if err != nil {
		return "", err
	}
	c.accessKey = key
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// encodeLead builds the form body the relay expects.
func encodeLead(accessKey string, lead domain.Lead) url.Values {
	form := url.Values{}
	form.Set("access_key", accessKey)
	form.Set("name", lead.Name)
	form.Set("phone", lead.Phone)
	form.Set("puppy", lead.Puppy)
	form.Set("message", lead.Message)
	return form
}

// Submit forwards a lead. A nil error means the relay reported success.
func (c *Client) Submit(ctx context.Context, lead domain.Lead) error {
	accessKey, err := c.resolveAccessKey(ctx)
	if err != nil {
		return err
	}

	body := encodeLead(accessKey, lead).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("web3forms: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return &NetworkError{Err: fmt.Errorf("read response body: %w", err)}
	}

	var verdict submitResponse
	decErr := json.Unmarshal(raw, &verdict)
	if res.StatusCode == http.StatusTooManyRequests {
		statusErr := &HTTPStatusError{StatusCode: res.StatusCode, URL: c.endpoint, Body: truncate(string(raw), 4096)}
		if decErr == nil {
			statusErr.Message = verdict.Message
		}
		return statusErr
	}
	// A body that is not a verdict is reported like a failed request: the
	// visitor can only retry.
	if decErr != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return &NetworkError{Err: &HTTPStatusError{StatusCode: res.StatusCode, URL: c.endpoint, Body: truncate(string(raw), 4096)}}
		}
		return &NetworkError{Err: fmt.Errorf("decode response: %w", decErr)}
	}
	if !verdict.Success {
		return &ServiceError{StatusCode: res.StatusCode, Message: verdict.Message}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func fetchAccessKey(ctx context.Context, g Getter, name string) (string, error) {
	if g == nil {
		return "", errors.New("web3forms: paramstore getter is nil")
	}
	var kp keyPayload
	if err := paramstore.GetJSON(ctx, g, name, &kp); err != nil {
		return "", fmt.Errorf("web3forms: fetch access key: %w", err)
	}
	if strings.TrimSpace(kp.AccessKey) == "" {
		return "", errors.New("web3forms: access key is empty")
	}
	return strings.TrimSpace(kp.AccessKey), nil
}
