// Package search is the HTTP client for the external search-index service:
// schema creation, document upsert and free-text query, versioned by a
// fixed API version string.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIVersion pins the service API contract.
const DefaultAPIVersion = "2017-11-11"

// Document is one search-index entry: the terms derived from a video's
// result document, keyed by the video's content identifier.
type Document struct {
	Action string   `json:"@search.action"`
	Key    string   `json:"key"`
	Terms  []string `json:"terms"`
}

// StatusError represents a non-2xx response from the search service.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search %s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client is the search-service contract the pipeline depends on.
type Client interface {
	CreateIndex(ctx context.Context, schema json.RawMessage) error
	Upload(ctx context.Context, key string, terms []string) error
	Query(ctx context.Context, text string) ([]string, error)
}

type HTTPClient struct {
	endpoint   string
	apiKey     string
	index      string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(endpoint, apiKey, index string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     apiKey,
		index:      index,
		apiVersion: DefaultAPIVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// CreateIndex creates the index schema. An already-existing index is
// treated as success so startup stays idempotent.
func (c *HTTPClient) CreateIndex(ctx context.Context, schema json.RawMessage) error {
	u := fmt.Sprintf("%s/indexes?api-version=%s", c.endpoint, c.apiVersion)

	err := c.post(ctx, "createIndex", u, schema, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		c.logger.Info("search index already exists", "index", c.index)
		return nil
	}
	return err
}

// Upload upserts one document keyed by the content identifier
// (action "upload" = insert-or-replace).
func (c *HTTPClient) Upload(ctx context.Context, key string, terms []string) error {
	u := fmt.Sprintf("%s/indexes/%s/docs/index?api-version=%s", c.endpoint, c.index, c.apiVersion)

	batch := struct {
		Value []Document `json:"value"`
	}{
		Value: []Document{{Action: "upload", Key: key, Terms: terms}},
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal document batch: %w", err)
	}
	return c.post(ctx, "upload", u, body, nil)
}

// Query runs a free-text search and returns the matching document keys.
func (c *HTTPClient) Query(ctx context.Context, text string) ([]string, error) {
	params := url.Values{}
	params.Set("api-version", c.apiVersion)
	params.Set("search", text)

	u := fmt.Sprintf("%s/indexes/%s/docs?%s", c.endpoint, c.index, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var hits struct {
		Value []struct {
			Key string `json:"key"`
		} `json:"value"`
	}
	if err := c.send(req, "query", &hits); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(hits.Value))
	for _, hit := range hits.Value {
		keys = append(keys, hit.Key)
	}
	return keys, nil
}

func (c *HTTPClient) post(ctx context.Context, op, u string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.send(req, op, out)
}

func (c *HTTPClient) send(req *http.Request, op string, out any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("search %s: read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("search %s: decode response: %w", op, err)
		}
	}
	return nil
}
