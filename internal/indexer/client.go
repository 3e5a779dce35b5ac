// Package indexer is the HTTP client for the external video-indexing
// service: token issuance, video submission, status polling and thumbnail
// retrieval.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Indexer job states reported by the service.
const (
	StateUploaded   = "Uploaded"
	StateProcessing = "Processing"
	StateProcessed  = "Processed"
	StateFailed     = "Failed"
)

// StatusError represents a non-2xx response from the indexing service.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer %s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are considered permanent.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// VideoIndex is the polled state of one indexing job. Raw carries the full
// response document so a completed job's breakdown can be persisted
// verbatim.
type VideoIndex struct {
	State       string
	Progress    string
	ThumbnailID string
	Raw         []byte
}

// Client is the indexing-service contract the pipeline depends on.
type Client interface {
	GetToken(ctx context.Context) (string, error)
	Upload(ctx context.Context, token, name, videoURL string) (string, error)
	GetVideoIndex(ctx context.Context, token, videoID string) (*VideoIndex, error)
	GetThumbnail(ctx context.Context, token, videoID, thumbnailID string) ([]byte, error)
}

// HTTPClient talks to a video-indexer deployment identified by a location,
// a subscription key and an account id.
type HTTPClient struct {
	baseURL         string
	location        string
	subscriptionKey string
	accountID       string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewHTTPClient(baseURL, location, subscriptionKey, accountID string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		location:        location,
		subscriptionKey: subscriptionKey,
		accountID:       accountID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// GetToken obtains an edit-capable access token for the account.
func (c *HTTPClient) GetToken(ctx context.Context) (string, error) {
	u := fmt.Sprintf("%s/auth/%s/Accounts/%s/AccessToken?allowEdit=true",
		c.baseURL, c.location, c.accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	body, err := c.do(req, "getToken")
	if err != nil {
		return "", err
	}

	// The token arrives as a JSON-encoded string.
	var token string
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	return token, nil
}

// Upload submits a video by URL and returns the job identifier assigned by
// the service.
func (c *HTTPClient) Upload(ctx context.Context, token, name, videoURL string) (string, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("videoUrl", videoURL)
	params.Set("externalId", uuid.NewString())
	params.Set("accessToken", token)

	u := fmt.Sprintf("%s/%s/Accounts/%s/Videos?%s",
		c.baseURL, c.location, c.accountID, params.Encode())

	// The service expects a multipart request even for URL submissions.
	var form strings.Builder
	mw := multipart.NewWriter(&form)
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.String()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req, "upload")
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("upload response missing job id")
	}

	c.logger.Info("video submitted for indexing", "name", name, "job_id", result.ID)
	return result.ID, nil
}

// GetVideoIndex polls the state of one indexing job.
func (c *HTTPClient) GetVideoIndex(ctx context.Context, token, videoID string) (*VideoIndex, error) {
	params := url.Values{}
	params.Set("accessToken", token)
	params.Set("language", "English")

	u := fmt.Sprintf("%s/%s/Accounts/%s/Videos/%s/Index?%s",
		c.baseURL, c.location, c.accountID, videoID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	body, err := c.do(req, "getVideoIndex")
	if err != nil {
		return nil, err
	}

	var payload struct {
		State  string `json:"state"`
		Videos []struct {
			ProcessingProgress string `json:"processingProgress"`
		} `json:"videos"`
		SummarizedInsights struct {
			ThumbnailID string `json:"thumbnailId"`
		} `json:"summarizedInsights"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode index response: %w", err)
	}

	index := &VideoIndex{
		State:       payload.State,
		ThumbnailID: payload.SummarizedInsights.ThumbnailID,
		Raw:         body,
	}
	if len(payload.Videos) > 0 {
		index.Progress = payload.Videos[0].ProcessingProgress
	}
	return index, nil
}

// GetThumbnail fetches thumbnail bytes for a completed job.
func (c *HTTPClient) GetThumbnail(ctx context.Context, token, videoID, thumbnailID string) ([]byte, error) {
	params := url.Values{}
	params.Set("accessToken", token)

	u := fmt.Sprintf("%s/%s/Accounts/%s/Videos/%s/Thumbnails/%s?%s",
		c.baseURL, c.location, c.accountID, videoID, thumbnailID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.do(req, "getThumbnail")
}

func (c *HTTPClient) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("indexer %s: read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 4096)}
	}
	return body, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
