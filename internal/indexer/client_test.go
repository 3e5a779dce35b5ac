package indexer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPClient_GetToken(t *testing.T) {
	var receivedKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/westus2/Accounts/acct-1/AccessToken" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("allowEdit") != "true" {
			t.Errorf("allowEdit = %q, want true", r.URL.Query().Get("allowEdit"))
		}
		receivedKey = r.Header.Get("Ocp-Apim-Subscription-Key")

		w.Write([]byte(`"tok-abc"`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "westus2", "sub-key", "acct-1", testLogger())

	token, err := client.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if token != "tok-abc" {
		t.Errorf("token = %q, want tok-abc", token)
	}
	if receivedKey != "sub-key" {
		t.Errorf("subscription key = %q, want sub-key", receivedKey)
	}
}

func TestHTTPClient_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/westus2/Accounts/acct-1/Videos" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		q := r.URL.Query()
		if q.Get("name") != "clip.mp4" {
			t.Errorf("name = %q", q.Get("name"))
		}
		if q.Get("videoUrl") != "http://blobs.local/videos/abc/clip.mp4" {
			t.Errorf("videoUrl = %q", q.Get("videoUrl"))
		}
		if q.Get("accessToken") != "tok-abc" {
			t.Errorf("accessToken = %q", q.Get("accessToken"))
		}
		if q.Get("externalId") == "" {
			t.Error("externalId missing")
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("content type = %q, want multipart", r.Header.Get("Content-Type"))
		}

		w.Write([]byte(`{"id": "job-42"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "westus2", "sub-key", "acct-1", testLogger())

	jobID, err := client.Upload(context.Background(), "tok-abc", "clip.mp4", "http://blobs.local/videos/abc/clip.mp4")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if jobID != "job-42" {
		t.Errorf("job id = %q, want job-42", jobID)
	}
}

func TestHTTPClient_Upload_MissingJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "westus2", "sub-key", "acct-1", testLogger())

	_, err := client.Upload(context.Background(), "tok", "clip.mp4", "http://x/v")
	if err == nil {
		t.Fatal("expected error for response without job id")
	}
}

func TestHTTPClient_GetVideoIndex(t *testing.T) {
	raw := `{
		"state": "Processing",
		"videos": [{"processingProgress": "40%"}],
		"summarizedInsights": {"thumbnailId": "thumb-0"}
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/westus2/Accounts/acct-1/Videos/job-42/Index" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("accessToken") != "tok-abc" {
			t.Errorf("accessToken = %q", r.URL.Query().Get("accessToken"))
		}
		w.Write([]byte(raw))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "westus2", "sub-key", "acct-1", testLogger())

	index, err := client.GetVideoIndex(context.Background(), "tok-abc", "job-42")
	if err != nil {
		t.Fatalf("GetVideoIndex() error = %v", err)
	}
	if index.State != StateProcessing {
		t.Errorf("state = %q, want %q", index.State, StateProcessing)
	}
	if index.Progress != "40%" {
		t.Errorf("progress = %q, want 40%%", index.Progress)
	}
	if index.ThumbnailID != "thumb-0" {
		t.Errorf("thumbnail id = %q, want thumb-0", index.ThumbnailID)
	}
	if string(index.Raw) != raw {
		t.Error("raw response not preserved verbatim")
	}
}

func TestHTTPClient_GetThumbnail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/westus2/Accounts/acct-1/Videos/job-42/Thumbnails/thumb-0" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "westus2", "sub-key", "acct-1", testLogger())

	data, err := client.GetThumbnail(context.Background(), "tok-abc", "job-42", "thumb-0")
	if err != nil {
		t.Fatalf("GetThumbnail() error = %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("thumbnail = %q", data)
	}
}

func TestHTTPClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("throttled"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "westus2", "sub-key", "acct-1", testLogger())

	_, err := client.GetToken(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", statusErr.StatusCode)
	}
	if statusErr.IsRetryable() {
		t.Error("429 reported as retryable")
	}
	if !(&StatusError{StatusCode: 503}).IsRetryable() {
		t.Error("503 not reported as retryable")
	}
}
