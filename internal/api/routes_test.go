package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/vidcat/vidcat-server/internal/blob"
	"github.com/vidcat/vidcat-server/internal/catalog"
	"github.com/vidcat/vidcat-server/internal/clock"
	"github.com/vidcat/vidcat-server/internal/db"
	"github.com/vidcat/vidcat-server/internal/indexer"
	"github.com/vidcat/vidcat-server/internal/pipeline"
)

// stubIndexer answers every poll with the same scripted result.
type stubIndexer struct {
	jobID  string
	result *indexer.VideoIndex
}

func (s *stubIndexer) GetToken(ctx context.Context) (string, error) {
	return "tok-abc", nil
}

func (s *stubIndexer) Upload(ctx context.Context, token, name, videoURL string) (string, error) {
	return s.jobID, nil
}

func (s *stubIndexer) GetVideoIndex(ctx context.Context, token, videoID string) (*indexer.VideoIndex, error) {
	if s.result == nil {
		return nil, fmt.Errorf("no result")
	}
	return s.result, nil
}

func (s *stubIndexer) GetThumbnail(ctx context.Context, token, videoID, thumbnailID string) ([]byte, error) {
	return []byte("jpeg"), nil
}

// stubSearch resolves every query to the given keys.
type stubSearch struct {
	keys []string
}

func (s *stubSearch) CreateIndex(ctx context.Context, schema json.RawMessage) error { return nil }
func (s *stubSearch) Upload(ctx context.Context, key string, terms []string) error  { return nil }
func (s *stubSearch) Query(ctx context.Context, text string) ([]string, error) {
	return s.keys, nil
}

type routesEnv struct {
	cfg     ServerConfig
	router  http.Handler
	repo    catalog.Repository
	blobs   blob.Store
	search  *stubSearch
	indexer *stubIndexer
	sched   *clock.Fake
}

func newRoutesEnv(t *testing.T) *routesEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	env := &routesEnv{
		repo:    catalog.NewRepository(database.Conn()),
		blobs:   blob.NewFileStore(t.TempDir(), "http://blobs.local", nil),
		search:  &stubSearch{},
		indexer: &stubIndexer{jobID: "job-42"},
		sched:   clock.NewFake(time.Unix(0, 0)),
	}

	pipe := pipeline.New(pipeline.Config{
		Records:        env.repo,
		Blobs:          env.blobs,
		Indexer:        env.indexer,
		Search:         env.search,
		Scheduler:      env.sched,
		Logger:         logger,
		Container:      "videos",
		Partition:      "video",
		StorageBaseURI: "http://blobs.local",
		PollInterval:   6 * time.Second,
	})

	env.cfg = ServerConfig{
		Port:       0,
		Pipeline:   pipe,
		Repository: env.repo,
		Blobs:      env.blobs,
		Indexer:    env.indexer,
		Logger:     logger,
		StartTime:  time.Now(),
		Version:    "test",
	}
	env.router = NewRouter(env.cfg)
	return env
}

func (e *routesEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *routesEnv) uploadChunk(t *testing.T, filename, guid string, chunk int, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("filename", filename)
	if guid != "" {
		mw.WriteField("guid", guid)
	}
	mw.WriteField("chunk", strconv.Itoa(chunk))
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	mw.Close()

	return e.do(t, http.MethodPost, "/upload", &buf, mw.FormDataContentType())
}

func (e *routesEnv) insertRecord(t *testing.T, name string) *catalog.Record {
	t.Helper()
	rec := &catalog.Record{
		Partition:      "video",
		Name:           name,
		ContentID:      catalog.DeriveContentID(name),
		Container:      "videos",
		StorageBaseURI: "http://blobs.local",
		Status:         catalog.StatusUploaded,
	}
	if err := e.repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthHandler(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodGet, "/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}

	var health HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("version = %q, want test", health.Version)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestUploadHandler_ChunksAndCommit(t *testing.T) {
	env := newRoutesEnv(t)

	// First chunk without a guid: the server assigns one.
	rr := env.uploadChunk(t, "clip.mp4", "", 0, []byte("first-"))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	guid := catalog.DeriveContentID("clip.mp4")
	if resp.GUID != guid {
		t.Fatalf("guid = %q, want %q", resp.GUID, guid)
	}
	if resp.Filename != "clip.mp4" {
		t.Errorf("filename = %q", resp.Filename)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", resp.StatusCode)
	}

	rr = env.uploadChunk(t, "clip.mp4", guid, 1, []byte("second"))
	if rr.Code != http.StatusOK {
		t.Fatalf("second chunk status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/commit?filename=clip.mp4&guid="+guid, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("commit status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "OK" {
		t.Errorf("commit body = %q, want OK", rr.Body.String())
	}

	data, err := env.blobs.GetBlob(context.Background(), "videos", guid+"/clip.mp4")
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if string(data) != "first-second" {
		t.Errorf("object = %q, want first-second", data)
	}
}

func TestUploadHandler_MissingFilePart(t *testing.T) {
	env := newRoutesEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("filename", "clip.mp4")
	mw.Close()

	rr := env.do(t, http.MethodPost, "/upload", &buf, mw.FormDataContentType())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestUploadHandler_NotMultipart(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodPost, "/upload", bytes.NewReader([]byte("raw")), "application/octet-stream")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCommitHandler_MissingParams(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodGet, "/commit?filename=clip.mp4", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestProcessHandler_RegistersAndSubmits(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodGet, "/process?filename=clip.mp4", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rr.Body.String())
	}

	// The record exists before the handler returns.
	rec, err := env.repo.Get(context.Background(), "video", "clip.mp4")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec == nil {
		t.Fatal("record not registered")
	}
	if rec.ContentID != catalog.DeriveContentID("clip.mp4") {
		t.Errorf("content id = %q", rec.ContentID)
	}

	// Submission runs in the background.
	waitFor(t, "job submission", func() bool {
		rec, err := env.repo.Get(context.Background(), "video", "clip.mp4")
		return err == nil && rec != nil && rec.VideoID == "job-42"
	})
}

func TestProcessHandler_MissingFilename(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodGet, "/process", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRetrieveHandler(t *testing.T) {
	env := newRoutesEnv(t)
	env.insertRecord(t, "a.mp4")
	env.insertRecord(t, "b.mp4")

	rr := env.do(t, http.MethodGet, "/retrieve", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var records []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0]["name"] != "a.mp4" {
		t.Errorf("first record name = %v", records[0]["name"])
	}
	if records[0]["guid"] != catalog.DeriveContentID("a.mp4") {
		t.Errorf("first record guid = %v", records[0]["guid"])
	}
}

func TestRetrieveHandler_Empty(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodGet, "/retrieve", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty array", body)
	}
}

func TestQueryHandler(t *testing.T) {
	env := newRoutesEnv(t)
	env.insertRecord(t, "clip.mp4")

	rr := env.do(t, http.MethodGet, "/query?filename=clip.mp4", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var records []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "clip.mp4" {
		t.Fatalf("records = %v", records)
	}

	rr = env.do(t, http.MethodGet, "/query?filename=nope.mp4", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	records = nil
	json.Unmarshal(rr.Body.Bytes(), &records)
	if len(records) != 0 {
		t.Errorf("records for missing file = %v", records)
	}
}

func TestSearchHandler(t *testing.T) {
	env := newRoutesEnv(t)
	rec := env.insertRecord(t, "clip.mp4")
	env.search.keys = []string{rec.ContentID}

	rr := env.do(t, http.MethodGet, "/search?filter=welcome", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var records []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "clip.mp4" {
		t.Fatalf("records = %v", records)
	}
}

func TestSearchHandler_MissingFilter(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodGet, "/search", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestBreakdownHandler(t *testing.T) {
	env := newRoutesEnv(t)
	guid := catalog.DeriveContentID("clip.mp4")

	err := env.blobs.PutBlob(context.Background(), "videos", guid+"/breakdown.json", []byte(`{"state":"Processed"}`))
	if err != nil {
		t.Fatalf("PutBlob() error = %v", err)
	}

	rr := env.do(t, http.MethodGet, "/breakdown?guid="+guid+"&breakdownUrl=breakdown.json", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.String() != `{"state":"Processed"}` {
		t.Errorf("body = %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/breakdown?guid=missing&breakdownUrl=breakdown.json", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status for missing breakdown = %d, want 404", rr.Code)
	}
}

func TestDeleteHandler(t *testing.T) {
	env := newRoutesEnv(t)
	rec := env.insertRecord(t, "clip.mp4")

	err := env.blobs.PutBlob(context.Background(), "videos", rec.ContentID+"/clip.mp4", []byte("video-bytes"))
	if err != nil {
		t.Fatalf("PutBlob() error = %v", err)
	}

	rr := env.do(t, http.MethodGet, "/delete?videoId=clip.mp4", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Blob gone, record kept.
	if _, err := env.blobs.GetBlob(context.Background(), "videos", rec.ContentID+"/clip.mp4"); err == nil {
		t.Error("video blob still exists after delete")
	}
	kept, err := env.repo.Get(context.Background(), "video", "clip.mp4")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if kept == nil {
		t.Error("catalogue record removed by delete")
	}
}

func TestDeleteHandler_UnknownVideo(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodGet, "/delete?videoId=nope.mp4", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGetTokenHandler(t *testing.T) {
	env := newRoutesEnv(t)

	rr := env.do(t, http.MethodGet, "/getToken", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var token string
	if err := json.Unmarshal(rr.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if token != "tok-abc" {
		t.Errorf("token = %q, want tok-abc", token)
	}
}
