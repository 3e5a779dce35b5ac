package api

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

// UploadResponse acknowledges one stored upload chunk. The first chunk of a
// new upload carries the content identifier assigned to the file; the
// client echoes it on every later chunk.
type UploadResponse struct {
	StatusCode int    `json:"statusCode"`
	Filename   string `json:"filename"`
	GUID       string `json:"guid"`
}
