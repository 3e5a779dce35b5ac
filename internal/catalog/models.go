package catalog

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Record is the catalogue row for one uploaded video. Records are keyed by
// a constant partition plus the filename; every object the pipeline writes
// for the video lives under the record's content identifier.
type Record struct {
	Partition          string    `json:"-"`
	Name               string    `json:"name"`
	ContentID          string    `json:"guid"`
	VideoID            string    `json:"videoId"`
	VideoURL           string    `json:"videoUrl"`
	ThumbnailURL       string    `json:"thumbnailUrl"`
	BreakdownURL       string    `json:"breakdownUrl,omitempty"`
	Container          string    `json:"container"`
	StorageBaseURI     string    `json:"blobUri"`
	Status             string    `json:"status,omitempty"`
	ProcessingProgress string    `json:"processingProgress,omitempty"`
	Size               string    `json:"size,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Record statuses. A record only ever advances along
// uploaded -> started -> uploaded-to-indexer -> processing -> processed,
// or diverts to failed. The indexer's states are mapped to these at the
// watcher boundary.
const (
	StatusUploaded          = "uploaded"
	StatusStarted           = "started"
	StatusUploadedToIndexer = "uploaded-to-indexer"
	StatusProcessing        = "processing"
	StatusProcessed         = "processed"
	StatusFailed            = "failed"
)

func statusRank(status string) int {
	switch status {
	case StatusUploaded:
		return 1
	case StatusStarted:
		return 2
	case StatusUploadedToIndexer:
		return 3
	case StatusProcessing:
		return 4
	case StatusProcessed, StatusFailed:
		return 5
	default:
		return 0
	}
}

// Advances reports whether a record may move from one status to another.
// Re-entering the same status is allowed (repeated processing updates);
// terminal statuses never change.
func Advances(from, to string) bool {
	if to == from {
		return true
	}
	return statusRank(to) > statusRank(from)
}

// DeriveContentID returns the deterministic content identifier for a
// filename: the hex MD5 digest, matching the identifier the upload client
// receives on its first chunk.
func DeriveContentID(filename string) string {
	sum := md5.Sum([]byte(filename))
	return hex.EncodeToString(sum[:])
}

// NewID returns a random identifier for request correlation.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
