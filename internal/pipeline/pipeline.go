// Package pipeline orchestrates the video lifecycle: chunked upload into
// staged blocks, block commit, submission to the external indexing service,
// status polling, artifact materialization and search projection. The
// catalogue record is the shared state every stage reads and writes.
package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vidcat/vidcat-server/internal/blob"
	"github.com/vidcat/vidcat-server/internal/catalog"
	"github.com/vidcat/vidcat-server/internal/clock"
	"github.com/vidcat/vidcat-server/internal/indexer"
	"github.com/vidcat/vidcat-server/internal/search"
)

type Config struct {
	Records   catalog.Repository
	Blobs     blob.Store
	Indexer   indexer.Client
	Search    search.Client
	Scheduler clock.Scheduler
	Logger    *slog.Logger

	Container string
	Partition string

	// StorageBaseURI is the public base of blob URLs, recorded on every
	// catalogue record.
	StorageBaseURI string

	// PollInterval is the delay between indexing status checks.
	// PollMaxAttempts caps polls per job; zero means no ceiling.
	PollInterval    time.Duration
	PollMaxAttempts int
}

type Pipeline struct {
	records catalog.Repository
	blobs   blob.Store
	indexer indexer.Client
	search  search.Client
	sched   clock.Scheduler
	logger  *slog.Logger

	container      string
	partition      string
	storageBaseURI string

	pollInterval    time.Duration
	pollMaxAttempts int

	mu       sync.Mutex
	watchers map[string]*Watcher
}

func New(cfg Config) *Pipeline {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 6 * time.Second
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = clock.Real{}
	}
	return &Pipeline{
		records:         cfg.Records,
		blobs:           cfg.Blobs,
		indexer:         cfg.Indexer,
		search:          cfg.Search,
		sched:           sched,
		logger:          cfg.Logger,
		container:       cfg.Container,
		partition:       cfg.Partition,
		storageBaseURI:  cfg.StorageBaseURI,
		pollInterval:    interval,
		pollMaxAttempts: cfg.PollMaxAttempts,
		watchers:        make(map[string]*Watcher),
	}
}

// Partition returns the partition key shared by all catalogue records.
func (p *Pipeline) Partition() string {
	return p.partition
}

// Container returns the blob container all video objects live in.
func (p *Pipeline) Container() string {
	return p.container
}

// objectName is the blob key of the uploaded video itself. Every other
// artifact of the video shares the same content-identifier prefix.
func objectName(contentID, filename string) string {
	return contentID + "/" + filename
}

func (p *Pipeline) videoURL(contentID, filename string) string {
	return p.blobs.URL(p.container, objectName(contentID, filename))
}
