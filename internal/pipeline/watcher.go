package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vidcat/vidcat-server/internal/catalog"
	"github.com/vidcat/vidcat-server/internal/clock"
	"github.com/vidcat/vidcat-server/internal/indexer"
)

// WatchState is the lifecycle of one poll chain.
type WatchState int

const (
	// StatePolling: the job is still being indexed; another poll is scheduled.
	StatePolling WatchState = iota
	// StateCompleted: the job finished and its artifacts were materialized.
	StateCompleted
	// StateFailed: the indexer reported a terminal failure state.
	StateFailed
	// StateAbandoned: a poll request itself failed, or the poll ceiling was
	// reached; no further polls are scheduled and the record is left as-is.
	StateAbandoned
)

func (s WatchState) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Watcher is a self-rescheduling status check for one indexing job. Each
// poll is a discrete scheduled callback; nothing blocks between polls.
type Watcher struct {
	p         *Pipeline
	token     string
	filename  string
	contentID string
	jobID     string
	logger    *slog.Logger

	mu       sync.Mutex
	state    WatchState
	attempts int
	timer    clock.Timer

	done chan struct{}
}

// StartWatch begins polling a submitted job. At most one watcher exists per
// job identifier; starting a second one for the same job is a no-op and
// returns the watcher already in flight.
func (p *Pipeline) StartWatch(token, filename, contentID, jobID string) *Watcher {
	p.mu.Lock()
	if w, ok := p.watchers[jobID]; ok {
		p.mu.Unlock()
		return w
	}

	w := &Watcher{
		p:         p,
		token:     token,
		filename:  filename,
		contentID: contentID,
		jobID:     jobID,
		logger:    p.logger.With("job_id", jobID, "filename", filename),
		state:     StatePolling,
		done:      make(chan struct{}),
	}
	p.watchers[jobID] = w
	p.mu.Unlock()

	w.logger.Info("watching indexing job", "interval", p.pollInterval)
	w.mu.Lock()
	w.timer = p.sched.AfterFunc(p.pollInterval, w.poll)
	w.mu.Unlock()
	return w
}

// State returns the watcher's current lifecycle state.
func (w *Watcher) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Done is closed when the watcher reaches a terminal state.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) poll() {
	ctx := context.Background()

	w.mu.Lock()
	w.attempts++
	attempts := w.attempts
	w.mu.Unlock()

	index, err := w.p.indexer.GetVideoIndex(ctx, w.token, w.jobID)
	if err != nil {
		w.logger.Error("status poll failed, abandoning job", "error", err)
		w.finish(StateAbandoned)
		return
	}

	progress := index.Progress
	if progress == "" {
		progress = "0%"
	}

	w.logger.Info("indexing status", "state", index.State, "progress", progress, "attempt", attempts)

	switch index.State {
	case indexer.StateUploaded, indexer.StateProcessing:
		w.updateRecord(ctx, mapIndexerState(index.State), progress)

		if w.p.pollMaxAttempts > 0 && attempts >= w.p.pollMaxAttempts {
			w.logger.Warn("poll ceiling reached, abandoning job", "attempts", attempts)
			w.finish(StateAbandoned)
			return
		}

		w.mu.Lock()
		if w.state == StatePolling {
			w.timer = w.p.sched.AfterFunc(w.p.pollInterval, w.poll)
		}
		w.mu.Unlock()

	case indexer.StateProcessed:
		w.updateRecord(ctx, catalog.StatusProcessed, progress)

		if err := w.p.Materialize(ctx, w.token, w.filename, w.contentID, w.jobID, index); err != nil {
			w.logger.Error("artifact materialization failed", "error", err)
		}
		w.finish(StateCompleted)

	default:
		w.logger.Warn("indexing job ended in terminal state", "state", index.State)
		w.updateRecord(ctx, catalog.StatusFailed, progress)
		w.finish(StateFailed)
	}
}

func (w *Watcher) updateRecord(ctx context.Context, status, progress string) {
	err := w.p.records.Merge(ctx, &catalog.Record{
		Partition:          w.p.partition,
		Name:               w.filename,
		ContentID:          w.contentID,
		VideoID:            w.jobID,
		Status:             status,
		ProcessingProgress: progress,
	})
	if err != nil {
		w.logger.Error("record update failed", "status", status, "error", err)
	}
}

func (w *Watcher) finish(state WatchState) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()

	w.p.mu.Lock()
	delete(w.p.watchers, w.jobID)
	w.p.mu.Unlock()

	close(w.done)
}

// mapIndexerState normalizes the indexer's job states to record statuses.
func mapIndexerState(state string) string {
	switch state {
	case indexer.StateUploaded:
		return catalog.StatusUploadedToIndexer
	case indexer.StateProcessing:
		return catalog.StatusProcessing
	case indexer.StateProcessed:
		return catalog.StatusProcessed
	default:
		return catalog.StatusFailed
	}
}
