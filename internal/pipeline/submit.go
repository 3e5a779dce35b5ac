package pipeline

import (
	"context"
	"fmt"

	"github.com/vidcat/vidcat-server/internal/catalog"
)

// Register creates the catalogue record for a committed upload with status
// "uploaded". Registration must happen before submission so a client always
// has a record to poll even if submission is slow or fails. A duplicate key
// falls back to a full replace: the last submitter for a filename wins.
func (p *Pipeline) Register(ctx context.Context, filename, contentID string) error {
	rec := &catalog.Record{
		Partition:          p.partition,
		Name:               filename,
		ContentID:          contentID,
		Container:          p.container,
		StorageBaseURI:     p.storageBaseURI,
		VideoURL:           p.videoURL(contentID, filename),
		Status:             catalog.StatusUploaded,
		ProcessingProgress: "0%",
	}

	if err := p.records.Insert(ctx, rec); err != nil {
		p.logger.Warn("record insert failed, replacing", "filename", filename, "error", err)
		if err := p.records.Replace(ctx, rec); err != nil {
			return fmt.Errorf("register %s: %w", filename, err)
		}
	}

	p.logger.Info("record registered", "filename", filename, "content_id", contentID)
	return nil
}

// Submit obtains an indexer access token, submits the committed video URL
// for analysis, records the returned job identifier and schedules the first
// status poll. On a failed submission the error is logged and the record
// stays in "uploaded"; no retry is attempted.
func (p *Pipeline) Submit(ctx context.Context, filename, contentID string) error {
	token, err := p.indexer.GetToken(ctx)
	if err != nil {
		p.logger.Error("indexer token request failed", "filename", filename, "error", err)
		return err
	}

	videoURL := p.videoURL(contentID, filename)
	p.logger.Info("submitting for indexing", "filename", filename, "video_url", videoURL)

	jobID, err := p.indexer.Upload(ctx, token, filename, videoURL)
	if err != nil {
		p.logger.Error("index submission failed", "filename", filename, "error", err)
		return err
	}

	err = p.records.Merge(ctx, &catalog.Record{
		Partition:          p.partition,
		Name:               filename,
		ContentID:          contentID,
		VideoID:            jobID,
		Status:             catalog.StatusStarted,
		ProcessingProgress: "0%",
	})
	if err != nil {
		p.logger.Error("record update failed after submission", "filename", filename, "job_id", jobID, "error", err)
		return err
	}

	p.StartWatch(token, filename, contentID, jobID)
	return nil
}
