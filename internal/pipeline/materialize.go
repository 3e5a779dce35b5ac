package pipeline

import (
	"context"
	"fmt"

	"github.com/vidcat/vidcat-server/internal/catalog"
	"github.com/vidcat/vidcat-server/internal/doctree"
	"github.com/vidcat/vidcat-server/internal/indexer"
)

// BreakdownName is the object name of the persisted result document,
// relative to the video's content-identifier prefix.
const BreakdownName = "breakdown.json"

// Materialize persists the artifacts of a completed indexing job: the full
// result document as {contentID}/breakdown.json, the derived search terms,
// and every referenced thumbnail as {contentID}/{thumbnailID}.jpg.
// Thumbnails are fetched sequentially as a deliberate throttle on the
// external API, and a single thumbnail failure never aborts the batch.
func (p *Pipeline) Materialize(ctx context.Context, token, filename, contentID, jobID string, index *indexer.VideoIndex) error {
	if err := p.blobs.EnsureContainer(ctx, p.container); err != nil {
		return fmt.Errorf("ensure container: %w", err)
	}

	breakdownKey := contentID + "/" + BreakdownName
	if err := p.blobs.PutBlob(ctx, p.container, breakdownKey, index.Raw); err != nil {
		return fmt.Errorf("store breakdown: %w", err)
	}
	p.logger.Info("breakdown stored", "filename", filename, "name", breakdownKey)

	err := p.records.Merge(ctx, &catalog.Record{
		Partition:    p.partition,
		Name:         filename,
		BreakdownURL: BreakdownName,
	})
	if err != nil {
		p.logger.Error("record breakdown reference update failed", "filename", filename, "error", err)
	}

	doc, err := doctree.Parse(index.Raw)
	if err != nil {
		return fmt.Errorf("parse breakdown: %w", err)
	}

	if err := p.IndexTerms(ctx, contentID, doc); err != nil {
		p.logger.Error("search projection failed", "content_id", contentID, "error", err)
	}

	p.fetchThumbnails(ctx, token, contentID, jobID, doc)

	if index.ThumbnailID != "" {
		thumbnailURL := p.blobs.URL(p.container, thumbnailKey(contentID, index.ThumbnailID))
		err := p.records.Merge(ctx, &catalog.Record{
			Partition:    p.partition,
			Name:         filename,
			ThumbnailURL: thumbnailURL,
		})
		if err != nil {
			p.logger.Error("record thumbnail update failed", "filename", filename, "error", err)
		} else {
			p.logger.Info("thumbnail reference set", "filename", filename, "thumbnail_url", thumbnailURL)
		}
	}

	return nil
}

// fetchThumbnails downloads and stores every thumbnail the result document
// references. Failures are isolated per thumbnail.
func (p *Pipeline) fetchThumbnails(ctx context.Context, token, contentID, jobID string, doc doctree.Value) {
	ids := doctree.CollectValues(doc, "thumbnailId")
	p.logger.Info("thumbnails available", "content_id", contentID, "count", len(ids))

	stored := 0
	for _, id := range ids {
		if id.Kind() != doctree.KindString || id.Str() == "" {
			continue
		}
		thumbnailID := id.Str()

		data, err := p.indexer.GetThumbnail(ctx, token, jobID, thumbnailID)
		if err != nil {
			p.logger.Warn("thumbnail fetch failed", "thumbnail_id", thumbnailID, "error", err)
			continue
		}

		key := thumbnailKey(contentID, thumbnailID)
		if err := p.blobs.PutBlob(ctx, p.container, key, data); err != nil {
			p.logger.Warn("thumbnail store failed", "thumbnail_id", thumbnailID, "error", err)
			continue
		}
		stored++
	}

	p.logger.Info("thumbnails stored", "content_id", contentID, "stored", stored, "total", len(ids))
}

func thumbnailKey(contentID, thumbnailID string) string {
	return contentID + "/" + thumbnailID + ".jpg"
}
