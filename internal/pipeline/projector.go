package pipeline

import (
	"context"
	"fmt"

	"github.com/vidcat/vidcat-server/internal/catalog"
	"github.com/vidcat/vidcat-server/internal/doctree"
)

// IndexTerms extracts the search terms from a result document — every
// string value stored under "text", lower-cased, punctuation-stripped and
// tokenized — and upserts them into the search index keyed by the content
// identifier.
func (p *Pipeline) IndexTerms(ctx context.Context, contentID string, doc doctree.Value) error {
	var terms []string
	for _, s := range doctree.CollectStrings(doc, "text") {
		terms = append(terms, doctree.Tokenize(s)...)
	}

	if err := p.search.Upload(ctx, contentID, terms); err != nil {
		return fmt.Errorf("index terms for %s: %w", contentID, err)
	}

	p.logger.Info("breakdown indexed", "content_id", contentID, "terms", len(terms))
	return nil
}

// SearchVideos runs a free-text query against the search index and resolves
// the hit keys back to catalogue records with a filtered record-store read
// (a post-filter, not a store-side join).
func (p *Pipeline) SearchVideos(ctx context.Context, text string) ([]*catalog.Record, error) {
	keys, err := p.search.Query(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	return p.records.ListByContentIDs(ctx, p.partition, keys)
}
