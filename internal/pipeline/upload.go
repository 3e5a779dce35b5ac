package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/vidcat/vidcat-server/internal/blob"
	"github.com/vidcat/vidcat-server/internal/catalog"
)

// ChunkReceipt acknowledges one stored chunk. The first chunk of an upload
// establishes the content identifier; the client must supply it on every
// subsequent chunk.
type ChunkReceipt struct {
	ContentID  string
	ChunkIndex int
}

// ReceiveChunk stores one sequential byte range of an upload as an
// uncommitted block of the video object. Chunk indices are encoded as
// fixed-width block identifiers so the store's lexicographic block order
// matches upload order. A failed block write fails the whole upload; there
// is no partial-resume protocol.
func (p *Pipeline) ReceiveChunk(ctx context.Context, filename, contentID string, chunkIndex int, r io.Reader) (ChunkReceipt, error) {
	if filename == "" {
		return ChunkReceipt{}, fmt.Errorf("filename is required")
	}
	if chunkIndex < 0 {
		return ChunkReceipt{}, fmt.Errorf("invalid chunk index %d", chunkIndex)
	}

	if contentID == "" {
		contentID = catalog.DeriveContentID(filename)
		p.logger.Info("assigned content id", "filename", filename, "content_id", contentID)
	}

	blockID := blob.BlockID(chunkIndex)
	name := objectName(contentID, filename)

	if err := p.blobs.EnsureContainer(ctx, p.container); err != nil {
		return ChunkReceipt{}, fmt.Errorf("ensure container: %w", err)
	}

	if err := p.blobs.PutBlock(ctx, p.container, name, blockID, r); err != nil {
		return ChunkReceipt{}, fmt.Errorf("store chunk %s of %s: %w", blockID, name, err)
	}

	p.logger.Debug("chunk stored", "name", name, "block_id", blockID)
	return ChunkReceipt{ContentID: contentID, ChunkIndex: chunkIndex}, nil
}

// Commit finalizes the uploaded video object from its staged blocks, in the
// lexicographic order the store lists them. An upload with no staged blocks
// commits trivially. Store errors surface to the caller verbatim.
func (p *Pipeline) Commit(ctx context.Context, contentID, filename string) error {
	name := objectName(contentID, filename)

	blocks, err := p.blobs.ListUncommittedBlocks(ctx, p.container, name)
	if err != nil {
		return err
	}

	if len(blocks) == 0 {
		p.logger.Info("no uncommitted blocks", "name", name)
		return nil
	}

	p.logger.Info("committing blocks", "name", name, "count", len(blocks))
	if err := p.blobs.CommitBlocks(ctx, p.container, name, blocks); err != nil {
		return err
	}

	p.logger.Info("committed blocks", "name", name, "count", len(blocks))
	return nil
}
