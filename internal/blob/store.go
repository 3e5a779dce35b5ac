// Package blob defines the block-based object store the upload pipeline
// writes to. Uploads arrive as individually named blocks; committing the
// listed blocks in order finalizes the object. Block identifiers are
// fixed-width zero-padded chunk indices so the store's lexicographic
// ordering matches upload order without extra metadata.
package blob

import (
	"context"
	"fmt"
	"io"
)

// BlockIDWidth is the fixed width of a block identifier.
const BlockIDWidth = 32

// Store is the object-store contract used by the pipeline.
type Store interface {
	// EnsureContainer creates the container if it does not exist.
	// Containers are created with public-read-blob access.
	EnsureContainer(ctx context.Context, container string) error

	// PutBlock stages one uncommitted block of the named object.
	PutBlock(ctx context.Context, container, name, blockID string, r io.Reader) error

	// ListUncommittedBlocks returns the staged block IDs of the named
	// object in lexicographic order.
	ListUncommittedBlocks(ctx context.Context, container, name string) ([]string, error)

	// CommitBlocks finalizes the object from the given blocks, in order.
	CommitBlocks(ctx context.Context, container, name string, blockIDs []string) error

	// PutBlob writes a complete object, overwriting any existing one.
	PutBlob(ctx context.Context, container, name string, data []byte) error

	// GetBlob reads a complete object.
	GetBlob(ctx context.Context, container, name string) ([]byte, error)

	// DeleteBlob removes an object.
	DeleteBlob(ctx context.Context, container, name string) error

	// URL returns the public URL of an object.
	URL(container, name string) string
}

// BlockID encodes a chunk index as a fixed-width, lexicographically
// ordered block identifier.
func BlockID(chunkIndex int) string {
	return fmt.Sprintf("%0*d", BlockIDWidth, chunkIndex)
}

// NotFoundError reports a missing object.
type NotFoundError struct {
	Container string
	Name      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("blob %s/%s not found", e.Container, e.Name)
}
