package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// stagingDir holds uncommitted blocks under each container.
const stagingDir = ".staging"

// FileStore is a filesystem-backed Store. Containers are directories under
// the root, objects are files named by their object key, and uncommitted
// blocks are staged as one file per block under the container's staging
// directory until commit concatenates them.
type FileStore struct {
	root    string
	baseURI string
	logger  *slog.Logger
}

// NewFileStore creates a filesystem store rooted at root. baseURI is the
// public base of object URLs; when empty, URLs are root-relative.
func NewFileStore(root, baseURI string, logger *slog.Logger) *FileStore {
	return &FileStore{root: root, baseURI: strings.TrimSuffix(baseURI, "/"), logger: logger}
}

func (s *FileStore) EnsureContainer(ctx context.Context, container string) error {
	path, err := s.containerPath(container)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0755)
}

func (s *FileStore) PutBlock(ctx context.Context, container, name, blockID string, r io.Reader) error {
	dir, err := s.blockDir(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create block directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, blockID))
	if err != nil {
		return fmt.Errorf("create block %s: %w", blockID, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write block %s: %w", blockID, err)
	}
	return f.Close()
}

func (s *FileStore) ListUncommittedBlocks(ctx context.Context, container, name string) ([]string, error) {
	dir, err := s.blockDir(container, name)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}

	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			blocks = append(blocks, e.Name())
		}
	}
	sort.Strings(blocks)
	return blocks, nil
}

func (s *FileStore) CommitBlocks(ctx context.Context, container, name string, blockIDs []string) error {
	if len(blockIDs) == 0 {
		return nil
	}

	dir, err := s.blockDir(container, name)
	if err != nil {
		return err
	}
	dst, err := s.blobPath(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}

	for _, blockID := range blockIDs {
		in, err := os.Open(filepath.Join(dir, blockID))
		if err != nil {
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("open block %s: %w", blockID, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("append block %s: %w", blockID, err)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize object: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil && s.logger != nil {
		s.logger.Warn("failed to clear staged blocks", "name", name, "error", err)
	}
	return nil
}

func (s *FileStore) PutBlob(ctx context.Context, container, name string, data []byte) error {
	path, err := s.blobPath(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (s *FileStore) GetBlob(ctx context.Context, container, name string) ([]byte, error) {
	path, err := s.blobPath(container, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Container: container, Name: name}
	}
	return data, err
}

func (s *FileStore) DeleteBlob(ctx context.Context, container, name string) error {
	path, err := s.blobPath(container, name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return &NotFoundError{Container: container, Name: name}
	}
	return err
}

func (s *FileStore) URL(container, name string) string {
	return s.baseURI + "/" + container + "/" + name
}

func (s *FileStore) containerPath(container string) (string, error) {
	if err := validateKey(container); err != nil {
		return "", err
	}
	return filepath.Join(s.root, container), nil
}

func (s *FileStore) blobPath(container, name string) (string, error) {
	if err := validateKey(container); err != nil {
		return "", err
	}
	if err := validateKey(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, container, filepath.FromSlash(name)), nil
}

func (s *FileStore) blockDir(container, name string) (string, error) {
	if err := validateKey(container); err != nil {
		return "", err
	}
	if err := validateKey(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, container, stagingDir, filepath.FromSlash(name)), nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}
