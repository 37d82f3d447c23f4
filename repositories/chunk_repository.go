package repositories

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DiskChunkRepository keeps each chunk in its own file under
// <root>/<uploadID>/chunk_<index>. The path is a pure function of the key, so
// concurrent writes for distinct indices never touch the same file and the
// stored index set can be rebuilt from a directory listing after a restart.
type DiskChunkRepository struct {
	root string
}

func NewDiskChunkRepository(root string) *DiskChunkRepository {
	return &DiskChunkRepository{root: root}
}

func (r *DiskChunkRepository) chunkPath(uploadID string, index int) string {
	return filepath.Join(r.root, uploadID, fmt.Sprintf("chunk_%d", index))
}

// Save writes the chunk through a temp file and renames it into place, so a
// retry after an ambiguous failure overwrites cleanly and a reader never sees
// a half-written chunk.
func (r *DiskChunkRepository) Save(_ context.Context, uploadID string, index int, src io.Reader) (int64, error) {
	dir := filepath.Join(r.root, uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".chunk_%d_*", index))
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), r.chunkPath(uploadID, index)); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return written, nil
}

func (r *DiskChunkRepository) Open(_ context.Context, uploadID string, index int) (io.ReadCloser, error) {
	return os.Open(r.chunkPath(uploadID, index))
}

func (r *DiskChunkRepository) ListIndices(_ context.Context, uploadID string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	indices := make([]int, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "chunk_") {
			continue
		}
		idx, convErr := strconv.Atoi(strings.TrimPrefix(name, "chunk_"))
		if convErr != nil || idx < 0 {
			continue
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

func (r *DiskChunkRepository) DeleteAll(_ context.Context, uploadID string) error {
	return os.RemoveAll(filepath.Join(r.root, uploadID))
}
