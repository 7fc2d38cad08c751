package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"vectormap/internal/tile"
)

// FileCache stores one file per tile.
// Structure: {cacheDir}/{kind}/{z}/{x}/{y}.{ext}
type FileCache struct {
	cacheDir string
}

func NewFileCache(cacheDir string) (*FileCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{
		cacheDir: cacheDir,
	}, nil
}

// DefaultDir is the per-user cache location used when no directory is
// configured.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(base, "vectormap", "tiles"), nil
}

// Path returns where the payload for key lives on disk.
func (c *FileCache) Path(key Key) string {
	return filepath.Join(c.cacheDir, tile.DiskSubPath(key.Coord, key.Kind))
}

func (c *FileCache) Get(key Key) ([]byte, bool) {
	data, err := os.ReadFile(c.Path(key))
	if err != nil {
		return nil, false
	}

	return data, true
}

func (c *FileCache) Has(key Key) bool {
	info, err := os.Stat(c.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// Set writes through a uniquely named temporary file and renames it into
// place, so concurrent writers of the same tile never expose a partial file.
func (c *FileCache) Set(key Key, value []byte) error {
	filePath := c.Path(key)
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create tile directory: %w", err)
	}

	tmpPath := filePath + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmpPath, value, 0644); err != nil {
		return fmt.Errorf("failed to write tile %s: %w", key, err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move tile %s into place: %w", key, err)
	}
	return nil
}

func (c *FileCache) Clear() error {
	if err := os.RemoveAll(c.cacheDir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	return os.MkdirAll(c.cacheDir, 0755)
}

func (c *FileCache) Close() error {
	return nil
}
