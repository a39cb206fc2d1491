// Package storage persists uploads and derived assets on the local
// filesystem. It is the blob store behind the processing pipeline; an object
// storage backend can replace it by implementing domain.BlobStore.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"parallax/internal/domain"
)

// FileStore keeps uploads under <base>/uploads/<job>/ and processed assets
// under <base>/assets/<job>/<type>.png.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// PutUpload stores the original uploaded bytes for a job.
func (s *FileStore) PutUpload(ctx context.Context, jobID, filename string, data []byte) error {
	path, err := s.uploadPath(jobID, filename)
	if err != nil {
		return err
	}
	return s.write(ctx, path, data)
}

// GetUpload reads back the original upload. Returns domain.ErrNotFound when
// the file is absent.
func (s *FileStore) GetUpload(ctx context.Context, jobID, filename string) ([]byte, error) {
	path, err := s.uploadPath(jobID, filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("storage: read upload: %w", err)
	}
	return data, nil
}

// PutProcessed stores a derived asset and returns its storage key relative to
// the base path.
func (s *FileStore) PutProcessed(ctx context.Context, jobID string, assetType domain.AssetType, data []byte) (string, error) {
	key, err := s.processedKey(jobID, assetType)
	if err != nil {
		return "", err
	}
	if err := s.write(ctx, filepath.Join(s.basePath, filepath.FromSlash(key)), data); err != nil {
		return "", err
	}
	return key, nil
}

// GetProcessed opens a derived asset for streaming. Returns domain.ErrNotFound
// when the file is absent.
func (s *FileStore) GetProcessed(ctx context.Context, jobID string, assetType domain.AssetType) (io.ReadCloser, error) {
	key, err := s.processedKey(jobID, assetType)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("storage: open asset: %w", err)
	}
	return f, nil
}

// DeleteAllForJob removes every stored file belonging to the job.
func (s *FileStore) DeleteAllForJob(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := sanitizeKey(jobID); err != nil {
		return err
	}
	for _, dir := range []string{"uploads", "assets"} {
		path := filepath.Join(s.basePath, dir, jobID)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("storage: delete job files: %w", err)
		}
	}
	return nil
}

func (s *FileStore) write(ctx context.Context, fullPath string, data []byte) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("storage: write file: %w", err)
	}
	return nil
}

func (s *FileStore) uploadPath(jobID, filename string) (string, error) {
	key, err := sanitizeKey(jobID + "/" + filename)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, "uploads", filepath.FromSlash(key)), nil
}

func (s *FileStore) processedKey(jobID string, assetType domain.AssetType) (string, error) {
	key, err := sanitizeKey(fmt.Sprintf("%s/%s.png", jobID, assetType))
	if err != nil {
		return "", err
	}
	return "assets/" + key, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ domain.BlobStore = (*FileStore)(nil)
