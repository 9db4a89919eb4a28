// Package blob stores binary objects such as avatars and resolves their public URLs.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"blogger/internal/middleware"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidPath = errors.New("invalid blob path")
)

// Store defines blob storage operations keyed by a slash-separated path.
type Store interface {
	// Upload writes data at p, replacing any existing object.
	Upload(ctx context.Context, p string, data []byte) error
	// ResolveURL returns the durable public URL of the object at p.
	ResolveURL(ctx context.Context, p string) (string, error)
	// Open returns a reader for the object at p. The caller closes it.
	Open(ctx context.Context, p string) (io.ReadSeekCloser, os.FileInfo, error)
}

// FilesystemStore implements Store on the local filesystem.
type FilesystemStore struct {
	root    string
	baseURL string
}

var _ Store = (*FilesystemStore)(nil)

// NewFilesystemStore creates the root directory if needed. baseURL prefixes resolved URLs.
func NewFilesystemStore(root, baseURL string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}
	return &FilesystemStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// CleanPath normalises p and rejects absolute or escaping paths.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

func (s *FilesystemStore) filename(p string) (string, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *FilesystemStore) Upload(ctx context.Context, p string, data []byte) (err error) {
	filename, err := s.filename(p)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			middleware.Logger.ErrorContext(ctx, "blob store failed",
				slog.String("path", p), slog.String("error", err.Error()))
		} else {
			middleware.Logger.DebugContext(ctx, "blob stored",
				slog.String("path", p), slog.Int("size", len(data)))
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("mkdir all: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ResolveURL appends a content hash so a replaced object gets a new URL.
func (s *FilesystemStore) ResolveURL(ctx context.Context, p string) (string, error) {
	filename, err := s.filename(p)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	file, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", fmt.Errorf("open: %w", err)
	}
	defer func() { _ = file.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	version := hex.EncodeToString(h.Sum(nil))[:12]

	cleaned, _ := CleanPath(p)
	return fmt.Sprintf("%s/%s?v=%s", s.baseURL, cleaned, version), nil
}

func (s *FilesystemStore) Open(ctx context.Context, p string) (io.ReadSeekCloser, os.FileInfo, error) {
	filename, err := s.filename(p)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	file, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return file, info, nil
}
