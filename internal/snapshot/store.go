package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yungbote/storybook-admin/internal/domain/books"
	"github.com/yungbote/storybook-admin/internal/platform/gcp"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

// ErrNotFound means neither the blob store nor the local directory holds a snapshot.
var ErrNotFound = errors.New("snapshot not found")

const localFileName = "chapters_final.json"

// Blobs is the part of the bucket the snapshot store needs.
type Blobs interface {
	UploadFile(ctx context.Context, key string, file io.Reader) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, key string) error
}

type Source string

const (
	SourceBlob  Source = "blob"
	SourceLocal Source = "local"
)

type Store interface {
	Load(ctx context.Context, safeTitle string) (*books.BookView, Source, error)
	Write(ctx context.Context, safeTitle string, view *books.BookView) error
	Delete(ctx context.Context, safeTitle string) error
}

type store struct {
	log      *logger.Logger
	blobs    Blobs
	localDir string
}

// NewStore reads snapshots from blobs first and localDir second. Either may be
// unset: a nil blobs skips the bucket, an empty localDir skips the filesystem.
func NewStore(log *logger.Logger, blobs Blobs, localDir string) Store {
	return &store{
		log:      log.With("service", "SnapshotStore"),
		blobs:    blobs,
		localDir: localDir,
	}
}

func (s *store) localPath(safeTitle string) string {
	return filepath.Join(s.localDir, safeTitle, localFileName)
}

func (s *store) Load(ctx context.Context, safeTitle string) (*books.BookView, Source, error) {
	if safeTitle == "" {
		return nil, "", ErrNotFound
	}

	if s.blobs != nil {
		data, err := s.readBlob(ctx, books.SnapshotKey(safeTitle))
		switch {
		case err == nil:
			view, err := Decode(data, safeTitle)
			if err != nil {
				return nil, SourceBlob, fmt.Errorf("snapshot %s: %w", books.SnapshotKey(safeTitle), err)
			}
			return view, SourceBlob, nil
		case errors.Is(err, gcp.ErrObjectNotFound):
		default:
			return nil, SourceBlob, err
		}
	}

	if s.localDir != "" {
		path := s.localPath(safeTitle)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			view, err := Decode(data, safeTitle)
			if err != nil {
				return nil, SourceLocal, fmt.Errorf("snapshot %s: %w", path, err)
			}
			return view, SourceLocal, nil
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, SourceLocal, fmt.Errorf("read snapshot %s: %w", path, err)
		}
	}

	return nil, "", ErrNotFound
}

func (s *store) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.blobs.DownloadFile(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return data, nil
}

// Write stores view to the bucket when one is configured, otherwise to the local
// directory.
func (s *store) Write(ctx context.Context, safeTitle string, view *books.BookView) error {
	if view == nil {
		return fmt.Errorf("nil book view")
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if s.blobs != nil {
		key := books.SnapshotKey(safeTitle)
		if err := s.blobs.UploadFile(ctx, key, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("upload snapshot %s: %w", key, err)
		}
		s.log.Debug("Snapshot written", "key", key, "bytes", len(data))
		return nil
	}
	if s.localDir == "" {
		return nil
	}
	path := s.localPath(safeTitle)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	s.log.Debug("Snapshot written", "path", path, "bytes", len(data))
	return nil
}

// Delete removes the snapshot from every location; a missing snapshot is not an error.
func (s *store) Delete(ctx context.Context, safeTitle string) error {
	var errs []error
	if s.blobs != nil {
		if err := s.blobs.DeleteFile(ctx, books.SnapshotKey(safeTitle)); err != nil && !errors.Is(err, gcp.ErrObjectNotFound) {
			errs = append(errs, fmt.Errorf("delete snapshot blob: %w", err))
		}
	}
	if s.localDir != "" {
		if err := os.Remove(s.localPath(safeTitle)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("delete local snapshot: %w", err))
		}
	}
	return errors.Join(errs...)
}
