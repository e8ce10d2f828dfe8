package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/yungbote/storybook-admin/internal/data/repos"
	types "github.com/yungbote/storybook-admin/internal/domain"
	"github.com/yungbote/storybook-admin/internal/domain/books"
	"github.com/yungbote/storybook-admin/internal/platform/apierr"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
	"github.com/yungbote/storybook-admin/internal/platform/gcp"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/snapshot"
)

// MaxImageBytes caps a single illustration upload.
const MaxImageBytes = 20 << 20

type BookSummary struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	SafeTitle     string    `json:"safe_title"`
	ChapterCount  int       `json:"chapter_count"`
	Status        string    `json:"status"`
	OverallStatus string    `json:"overallStatus"`
	IsProcessing  bool      `json:"isProcessing"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type DeleteBookResult struct {
	Success          bool                `json:"success"`
	Message          string              `json:"message"`
	Deleted          repos.CascadeResult `json:"deleted"`
	BlobCleanupError string              `json:"blobCleanupError,omitempty"`
}

type UploadedImage struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type BookAdminService interface {
	List(dbc dbctx.Context) ([]BookSummary, error)
	Create(dbc dbctx.Context, title string) (*types.Book, error)
	Delete(dbc dbctx.Context, safeTitle string) (*DeleteBookResult, error)
	UploadImage(ctx context.Context, safeTitle, filename string, file io.Reader) (*UploadedImage, error)
}

type bookAdminService struct {
	log       *logger.Logger
	books     repos.BookRepo
	steps     repos.ProcessingStepRepo
	bucket    gcp.BucketService
	snapshots snapshot.Store
	now       func() time.Time
}

// NewBookAdminService accepts a nil bucket; uploads then fail with ErrStorageDisabled
// and deletes skip blob cleanup.
func NewBookAdminService(
	baseLog *logger.Logger,
	bookRepo repos.BookRepo,
	stepRepo repos.ProcessingStepRepo,
	bucket gcp.BucketService,
	snapshots snapshot.Store,
) BookAdminService {
	return &bookAdminService{
		log:       baseLog.With("service", "BookAdminService"),
		books:     bookRepo,
		steps:     stepRepo,
		bucket:    bucket,
		snapshots: snapshots,
		now:       time.Now,
	}
}

func (s *bookAdminService) List(dbc dbctx.Context) ([]BookSummary, error) {
	rows, err := s.books.List(dbc)
	if err != nil {
		s.log.Error("List books failed", "error", err)
		return nil, apierr.Upstream("books_list_failed", err)
	}
	out := make([]BookSummary, 0, len(rows))
	for _, b := range rows {
		steps, err := s.steps.ListByBook(dbc, b.ID)
		if err != nil {
			s.log.Error("List steps failed", "book_id", b.ID, "op", "list_books", "error", err)
			return nil, apierr.Upstream("steps_lookup_failed", err)
		}
		summary := DeriveStatus(b.Status, stepStatuses(steps))
		out = append(out, BookSummary{
			ID:            b.ID,
			Title:         b.Title,
			SafeTitle:     b.SafeTitle,
			ChapterCount:  b.ChapterCount,
			Status:        b.Status,
			OverallStatus: summary.OverallStatus,
			IsProcessing:  summary.IsProcessing,
			UpdatedAt:     b.UpdatedAt,
		})
	}
	return out, nil
}

// Create derives the slug from title once; the slug is never recomputed afterward.
func (s *bookAdminService) Create(dbc dbctx.Context, title string) (*types.Book, error) {
	title = strings.TrimSpace(title)
	safeTitle := books.SafeTitle(title)
	if safeTitle == "" {
		return nil, apierr.BadRequest("invalid_title", fmt.Errorf("title must contain letters or digits"))
	}
	existing, err := s.books.GetBySafeTitle(dbc, safeTitle)
	if err != nil {
		s.log.Error("Load book failed", "book_safe_title", safeTitle, "op", "create", "error", err)
		return nil, apierr.Upstream("book_lookup_failed", err)
	}
	if existing != nil {
		return nil, apierr.New(http.StatusConflict, "book_exists", fmt.Errorf("%s: %w", safeTitle, ErrBookExists))
	}
	book, err := s.books.Create(dbc, &types.Book{Title: title, SafeTitle: safeTitle})
	if err != nil {
		s.log.Error("Create book failed", "book_safe_title", safeTitle, "error", err)
		return nil, apierr.Upstream("book_create_failed", err)
	}
	s.log.Info("Book created", "book_id", book.ID, "book_safe_title", safeTitle)
	return book, nil
}

// Delete cascades through the entity graph, then removes every blob under the book's
// prefix. Blob cleanup failures are logged and reported but do not fail the delete.
func (s *bookAdminService) Delete(dbc dbctx.Context, safeTitle string) (*DeleteBookResult, error) {
	safeTitle = strings.TrimSpace(safeTitle)
	if safeTitle == "" {
		return nil, apierr.BadRequest("missing_book_safe_title", ErrMissingSafeTitle)
	}
	book, err := s.books.GetBySafeTitle(dbc, safeTitle)
	if err != nil {
		s.log.Error("Load book failed", "book_safe_title", safeTitle, "op", "delete", "error", err)
		return nil, apierr.Upstream("book_lookup_failed", err)
	}
	if book == nil {
		return nil, apierr.NotFound("book_not_found", ErrBookNotFound)
	}

	deleted, err := s.books.DeleteCascade(dbc, book.ID)
	if err != nil {
		return nil, apierr.Upstream("book_delete_failed", err)
	}

	out := &DeleteBookResult{
		Success: true,
		Message: fmt.Sprintf("Deleted %s", safeTitle),
		Deleted: deleted,
	}
	var cleanupErrs []string
	if s.bucket != nil {
		if err := s.bucket.DeletePrefix(dbc.Ctx, books.BookPrefix(safeTitle)); err != nil {
			s.log.Warn("Blob cleanup failed", "book_safe_title", safeTitle, "prefix", books.BookPrefix(safeTitle), "error", err)
			cleanupErrs = append(cleanupErrs, err.Error())
		}
	}
	if s.snapshots != nil {
		if err := s.snapshots.Delete(dbc.Ctx, safeTitle); err != nil {
			s.log.Warn("Snapshot cleanup failed", "book_safe_title", safeTitle, "error", err)
			cleanupErrs = append(cleanupErrs, err.Error())
		}
	}
	out.BlobCleanupError = strings.Join(cleanupErrs, "; ")

	s.log.Info("Book deleted",
		"book_id", book.ID,
		"book_safe_title", safeTitle,
		"steps", deleted.Steps,
		"chapters", deleted.Chapters,
		"sub_stories", deleted.SubStories,
		"pages", deleted.Pages,
	)
	return out, nil
}

func (s *bookAdminService) UploadImage(ctx context.Context, safeTitle, filename string, file io.Reader) (*UploadedImage, error) {
	safeTitle = strings.TrimSpace(safeTitle)
	if safeTitle == "" {
		return nil, apierr.BadRequest("missing_book_safe_title", ErrMissingSafeTitle)
	}
	if s.bucket == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "storage_disabled", ErrStorageDisabled)
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		return nil, apierr.BadRequest("upload_read_failed", err)
	}
	if len(data) > MaxImageBytes {
		return nil, apierr.New(http.StatusRequestEntityTooLarge, "image_too_large", fmt.Errorf("image exceeds %d bytes", MaxImageBytes))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apierr.BadRequest("invalid_image", fmt.Errorf("%w: %v", ErrInvalidImage, err))
	}

	key := ImageKey(safeTitle, filename, s.now())
	if err := s.bucket.UploadFile(ctx, key, bytes.NewReader(data)); err != nil {
		s.log.Error("Image upload failed", "book_safe_title", safeTitle, "key", key, "error", err)
		return nil, apierr.Upstream("image_upload_failed", err)
	}
	s.log.Info("Image uploaded", "book_safe_title", safeTitle, "key", key, "format", format, "bytes", len(data))
	return &UploadedImage{
		Key:    key,
		URL:    s.bucket.GetPublicURL(key),
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// ImageKey is books/<safe_title>/images/<unix_millis>_<sanitized name>.
func ImageKey(safeTitle, filename string, at time.Time) string {
	return fmt.Sprintf("%simages/%d_%s", books.BookPrefix(safeTitle), at.UnixMilli(), SanitizeFilename(filename))
}

// SanitizeFilename keeps ASCII letters, digits, dot, dash and underscore of the base
// name and replaces everything else with an underscore.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
