package books

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/storybook-admin/internal/domain"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

type BookRepo interface {
	Create(dbc dbctx.Context, book *types.Book) (*types.Book, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Book, error)
	GetBySafeTitle(dbc dbctx.Context, safeTitle string) (*types.Book, error)
	List(dbc dbctx.Context) ([]*types.Book, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpsertBySafeTitle(dbc dbctx.Context, book *types.Book) (*types.Book, error)
	DeleteCascade(dbc dbctx.Context, bookID uuid.UUID) (CascadeResult, error)
}

// CascadeResult counts the rows removed by DeleteCascade.
type CascadeResult struct {
	Steps      int64 `json:"steps"`
	Pages      int64 `json:"pages"`
	SubStories int64 `json:"subStories"`
	Chapters   int64 `json:"chapters"`
	Books      int64 `json:"books"`
}

type bookRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBookRepo(db *gorm.DB, baseLog *logger.Logger) BookRepo {
	return &bookRepo{
		db:  db,
		log: baseLog.With("repo", "BookRepo"),
	}
}

func (r *bookRepo) Create(dbc dbctx.Context, book *types.Book) (*types.Book, error) {
	if book == nil {
		return nil, fmt.Errorf("nil book")
	}
	if strings.TrimSpace(book.SafeTitle) == "" {
		return nil, fmt.Errorf("missing safe_title")
	}
	if err := dbc.DB(r.db).Create(book).Error; err != nil {
		return nil, err
	}
	return book, nil
}

func (r *bookRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Book, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var book types.Book
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&book).Error; err != nil {
		return nil, err
	}
	if book.ID == uuid.Nil {
		return nil, nil
	}
	return &book, nil
}

func (r *bookRepo) GetBySafeTitle(dbc dbctx.Context, safeTitle string) (*types.Book, error) {
	if safeTitle == "" {
		return nil, nil
	}
	var book types.Book
	if err := dbc.DB(r.db).Where("safe_title = ?", safeTitle).Limit(1).Find(&book).Error; err != nil {
		return nil, err
	}
	if book.ID == uuid.Nil {
		return nil, nil
	}
	return &book, nil
}

func (r *bookRepo) List(dbc dbctx.Context) ([]*types.Book, error) {
	var out []*types.Book
	if err := dbc.DB(r.db).Find(&out).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out, nil
}

func (r *bookRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).Model(&types.Book{}).Where("id = ?", id).Updates(updates).Error
}

// UpsertBySafeTitle creates the book or refreshes title and chapter_count on the
// existing row. safe_title itself is never rewritten.
func (r *bookRepo) UpsertBySafeTitle(dbc dbctx.Context, book *types.Book) (*types.Book, error) {
	if book == nil || strings.TrimSpace(book.SafeTitle) == "" {
		return nil, fmt.Errorf("missing safe_title")
	}
	row := &types.Book{
		Title:        book.Title,
		SafeTitle:    book.SafeTitle,
		ChapterCount: book.ChapterCount,
		Status:       book.Status,
		GCSBaseURL:   book.GCSBaseURL,
	}
	if err := upsertOnNaturalKey(dbc.DB(r.db), row,
		[]string{"safe_title"},
		[]string{"title", "chapter_count", "updated_at"},
	); err != nil {
		return nil, fmt.Errorf("upsert book %q: %w", book.SafeTitle, err)
	}
	stored, err := r.GetBySafeTitle(dbc, book.SafeTitle)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("upsert book %q: row missing after write", book.SafeTitle)
	}
	return stored, nil
}

// DeleteCascade removes the book's steps, then each chapter's pages and sub-stories,
// then the chapters and finally the book, inside one transaction.
func (r *bookRepo) DeleteCascade(dbc dbctx.Context, bookID uuid.UUID) (CascadeResult, error) {
	var res CascadeResult
	if bookID == uuid.Nil {
		return res, nil
	}
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("book_id = ?", bookID).Delete(&types.ProcessingStep{})
		if del.Error != nil {
			return fmt.Errorf("delete steps: %w", del.Error)
		}
		res.Steps = del.RowsAffected

		var chapterIDs []uuid.UUID
		if err := tx.Model(&types.Chapter{}).Where("book_id = ?", bookID).Pluck("id", &chapterIDs).Error; err != nil {
			return fmt.Errorf("list chapters: %w", err)
		}
		for _, chapterID := range chapterIDs {
			var subStoryIDs []uuid.UUID
			if err := tx.Model(&types.SubStory{}).Where("chapter_id = ?", chapterID).Pluck("id", &subStoryIDs).Error; err != nil {
				return fmt.Errorf("list sub-stories of chapter %s: %w", chapterID, err)
			}
			owners := append([]uuid.UUID{chapterID}, subStoryIDs...)
			del = tx.Where("owner_id IN ?", owners).Delete(&types.Page{})
			if del.Error != nil {
				return fmt.Errorf("delete pages of chapter %s: %w", chapterID, del.Error)
			}
			res.Pages += del.RowsAffected

			del = tx.Where("chapter_id = ?", chapterID).Delete(&types.SubStory{})
			if del.Error != nil {
				return fmt.Errorf("delete sub-stories of chapter %s: %w", chapterID, del.Error)
			}
			res.SubStories += del.RowsAffected

			del = tx.Where("id = ?", chapterID).Delete(&types.Chapter{})
			if del.Error != nil {
				return fmt.Errorf("delete chapter %s: %w", chapterID, del.Error)
			}
			res.Chapters += del.RowsAffected
		}

		del = tx.Where("id = ?", bookID).Delete(&types.Book{})
		if del.Error != nil {
			return fmt.Errorf("delete book: %w", del.Error)
		}
		res.Books = del.RowsAffected
		return nil
	})
	if err != nil {
		r.log.Error("Cascade delete failed", "book_id", bookID, "error", err)
		return CascadeResult{}, err
	}
	return res, nil
}
