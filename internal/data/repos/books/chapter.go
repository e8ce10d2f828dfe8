package books

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/storybook-admin/internal/domain"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

type ChapterRepo interface {
	Create(dbc dbctx.Context, chapter *types.Chapter) (*types.Chapter, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error)
	GetByBookAndTitle(dbc dbctx.Context, bookID uuid.UUID, title string) (*types.Chapter, error)
	ListByBook(dbc dbctx.Context, bookID uuid.UUID) ([]*types.Chapter, error)
	CountByBook(dbc dbctx.Context, bookID uuid.UUID) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpsertByBookAndTitle(dbc dbctx.Context, chapter *types.Chapter) (*types.Chapter, error)
}

type chapterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return &chapterRepo{
		db:  db,
		log: baseLog.With("repo", "ChapterRepo"),
	}
}

func (r *chapterRepo) Create(dbc dbctx.Context, chapter *types.Chapter) (*types.Chapter, error) {
	if chapter == nil || chapter.BookID == uuid.Nil {
		return nil, fmt.Errorf("missing book_id")
	}
	if err := dbc.DB(r.db).Create(chapter).Error; err != nil {
		return nil, err
	}
	return chapter, nil
}

func (r *chapterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var ch types.Chapter
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&ch).Error; err != nil {
		return nil, err
	}
	if ch.ID == uuid.Nil {
		return nil, nil
	}
	return &ch, nil
}

func (r *chapterRepo) GetByBookAndTitle(dbc dbctx.Context, bookID uuid.UUID, title string) (*types.Chapter, error) {
	if bookID == uuid.Nil {
		return nil, nil
	}
	var ch types.Chapter
	if err := dbc.DB(r.db).
		Where("book_id = ? AND title = ?", bookID, title).
		Limit(1).
		Find(&ch).Error; err != nil {
		return nil, err
	}
	if ch.ID == uuid.Nil {
		return nil, nil
	}
	return &ch, nil
}

// ListByBook filters by book and orders by order_index in memory; a book has tens
// of chapters at most.
func (r *chapterRepo) ListByBook(dbc dbctx.Context, bookID uuid.UUID) ([]*types.Chapter, error) {
	var out []*types.Chapter
	if bookID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("book_id = ?", bookID).Find(&out).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *chapterRepo) CountByBook(dbc dbctx.Context, bookID uuid.UUID) (int64, error) {
	var count int64
	if bookID == uuid.Nil {
		return 0, nil
	}
	err := dbc.DB(r.db).Model(&types.Chapter{}).Where("book_id = ?", bookID).Count(&count).Error
	return count, err
}

func (r *chapterRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	delete(updates, "order_index")
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).Model(&types.Chapter{}).Where("id = ?", id).Updates(updates).Error
}

// UpsertByBookAndTitle keys on (book_id, title). A new chapter gets the book's current
// chapter count as order_index; an existing chapter keeps its order_index and only
// has narration_version refreshed.
func (r *chapterRepo) UpsertByBookAndTitle(dbc dbctx.Context, chapter *types.Chapter) (*types.Chapter, error) {
	if chapter == nil || chapter.BookID == uuid.Nil {
		return nil, fmt.Errorf("missing book_id")
	}
	count, err := r.CountByBook(dbc, chapter.BookID)
	if err != nil {
		return nil, fmt.Errorf("count chapters: %w", err)
	}
	row := &types.Chapter{
		BookID:           chapter.BookID,
		Title:            chapter.Title,
		OrderIndex:       int(count),
		NarrationVersion: chapter.NarrationVersion,
		ProcessingStatus: chapter.ProcessingStatus,
	}
	if err := upsertOnNaturalKey(dbc.DB(r.db), row,
		[]string{"book_id", "title"},
		[]string{"narration_version", "updated_at"},
	); err != nil {
		return nil, fmt.Errorf("upsert chapter %q: %w", chapter.Title, err)
	}
	stored, err := r.GetByBookAndTitle(dbc, chapter.BookID, chapter.Title)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("upsert chapter %q: row missing after write", chapter.Title)
	}
	return stored, nil
}
