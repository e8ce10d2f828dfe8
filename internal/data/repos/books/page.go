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

type PageRepo interface {
	Create(dbc dbctx.Context, page *types.Page) (*types.Page, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Page, error)
	GetByOwnerAndNumber(dbc dbctx.Context, ownerID uuid.UUID, pageNumber int) (*types.Page, error)
	ListByChapter(dbc dbctx.Context, chapterID uuid.UUID) ([]*types.Page, error)
	ListBySubStory(dbc dbctx.Context, subStoryID uuid.UUID) ([]*types.Page, error)
	UpsertByOwner(dbc dbctx.Context, page *types.Page) (*types.Page, error)
}

type pageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPageRepo(db *gorm.DB, baseLog *logger.Logger) PageRepo {
	return &pageRepo{
		db:  db,
		log: baseLog.With("repo", "PageRepo"),
	}
}

// ownerOf resolves the single owner of a page. Exactly one of ChapterID and
// SubStoryID must be set.
func ownerOf(page *types.Page) (uuid.UUID, error) {
	hasChapter := page.ChapterID != nil && *page.ChapterID != uuid.Nil
	hasSubStory := page.SubStoryID != nil && *page.SubStoryID != uuid.Nil
	switch {
	case hasChapter && hasSubStory:
		return uuid.Nil, fmt.Errorf("page %d has both chapter and sub-story owners", page.PageNumber)
	case hasChapter:
		return *page.ChapterID, nil
	case hasSubStory:
		return *page.SubStoryID, nil
	default:
		return uuid.Nil, fmt.Errorf("page %d has no owner", page.PageNumber)
	}
}

func (r *pageRepo) Create(dbc dbctx.Context, page *types.Page) (*types.Page, error) {
	if page == nil {
		return nil, fmt.Errorf("nil page")
	}
	owner, err := ownerOf(page)
	if err != nil {
		return nil, err
	}
	page.OwnerID = owner
	if err := dbc.DB(r.db).Create(page).Error; err != nil {
		return nil, err
	}
	return page, nil
}

func (r *pageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Page, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var p types.Page
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *pageRepo) GetByOwnerAndNumber(dbc dbctx.Context, ownerID uuid.UUID, pageNumber int) (*types.Page, error) {
	if ownerID == uuid.Nil {
		return nil, nil
	}
	var p types.Page
	if err := dbc.DB(r.db).
		Where("owner_id = ? AND page_number = ?", ownerID, pageNumber).
		Limit(1).
		Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *pageRepo) ListByChapter(dbc dbctx.Context, chapterID uuid.UUID) ([]*types.Page, error) {
	var out []*types.Page
	if chapterID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("chapter_id = ?", chapterID).Find(&out).Error; err != nil {
		return nil, err
	}
	sortPages(out)
	return out, nil
}

func (r *pageRepo) ListBySubStory(dbc dbctx.Context, subStoryID uuid.UUID) ([]*types.Page, error) {
	var out []*types.Page
	if subStoryID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("sub_story_id = ?", subStoryID).Find(&out).Error; err != nil {
		return nil, err
	}
	sortPages(out)
	return out, nil
}

// UpsertByOwner keys on (owner, page_number) and overwrites the page content and
// image reference.
func (r *pageRepo) UpsertByOwner(dbc dbctx.Context, page *types.Page) (*types.Page, error) {
	if page == nil {
		return nil, fmt.Errorf("nil page")
	}
	if page.PageNumber < 1 {
		return nil, fmt.Errorf("page_number must be >= 1")
	}
	owner, err := ownerOf(page)
	if err != nil {
		return nil, err
	}
	row := &types.Page{
		ChapterID:          page.ChapterID,
		SubStoryID:         page.SubStoryID,
		OwnerID:            owner,
		PageNumber:         page.PageNumber,
		Dialogue:           page.Dialogue,
		IllustrationPrompt: page.IllustrationPrompt,
		ImageURL:           page.ImageURL,
		ImageGCSKey:        page.ImageGCSKey,
		UpdatedAt:          time.Now(),
	}
	if err := upsertOnNaturalKey(dbc.DB(r.db), row,
		[]string{"owner_id", "page_number"},
		[]string{"dialogue", "illustration_prompt", "image_url", "image_gcs_key", "updated_at"},
	); err != nil {
		return nil, fmt.Errorf("upsert page %d: %w", page.PageNumber, err)
	}
	stored, err := r.GetByOwnerAndNumber(dbc, owner, page.PageNumber)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("upsert page %d: row missing after write", page.PageNumber)
	}
	return stored, nil
}

func sortPages(pages []*types.Page) {
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
}
