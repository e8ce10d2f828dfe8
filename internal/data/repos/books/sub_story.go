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

type SubStoryRepo interface {
	Create(dbc dbctx.Context, subStory *types.SubStory) (*types.SubStory, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SubStory, error)
	GetByChapterAndNumber(dbc dbctx.Context, chapterID uuid.UUID, number int) (*types.SubStory, error)
	ListByChapter(dbc dbctx.Context, chapterID uuid.UUID) ([]*types.SubStory, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpsertByChapterAndNumber(dbc dbctx.Context, subStory *types.SubStory) (*types.SubStory, error)
}

type subStoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubStoryRepo(db *gorm.DB, baseLog *logger.Logger) SubStoryRepo {
	return &subStoryRepo{
		db:  db,
		log: baseLog.With("repo", "SubStoryRepo"),
	}
}

func (r *subStoryRepo) Create(dbc dbctx.Context, subStory *types.SubStory) (*types.SubStory, error) {
	if subStory == nil || subStory.ChapterID == uuid.Nil {
		return nil, fmt.Errorf("missing chapter_id")
	}
	if subStory.SubStoryNumber < 1 {
		return nil, fmt.Errorf("sub_story_number must be >= 1")
	}
	if err := dbc.DB(r.db).Create(subStory).Error; err != nil {
		return nil, err
	}
	return subStory, nil
}

func (r *subStoryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SubStory, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var s types.SubStory
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *subStoryRepo) GetByChapterAndNumber(dbc dbctx.Context, chapterID uuid.UUID, number int) (*types.SubStory, error) {
	if chapterID == uuid.Nil {
		return nil, nil
	}
	var s types.SubStory
	if err := dbc.DB(r.db).
		Where("chapter_id = ? AND sub_story_number = ?", chapterID, number).
		Limit(1).
		Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *subStoryRepo) ListByChapter(dbc dbctx.Context, chapterID uuid.UUID) ([]*types.SubStory, error) {
	var out []*types.SubStory
	if chapterID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("chapter_id = ?", chapterID).Find(&out).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubStoryNumber < out[j].SubStoryNumber })
	return out, nil
}

func (r *subStoryRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).Model(&types.SubStory{}).Where("id = ?", id).Updates(updates).Error
}

// UpsertByChapterAndNumber writes title and content verbatim, empty strings included.
// Inline sections already on the row are left alone.
func (r *subStoryRepo) UpsertByChapterAndNumber(dbc dbctx.Context, subStory *types.SubStory) (*types.SubStory, error) {
	if subStory == nil || subStory.ChapterID == uuid.Nil {
		return nil, fmt.Errorf("missing chapter_id")
	}
	if subStory.SubStoryNumber < 1 {
		return nil, fmt.Errorf("sub_story_number must be >= 1")
	}
	row := &types.SubStory{
		ChapterID:      subStory.ChapterID,
		SubStoryNumber: subStory.SubStoryNumber,
		Title:          subStory.Title,
		Content:        subStory.Content,
		Sections:       subStory.Sections,
	}
	if err := upsertOnNaturalKey(dbc.DB(r.db), row,
		[]string{"chapter_id", "sub_story_number"},
		[]string{"title", "content", "updated_at"},
	); err != nil {
		return nil, fmt.Errorf("upsert sub-story %d: %w", subStory.SubStoryNumber, err)
	}
	stored, err := r.GetByChapterAndNumber(dbc, subStory.ChapterID, subStory.SubStoryNumber)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("upsert sub-story %d: row missing after write", subStory.SubStoryNumber)
	}
	return stored, nil
}
