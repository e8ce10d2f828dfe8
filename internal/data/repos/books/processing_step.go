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

type ProcessingStepRepo interface {
	Create(dbc dbctx.Context, step *types.ProcessingStep) (*types.ProcessingStep, error)
	ListByBook(dbc dbctx.Context, bookID uuid.UUID) ([]*types.ProcessingStep, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	CancelActive(dbc dbctx.Context, bookID uuid.UUID, message string) (int64, error)
	DeleteByBook(dbc dbctx.Context, bookID uuid.UUID) (int64, error)
}

type processingStepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessingStepRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingStepRepo {
	return &processingStepRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingStepRepo"),
	}
}

func (r *processingStepRepo) Create(dbc dbctx.Context, step *types.ProcessingStep) (*types.ProcessingStep, error) {
	if step == nil || step.BookID == uuid.Nil {
		return nil, fmt.Errorf("missing book_id")
	}
	if err := dbc.DB(r.db).Create(step).Error; err != nil {
		return nil, err
	}
	return step, nil
}

// ListByBook returns steps oldest first.
func (r *processingStepRepo) ListByBook(dbc dbctx.Context, bookID uuid.UUID) ([]*types.ProcessingStep, error) {
	var out []*types.ProcessingStep
	if bookID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("book_id = ?", bookID).Find(&out).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *processingStepRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).Model(&types.ProcessingStep{}).Where("id = ?", id).Updates(updates).Error
}

// CancelActive marks every step of the book whose status reads as active as
// cancelled with message and returns how many rows changed.
func (r *processingStepRepo) CancelActive(dbc dbctx.Context, bookID uuid.UUID, message string) (int64, error) {
	if bookID == uuid.Nil {
		return 0, nil
	}
	var rows []*types.ProcessingStep
	if err := dbc.DB(r.db).Select("id", "status").Where("book_id = ?", bookID).Find(&rows).Error; err != nil {
		return 0, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, st := range rows {
		if types.IsActiveStatus(st.Status) {
			ids = append(ids, st.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Model(&types.ProcessingStep{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":        types.StepStatusCancelled,
			"error_message": message,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *processingStepRepo) DeleteByBook(dbc dbctx.Context, bookID uuid.UUID) (int64, error) {
	if bookID == uuid.Nil {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("book_id = ?", bookID).Delete(&types.ProcessingStep{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
