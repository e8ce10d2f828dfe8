package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/storybook-admin/internal/data/repos/books"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

type BookRepo = books.BookRepo
type ChapterRepo = books.ChapterRepo
type SubStoryRepo = books.SubStoryRepo
type PageRepo = books.PageRepo
type ProcessingStepRepo = books.ProcessingStepRepo

type CascadeResult = books.CascadeResult

func NewBookRepo(db *gorm.DB, baseLog *logger.Logger) BookRepo { return books.NewBookRepo(db, baseLog) }
func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return books.NewChapterRepo(db, baseLog)
}
func NewSubStoryRepo(db *gorm.DB, baseLog *logger.Logger) SubStoryRepo {
	return books.NewSubStoryRepo(db, baseLog)
}
func NewPageRepo(db *gorm.DB, baseLog *logger.Logger) PageRepo { return books.NewPageRepo(db, baseLog) }
func NewProcessingStepRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingStepRepo {
	return books.NewProcessingStepRepo(db, baseLog)
}
