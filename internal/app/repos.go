package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/storybook-admin/internal/data/repos"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

type Repos struct {
	Book           repos.BookRepo
	Chapter        repos.ChapterRepo
	SubStory       repos.SubStoryRepo
	Page           repos.PageRepo
	ProcessingStep repos.ProcessingStepRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Book:           repos.NewBookRepo(db, log),
		Chapter:        repos.NewChapterRepo(db, log),
		SubStory:       repos.NewSubStoryRepo(db, log),
		Page:           repos.NewPageRepo(db, log),
		ProcessingStep: repos.NewProcessingStepRepo(db, log),
	}
}
