package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/storybook-admin/internal/domain"
)

func SeedBook(tb testing.TB, db *gorm.DB, title, safeTitle string) *types.Book {
	tb.Helper()
	b := &types.Book{Title: title, SafeTitle: safeTitle}
	if err := db.Create(b).Error; err != nil {
		tb.Fatalf("seed book: %v", err)
	}
	return b
}

func SeedChapter(tb testing.TB, db *gorm.DB, bookID uuid.UUID, title string, orderIndex int) *types.Chapter {
	tb.Helper()
	ch := &types.Chapter{BookID: bookID, Title: title, OrderIndex: orderIndex}
	if err := db.Create(ch).Error; err != nil {
		tb.Fatalf("seed chapter: %v", err)
	}
	return ch
}

func SeedSubStory(tb testing.TB, db *gorm.DB, chapterID uuid.UUID, number int, title, content string) *types.SubStory {
	tb.Helper()
	s := &types.SubStory{ChapterID: chapterID, SubStoryNumber: number, Title: title, Content: content}
	if err := db.Create(s).Error; err != nil {
		tb.Fatalf("seed sub-story: %v", err)
	}
	return s
}

func SeedChapterPage(tb testing.TB, db *gorm.DB, chapterID uuid.UUID, number int, dialogue string) *types.Page {
	tb.Helper()
	p := &types.Page{ChapterID: PtrUUID(chapterID), OwnerID: chapterID, PageNumber: number, Dialogue: dialogue}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed chapter page: %v", err)
	}
	return p
}

func SeedSubStoryPage(tb testing.TB, db *gorm.DB, subStoryID uuid.UUID, number int, dialogue string) *types.Page {
	tb.Helper()
	p := &types.Page{SubStoryID: PtrUUID(subStoryID), OwnerID: subStoryID, PageNumber: number, Dialogue: dialogue}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed sub-story page: %v", err)
	}
	return p
}

func SeedStep(tb testing.TB, db *gorm.DB, bookID uuid.UUID, name, status string) *types.ProcessingStep {
	tb.Helper()
	s := &types.ProcessingStep{BookID: bookID, StepName: name, Status: status}
	if err := db.Create(s).Error; err != nil {
		tb.Fatalf("seed step: %v", err)
	}
	return s
}
