package domain

import "github.com/yungbote/storybook-admin/internal/domain/books"

type Book = books.Book
type Chapter = books.Chapter
type SubStory = books.SubStory
type Page = books.Page
type ProcessingStep = books.ProcessingStep

type BookView = books.BookView
type ChapterView = books.ChapterView
type SubStoryView = books.SubStoryView
type PageView = books.PageView
type ReadingVersion = books.ReadingVersion
type FlatReading = books.FlatReading
type GroupedReading = books.GroupedReading

const (
	StepStatusPending    = books.StepStatusPending
	StepStatusInProgress = books.StepStatusInProgress
	StepStatusProcessing = books.StepStatusProcessing
	StepStatusCompleted  = books.StepStatusCompleted
	StepStatusFailed     = books.StepStatusFailed
	StepStatusCancelled  = books.StepStatusCancelled
)

var IsActiveStatus = books.IsActiveStatus

// Models lists every persisted entity, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Book{},
		&Chapter{},
		&SubStory{},
		&Page{},
		&ProcessingStep{},
	}
}
