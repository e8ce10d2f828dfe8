package books

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is the root of a storybook. SafeTitle is the external natural key: it is
// derived once from the original title and never recomputed afterwards.
type Book struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string    `gorm:"column:title;not null" json:"title"`
	SafeTitle    string    `gorm:"column:safe_title;not null;uniqueIndex:idx_book_safe_title" json:"safe_title"`
	ChapterCount int       `gorm:"column:chapter_count;not null;default:0" json:"chapter_count"`
	// Status is written by the pipeline worker; it is not the derived pipeline status.
	Status     string    `gorm:"column:status;not null;default:''" json:"status"`
	GCSBaseURL string    `gorm:"column:gcs_base_url" json:"gcs_base_url,omitempty"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Book) TableName() string { return "book" }

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type Chapter struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BookID uuid.UUID `gorm:"type:uuid;column:book_id;not null;uniqueIndex:idx_chapter_book_title,priority:1" json:"book_id"`
	Title  string    `gorm:"column:title;not null;uniqueIndex:idx_chapter_book_title,priority:2" json:"title"`
	// OrderIndex is the chapter count at creation time and is never renumbered.
	OrderIndex       int       `gorm:"column:order_index;not null;default:0" json:"order_index"`
	NarrationVersion string    `gorm:"column:narration_version;type:text;not null;default:''" json:"narration_version"`
	ProcessingStatus string    `gorm:"column:processing_status;not null;default:''" json:"processing_status"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (Chapter) TableName() string { return "chapter" }

func (c *Chapter) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
