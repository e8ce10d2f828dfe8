package books

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubStory groups pages within a chapter (grouped schema). A chapter with no
// sub-story rows uses the flat page schema.
type SubStory struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterID      uuid.UUID `gorm:"type:uuid;column:chapter_id;not null;uniqueIndex:idx_sub_story_chapter_number,priority:1" json:"chapter_id"`
	SubStoryNumber int       `gorm:"column:sub_story_number;not null;uniqueIndex:idx_sub_story_chapter_number,priority:2" json:"sub_story_number"`
	Title          string    `gorm:"column:title;not null;default:''" json:"title"`
	Content        string    `gorm:"column:content;type:text;not null;default:''" json:"content"`
	// Sections holds pages written inline by the worker without page rows.
	Sections  datatypes.JSON `gorm:"column:sections" json:"sections,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (SubStory) TableName() string { return "sub_story" }

func (s *SubStory) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
