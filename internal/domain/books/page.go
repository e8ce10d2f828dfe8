package books

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PageOwnerKind string

const (
	PageOwnerChapter  PageOwnerKind = "chapter"
	PageOwnerSubStory PageOwnerKind = "sub_story"
)

// Page belongs to exactly one of a chapter (flat schema) or a sub-story (grouped
// schema). OwnerID mirrors whichever is set so the natural key is indexable.
type Page struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterID          *uuid.UUID `gorm:"type:uuid;column:chapter_id;index" json:"chapter_id,omitempty"`
	SubStoryID         *uuid.UUID `gorm:"type:uuid;column:sub_story_id;index" json:"sub_story_id,omitempty"`
	OwnerID            uuid.UUID  `gorm:"type:uuid;column:owner_id;not null;uniqueIndex:idx_page_owner_number,priority:1" json:"owner_id"`
	PageNumber         int        `gorm:"column:page_number;not null;uniqueIndex:idx_page_owner_number,priority:2" json:"page_number"`
	Dialogue           string     `gorm:"column:dialogue;type:text;not null;default:''" json:"dialogue"`
	IllustrationPrompt string     `gorm:"column:illustration_prompt;type:text;not null;default:''" json:"illustration_prompt"`
	ImageURL           string     `gorm:"column:image_url;not null;default:''" json:"image_url,omitempty"`
	ImageGCSKey        string     `gorm:"column:image_gcs_key;not null;default:''" json:"image_gcs_key,omitempty"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null" json:"updated_at"`
}

func (Page) TableName() string { return "page" }

func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IllustrationImage prefers the absolute URL over the blob key.
func (p *Page) IllustrationImage() string {
	if p == nil {
		return ""
	}
	if p.ImageURL != "" {
		return p.ImageURL
	}
	return p.ImageGCSKey
}

// SetIllustrationImage stores ref as an absolute URL or a blob key, clearing the other.
func (p *Page) SetIllustrationImage(ref string) {
	ref = strings.TrimSpace(ref)
	if IsAbsoluteURL(ref) {
		p.ImageURL, p.ImageGCSKey = ref, ""
		return
	}
	p.ImageURL, p.ImageGCSKey = "", ref
}

func IsAbsoluteURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
