package services

import (
	"errors"

	"github.com/yungbote/storybook-admin/internal/platform/queue"
)

var (
	ErrBookNotFound     = errors.New("book not found")
	ErrTopicNotFound    = queue.ErrTopicNotFound
	ErrMissingSafeTitle = errors.New("bookSafeTitle is required")
	ErrInvalidAction    = errors.New("action must be one of content, illustrations, both")
	ErrBookExists       = errors.New("book already exists")
	ErrStorageDisabled  = errors.New("object storage is not configured")
	ErrInvalidImage     = errors.New("upload is not a png, jpeg, gif or webp image")

	ErrDuplicatePageNumber     = errors.New("page number repeated in the same save")
	ErrDuplicateSubStoryNumber = errors.New("sub-story number repeated in the same chapter")
)
