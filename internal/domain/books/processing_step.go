package books

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StepStatusPending    = "pending"
	StepStatusInProgress = "in_progress"
	StepStatusProcessing = "processing"
	StepStatusCompleted  = "completed"
	StepStatusFailed     = "failed"
	StepStatusCancelled  = "cancelled"
)

// ProcessingStep is one named unit of pipeline work. Rows are written by the
// pipeline worker; the console only reads, cancels or deletes them.
type ProcessingStep struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BookID       uuid.UUID `gorm:"type:uuid;column:book_id;not null;index" json:"book_id"`
	StepName     string    `gorm:"column:step_name;not null" json:"step_name"`
	Status       string    `gorm:"column:status;not null;index" json:"status"`
	ErrorMessage string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (ProcessingStep) TableName() string { return "processing_step" }

func (s *ProcessingStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// NormalizeStatus lowercases and trims a status value; statuses are case-insensitive on read.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsActiveStatus reports in_progress/processing in any case.
func IsActiveStatus(s string) bool {
	switch NormalizeStatus(s) {
	case StepStatusInProgress, StepStatusProcessing:
		return true
	default:
		return false
	}
}
