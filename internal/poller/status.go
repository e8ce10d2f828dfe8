// Package poller re-fetches pipeline status for books that are still running and
// stops each book's loop once its status turns terminal.
package poller

import (
	"strings"
	"time"
)

const DefaultInterval = 3 * time.Second

// Status mirrors the body of GET /api/pipeline/status.
type Status struct {
	BookSafeTitle string  `json:"bookSafeTitle"`
	BookStatus    *string `json:"bookStatus"`
	OverallStatus string  `json:"overallStatus"`
	IsProcessing  bool    `json:"isProcessing"`
	Steps         []Step  `json:"steps"`
	Message       string  `json:"message,omitempty"`
}

type Step struct {
	ID           string    `json:"id"`
	StepName     string    `json:"step_name"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsTerminal reports whether polling can stop. Completed, failed and unknown are
// terminal; everything else, including an empty status, keeps the loop alive.
func IsTerminal(overall string) bool {
	switch strings.ToLower(strings.TrimSpace(overall)) {
	case "completed", "failed", "unknown":
		return true
	default:
		return false
	}
}

func (s *Status) Terminal() bool {
	return s != nil && IsTerminal(s.OverallStatus)
}
