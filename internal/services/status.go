package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/storybook-admin/internal/data/repos"
	types "github.com/yungbote/storybook-admin/internal/domain"
	"github.com/yungbote/storybook-admin/internal/domain/books"
	"github.com/yungbote/storybook-admin/internal/observability"
	"github.com/yungbote/storybook-admin/internal/platform/apierr"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

const (
	OverallPending    = "pending"
	OverallProcessing = "processing"
	OverallCompleted  = "completed"
	OverallFailed     = "failed"
	OverallUnknown    = "unknown"
)

// CancelledStepMessage is written to error_message of every step cancelled by Stop.
const CancelledStepMessage = "Pipeline stopped by operator"

type StatusSummary struct {
	OverallStatus string `json:"overallStatus"`
	IsProcessing  bool   `json:"isProcessing"`
}

// DeriveStatus folds the book's own status and its step statuses into one overall
// status. A processing, completed or failed book status wins outright; anything else
// falls back to the steps, where ambiguity reads as still running.
func DeriveStatus(bookStatus string, stepStatuses []string) StatusSummary {
	switch books.NormalizeStatus(bookStatus) {
	case types.StepStatusProcessing, types.StepStatusInProgress:
		return StatusSummary{OverallStatus: OverallProcessing, IsProcessing: true}
	case types.StepStatusCompleted:
		return StatusSummary{OverallStatus: OverallCompleted}
	case types.StepStatusFailed:
		return StatusSummary{OverallStatus: OverallFailed}
	}

	if len(stepStatuses) == 0 {
		return StatusSummary{OverallStatus: OverallPending}
	}
	var failed, completed int
	for _, s := range stepStatuses {
		switch books.NormalizeStatus(s) {
		case types.StepStatusInProgress, types.StepStatusProcessing:
			return StatusSummary{OverallStatus: OverallProcessing, IsProcessing: true}
		case types.StepStatusFailed:
			failed++
		case types.StepStatusCompleted:
			completed++
		}
	}
	switch {
	case failed > 0:
		return StatusSummary{OverallStatus: OverallFailed}
	case completed == len(stepStatuses):
		return StatusSummary{OverallStatus: OverallCompleted}
	default:
		return StatusSummary{OverallStatus: OverallProcessing, IsProcessing: true}
	}
}

func stepStatuses(steps []*types.ProcessingStep) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Status)
	}
	return out
}

type StepView struct {
	ID           uuid.UUID `json:"id"`
	StepName     string    `json:"step_name"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type PipelineStatus struct {
	BookSafeTitle string     `json:"bookSafeTitle"`
	BookStatus    *string    `json:"bookStatus"`
	OverallStatus string     `json:"overallStatus"`
	IsProcessing  bool       `json:"isProcessing"`
	Steps         []StepView `json:"steps"`
	Message       string     `json:"message,omitempty"`
}

type StopResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	CancelledSteps int64  `json:"cancelledSteps"`
}

type RemoveHistoryResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedSteps int64  `json:"deletedSteps"`
}

type PipelineStatusService interface {
	// GetStatus never reports a missing book as an error: no pipeline yet is a
	// normal state and comes back as overallStatus "unknown".
	GetStatus(dbc dbctx.Context, safeTitle string) (*PipelineStatus, error)
	Stop(dbc dbctx.Context, safeTitle string) (*StopResult, error)
	RemoveHistory(dbc dbctx.Context, safeTitle string) (*RemoveHistoryResult, error)
}

type pipelineStatusService struct {
	db    *gorm.DB
	log   *logger.Logger
	books repos.BookRepo
	steps repos.ProcessingStepRepo
}

func NewPipelineStatusService(db *gorm.DB, baseLog *logger.Logger, bookRepo repos.BookRepo, stepRepo repos.ProcessingStepRepo) PipelineStatusService {
	return &pipelineStatusService{
		db:    db,
		log:   baseLog.With("service", "PipelineStatusService"),
		books: bookRepo,
		steps: stepRepo,
	}
}

func (s *pipelineStatusService) GetStatus(dbc dbctx.Context, safeTitle string) (*PipelineStatus, error) {
	safeTitle = strings.TrimSpace(safeTitle)
	if safeTitle == "" {
		return nil, apierr.BadRequest("missing_book_safe_title", ErrMissingSafeTitle)
	}
	book, err := s.books.GetBySafeTitle(dbc, safeTitle)
	if err != nil {
		s.log.Error("Load book failed", "book_safe_title", safeTitle, "op", "status", "error", err)
		return nil, apierr.Upstream("book_lookup_failed", err)
	}
	if book == nil {
		observability.Current().IncStatusRead(OverallUnknown)
		return &PipelineStatus{
			BookSafeTitle: safeTitle,
			OverallStatus: OverallUnknown,
			Steps:         []StepView{},
			Message:       ErrBookNotFound.Error(),
		}, nil
	}

	steps, err := s.steps.ListByBook(dbc, book.ID)
	if err != nil {
		s.log.Error("List steps failed", "book_id", book.ID, "op", "status", "error", err)
		return nil, apierr.Upstream("steps_lookup_failed", err)
	}
	summary := DeriveStatus(book.Status, stepStatuses(steps))
	observability.Current().IncStatusRead(summary.OverallStatus)

	out := &PipelineStatus{
		BookSafeTitle: safeTitle,
		OverallStatus: summary.OverallStatus,
		IsProcessing:  summary.IsProcessing,
		Steps:         make([]StepView, 0, len(steps)),
	}
	if book.Status != "" {
		status := book.Status
		out.BookStatus = &status
	}
	for _, st := range steps {
		out.Steps = append(out.Steps, StepView{
			ID:           st.ID,
			StepName:     st.StepName,
			Status:       st.Status,
			ErrorMessage: st.ErrorMessage,
			UpdatedAt:    st.UpdatedAt,
			CreatedAt:    st.CreatedAt,
		})
	}
	return out, nil
}

// Stop marks the book cancelled and cancels its active steps. It cannot halt the
// worker; a late step write may still land after this returns.
func (s *pipelineStatusService) Stop(dbc dbctx.Context, safeTitle string) (*StopResult, error) {
	book, err := s.requireBook(dbc, safeTitle, "stop")
	if err != nil {
		return nil, err
	}

	var cancelled int64
	err = dbc.DB(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if err := s.books.UpdateFields(inner, book.ID, map[string]interface{}{"status": types.StepStatusCancelled}); err != nil {
			return fmt.Errorf("mark book cancelled: %w", err)
		}
		n, err := s.steps.CancelActive(inner, book.ID, CancelledStepMessage)
		if err != nil {
			return fmt.Errorf("cancel active steps: %w", err)
		}
		cancelled = n
		return nil
	})
	if err != nil {
		s.log.Error("Stop pipeline failed", "book_id", book.ID, "book_safe_title", safeTitle, "error", err)
		return nil, apierr.Upstream("stop_failed", err)
	}

	s.log.Info("Pipeline stopped", "book_id", book.ID, "book_safe_title", safeTitle, "cancelled_steps", cancelled)
	return &StopResult{
		Success:        true,
		Message:        fmt.Sprintf("Pipeline stopped for %s; %d step(s) cancelled", safeTitle, cancelled),
		CancelledSteps: cancelled,
	}, nil
}

// RemoveHistory forgets processing history and keeps the content.
func (s *pipelineStatusService) RemoveHistory(dbc dbctx.Context, safeTitle string) (*RemoveHistoryResult, error) {
	book, err := s.requireBook(dbc, safeTitle, "remove_history")
	if err != nil {
		return nil, err
	}
	n, err := s.steps.DeleteByBook(dbc, book.ID)
	if err != nil {
		s.log.Error("Delete steps failed", "book_id", book.ID, "book_safe_title", safeTitle, "error", err)
		return nil, apierr.Upstream("remove_history_failed", err)
	}
	s.log.Info("Pipeline history removed", "book_id", book.ID, "deleted_steps", n)
	return &RemoveHistoryResult{
		Success:      true,
		Message:      fmt.Sprintf("Removed %d processing step(s) for %s", n, safeTitle),
		DeletedSteps: n,
	}, nil
}

func (s *pipelineStatusService) requireBook(dbc dbctx.Context, safeTitle, op string) (*types.Book, error) {
	safeTitle = strings.TrimSpace(safeTitle)
	if safeTitle == "" {
		return nil, apierr.BadRequest("missing_book_safe_title", ErrMissingSafeTitle)
	}
	book, err := s.books.GetBySafeTitle(dbc, safeTitle)
	if err != nil {
		s.log.Error("Load book failed", "book_safe_title", safeTitle, "op", op, "error", err)
		return nil, apierr.Upstream("book_lookup_failed", err)
	}
	if book == nil {
		return nil, apierr.NotFound("book_not_found", ErrBookNotFound)
	}
	return book, nil
}
