package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/storybook-admin/internal/domain/books"
	"github.com/yungbote/storybook-admin/internal/observability"
	"github.com/yungbote/storybook-admin/internal/platform/apierr"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/platform/queue"
)

const (
	ActionContent       = "content"
	ActionIllustrations = "illustrations"
	ActionBoth          = "both"
)

type TriggerRequest struct {
	BookSafeTitle string `json:"bookSafeTitle"`
	Action        string `json:"action"`
	ChapterTitle  string `json:"chapterTitle,omitempty"`
}

type TriggerResult struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	MessageID    string   `json:"messageId,omitempty"`
	MessageIDs   []string `json:"messageIds,omitempty"`
	BookTitle    string   `json:"bookTitle"`
	ChapterTitle string   `json:"chapterTitle,omitempty"`
}

// TriggerPayload is the JSON body the pipeline worker consumes. Exactly one of the
// regenerate flags is set.
type TriggerPayload struct {
	BookTitle                   string `json:"book_title"`
	ChapterTitle                string `json:"chapter_title,omitempty"`
	RegenerateContent           bool   `json:"regenerate_content,omitempty"`
	RegenerateIllustrationsOnly bool   `json:"regenerate_illustrations_only,omitempty"`
}

type TriggerService interface {
	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error)
}

type triggerService struct {
	log       *logger.Logger
	publisher queue.Publisher
	topic     string
}

// NewTriggerService accepts a nil publisher; every trigger then fails with
// ErrTopicNotFound.
func NewTriggerService(baseLog *logger.Logger, publisher queue.Publisher, topic string) TriggerService {
	return &triggerService{
		log:       baseLog.With("service", "TriggerService"),
		publisher: publisher,
		topic:     strings.TrimSpace(topic),
	}
}

// BuildTriggerMessage assembles the message for one pipeline action.
func BuildTriggerMessage(safeTitle, action, chapterTitle string) (queue.Message, error) {
	payload := TriggerPayload{
		BookTitle:    books.DisplayTitleFromSlug(safeTitle),
		ChapterTitle: chapterTitle,
	}
	switch action {
	case ActionContent:
		payload.RegenerateContent = true
	case ActionIllustrations:
		payload.RegenerateIllustrationsOnly = true
	default:
		return queue.Message{}, fmt.Errorf("unsupported message action %q", action)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return queue.Message{}, fmt.Errorf("encode trigger payload: %w", err)
	}
	return queue.Message{
		Data: data,
		Attributes: map[string]string{
			"action":          action,
			"book_safe_title": safeTitle,
		},
	}, nil
}

func (s *triggerService) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	safeTitle := strings.TrimSpace(req.BookSafeTitle)
	if safeTitle == "" {
		return nil, apierr.BadRequest("missing_book_safe_title", ErrMissingSafeTitle)
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	chapterTitle := strings.TrimSpace(req.ChapterTitle)

	var actions []string
	switch action {
	case ActionContent, ActionIllustrations:
		actions = []string{action}
	case ActionBoth:
		actions = []string{ActionContent, ActionIllustrations}
	default:
		return nil, apierr.BadRequest("invalid_action", ErrInvalidAction)
	}

	if s.publisher == nil || s.topic == "" {
		observability.Current().IncTrigger(action, "topic_not_found")
		return nil, apierr.NotFound("topic_not_found", ErrTopicNotFound)
	}

	ctx, span := observability.StartSpan(ctx, "pipeline.trigger",
		attribute.String("book_safe_title", safeTitle),
		attribute.String("action", action),
	)
	defer span.End()

	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		msg, err := BuildTriggerMessage(safeTitle, a, chapterTitle)
		if err != nil {
			return nil, apierr.Upstream("trigger_encode_failed", err)
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			s.log.Error("Publish trigger failed",
				"book_safe_title", safeTitle,
				"action", a,
				"topic", s.topic,
				"published", ids,
				"error", err,
			)
			span.RecordError(err)
			observability.Current().IncTrigger(a, "error")
			if errors.Is(err, ErrTopicNotFound) {
				return nil, apierr.NotFound("topic_not_found", err)
			}
			return nil, apierr.Upstream("trigger_publish_failed", fmt.Errorf("publish %s trigger: %w", a, err))
		}
		ids = append(ids, id)
		observability.Current().IncTrigger(a, "ok")
	}

	s.log.Info("Pipeline triggered", "book_safe_title", safeTitle, "action", action, "chapter_title", chapterTitle, "message_ids", ids)

	out := &TriggerResult{
		Success:      true,
		BookTitle:    books.DisplayTitleFromSlug(safeTitle),
		ChapterTitle: chapterTitle,
	}
	if len(ids) == 1 {
		out.MessageID = ids[0]
		out.Message = fmt.Sprintf("Triggered %s generation for %s", action, out.BookTitle)
	} else {
		out.MessageIDs = ids
		out.Message = fmt.Sprintf("Triggered content and illustrations generation for %s", out.BookTitle)
	}
	return out, nil
}
