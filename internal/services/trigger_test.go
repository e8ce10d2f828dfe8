package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/storybook-admin/internal/platform/apierr"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/platform/queue"
)

func decodePayload(t *testing.T, msg queue.Message) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &out))
	return out
}

func TestTriggerBothPublishesContentThenIllustrations(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewTriggerService(logger.Nop(), pub, "storybook-pipeline")

	res, err := svc.Trigger(context.Background(), TriggerRequest{BookSafeTitle: "Harry_Potter", Action: "both", ChapterTitle: "The Boy Who Lived"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Harry Potter", res.BookTitle)
	assert.Equal(t, "The Boy Who Lived", res.ChapterTitle)
	assert.Empty(t, res.MessageID)
	assert.Equal(t, []string{"1700000000000-0", "1700000000000-1"}, res.MessageIDs)

	require.Len(t, pub.sent, 2)
	first, second := pub.sent[0], pub.sent[1]
	assert.Equal(t, "storybook-pipeline", first.Topic)
	assert.Equal(t, map[string]string{"action": "content", "book_safe_title": "Harry_Potter"}, first.Msg.Attributes)
	assert.Equal(t, map[string]string{"action": "illustrations", "book_safe_title": "Harry_Potter"}, second.Msg.Attributes)

	assert.Equal(t, map[string]interface{}{
		"book_title":         "Harry Potter",
		"chapter_title":      "The Boy Who Lived",
		"regenerate_content": true,
	}, decodePayload(t, first.Msg))
	assert.Equal(t, map[string]interface{}{
		"book_title":                    "Harry Potter",
		"chapter_title":                 "The Boy Who Lived",
		"regenerate_illustrations_only": true,
	}, decodePayload(t, second.Msg))
}

func TestTriggerSingleAction(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewTriggerService(logger.Nop(), pub, "topic")

	res, err := svc.Trigger(context.Background(), TriggerRequest{BookSafeTitle: "Tales", Action: "Illustrations"})
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", res.MessageID)
	assert.Nil(t, res.MessageIDs)
	require.Len(t, pub.sent, 1)
	payload := decodePayload(t, pub.sent[0].Msg)
	assert.Equal(t, true, payload["regenerate_illustrations_only"])
	assert.NotContains(t, payload, "chapter_title")
	assert.NotContains(t, payload, "regenerate_content")
}

func TestTriggerValidation(t *testing.T) {
	svc := NewTriggerService(logger.Nop(), &fakePublisher{}, "topic")

	_, err := svc.Trigger(context.Background(), TriggerRequest{Action: "content"})
	status, _ := apierr.StatusOf(err, "")
	assert.Equal(t, 400, status)
	assert.ErrorIs(t, err, ErrMissingSafeTitle)

	_, err = svc.Trigger(context.Background(), TriggerRequest{BookSafeTitle: "Tales", Action: "narration"})
	status, _ = apierr.StatusOf(err, "")
	assert.Equal(t, 400, status)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestTriggerMissingTopic(t *testing.T) {
	for name, svc := range map[string]TriggerService{
		"no publisher": NewTriggerService(logger.Nop(), nil, "topic"),
		"empty topic":  NewTriggerService(logger.Nop(), &fakePublisher{}, "  "),
		"stream absent": NewTriggerService(logger.Nop(), &fakePublisher{
			err: queue.ErrTopicNotFound,
		}, "topic"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Trigger(context.Background(), TriggerRequest{BookSafeTitle: "Tales", Action: "content"})
			status, code := apierr.StatusOf(err, "")
			assert.Equal(t, 404, status)
			assert.Equal(t, "topic_not_found", code)
			assert.ErrorIs(t, err, ErrTopicNotFound)
		})
	}
}

func TestTriggerPublishFailureIsReported(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection reset"), failOn: 2}
	svc := NewTriggerService(logger.Nop(), pub, "topic")

	_, err := svc.Trigger(context.Background(), TriggerRequest{BookSafeTitle: "Tales", Action: "both"})
	require.Error(t, err)
	status, _ := apierr.StatusOf(err, "")
	assert.Equal(t, 500, status)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, pub.sent, 1)
}
