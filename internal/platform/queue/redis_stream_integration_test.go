package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

func TestRedisStreamPublisherIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis stream integration tests")
	}
	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	stream := fmt.Sprintf("storybook-pipeline-test-%d", time.Now().UnixNano())
	if err := rdb.XGroupCreateMkStream(ctx, stream, "workers", "$").Err(); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	defer rdb.Del(ctx, stream)

	pub, err := NewRedisStreamPublisher(logger.Nop(), RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisStreamPublisher: %v", err)
	}
	defer pub.Close()

	id, err := pub.Publish(ctx, stream, Message{
		Data:       []byte(`{"book_title":"Harry Potter"}`),
		Attributes: map[string]string{"action": "content", "book_safe_title": "Harry_Potter"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	entries, err := rdb.XRange(ctx, stream, id, id).Result()
	if err != nil || len(entries) != 1 {
		t.Fatalf("XRange: err=%v len=%d", err, len(entries))
	}
	if entries[0].Values["action"] != "content" || entries[0].Values["data"] != `{"book_title":"Harry Potter"}` {
		t.Fatalf("unexpected entry values: %#v", entries[0].Values)
	}

	_, err = pub.Publish(ctx, stream+"-missing", Message{Data: []byte(`{}`)})
	if !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("expected ErrTopicNotFound for missing stream, got %v", err)
	}
}
