package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MaxLen trims each stream approximately to this many entries; 0 disables trimming.
	MaxLen int64
}

type redisStreamPublisher struct {
	log    *logger.Logger
	rdb    *goredis.Client
	maxLen int64
}

// NewRedisStreamPublisher publishes each message as a Redis stream entry (XADD) on the
// stream named by topic. Streams are never created here: the worker owns the stream
// and its consumer group, so a missing stream surfaces as ErrTopicNotFound.
func NewRedisStreamPublisher(log *logger.Logger, cfg RedisConfig) (Publisher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisStreamPublisher{
		log:    log.With("service", "RedisStreamPublisher"),
		rdb:    rdb,
		maxLen: cfg.MaxLen,
	}, nil
}

func (p *redisStreamPublisher) Publish(ctx context.Context, topic string, msg Message) (string, error) {
	if p == nil || p.rdb == nil {
		return "", fmt.Errorf("redis publisher not initialized")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrTopicNotFound
	}
	values := make(map[string]interface{}, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		values[k] = v
	}
	values["data"] = string(msg.Data)

	args := &goredis.XAddArgs{
		Stream:     topic,
		NoMkStream: true,
		Values:     values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.rdb.XAdd(ctx, args).Result()
	if errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("stream %q: %w", topic, ErrTopicNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("xadd %q: %w", topic, err)
	}
	return id, nil
}

func (p *redisStreamPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
