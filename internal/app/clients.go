package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/storybook-admin/internal/data/db"
	"github.com/yungbote/storybook-admin/internal/platform/gcp"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/platform/queue"
)

// Clients holds the process-wide handles. Bucket and Publisher are nil when their
// backing service is not configured.
type Clients struct {
	Database  *db.Service
	Bucket    gcp.BucketService
	Publisher queue.Publisher
}

func (c Clients) DB() *gorm.DB {
	if c.Database == nil {
		return nil
	}
	return c.Database.DB()
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	database, err := db.NewService(log, cfg.DB)
	if err != nil {
		return Clients{}, fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrateAll(); err != nil {
		_ = database.Close()
		return Clients{}, err
	}

	bucket, err := resolveBucketService(log, cfg)
	if err != nil {
		_ = database.Close()
		return Clients{}, err
	}

	var publisher queue.Publisher
	if cfg.Redis.Addr != "" {
		p, err := queue.NewRedisStreamPublisher(log, cfg.Redis)
		if err != nil {
			if bucket != nil {
				_ = bucket.Close()
			}
			_ = database.Close()
			return Clients{}, fmt.Errorf("init trigger queue: %w", err)
		}
		publisher = p
	} else {
		log.Warn("REDIS_ADDR not set; pipeline triggers will report topic not found")
	}

	return Clients{
		Database:  database,
		Bucket:    bucket,
		Publisher: publisher,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Publisher != nil {
		_ = c.Publisher.Close()
	}
	if c.Bucket != nil {
		_ = c.Bucket.Close()
	}
	if c.Database != nil {
		_ = c.Database.Close()
	}
}
