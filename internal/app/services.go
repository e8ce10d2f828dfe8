package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/services"
	"github.com/yungbote/storybook-admin/internal/snapshot"
)

type Services struct {
	Snapshots snapshot.Store
	Trigger   services.TriggerService
	Status    services.PipelineStatusService
	BookViews services.BookViewService
	BookAdmin services.BookAdminService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet Repos) Services {
	log.Info("Wiring services...")

	var blobs snapshot.Blobs
	if clients.Bucket != nil {
		blobs = clients.Bucket
	}
	snapshots := snapshot.NewStore(log, blobs, cfg.SnapshotLocalDir)

	return Services{
		Snapshots: snapshots,
		Trigger:   services.NewTriggerService(log, clients.Publisher, cfg.PipelineTopic),
		Status:    services.NewPipelineStatusService(db, log, reposet.Book, reposet.ProcessingStep),
		BookViews: services.NewBookViewService(
			log,
			reposet.Book,
			reposet.Chapter,
			reposet.SubStory,
			reposet.Page,
			snapshots,
			cfg.SnapshotSavePolicy,
		),
		BookAdmin: services.NewBookAdminService(log, reposet.Book, reposet.ProcessingStep, clients.Bucket, snapshots),
	}
}
