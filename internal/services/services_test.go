package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/storybook-admin/internal/data/repos"
	"github.com/yungbote/storybook-admin/internal/data/repos/testutil"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/platform/queue"
)

type testRepos struct {
	db       *gorm.DB
	log      *logger.Logger
	books    repos.BookRepo
	chapters repos.ChapterRepo
	subs     repos.SubStoryRepo
	pages    repos.PageRepo
	steps    repos.ProcessingStepRepo
}

func newTestRepos(t *testing.T) *testRepos {
	t.Helper()
	db := testutil.DB(t)
	logg := testutil.Logger(t)
	return &testRepos{
		db:       db,
		log:      logg,
		books:    repos.NewBookRepo(db, logg),
		chapters: repos.NewChapterRepo(db, logg),
		subs:     repos.NewSubStoryRepo(db, logg),
		pages:    repos.NewPageRepo(db, logg),
		steps:    repos.NewProcessingStepRepo(db, logg),
	}
}

type publishedMessage struct {
	Topic string
	Msg   queue.Message
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publishedMessage
	err  error
	// failOn makes the nth (1-based) publish fail with err.
	failOn int
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, msg queue.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.sent) + 1
	if p.err != nil && (p.failOn == 0 || p.failOn == n) {
		return "", p.err
	}
	p.sent = append(p.sent, publishedMessage{Topic: topic, Msg: msg})
	return fmt.Sprintf("1700000000000-%d", n-1), nil
}

func (p *fakePublisher) Close() error { return nil }
