package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/storybook-admin/internal/data/repos"
	"github.com/yungbote/storybook-admin/internal/data/repos/testutil"
	types "github.com/yungbote/storybook-admin/internal/domain"
	"github.com/yungbote/storybook-admin/internal/domain/books"
	"github.com/yungbote/storybook-admin/internal/platform/apierr"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
	"github.com/yungbote/storybook-admin/internal/platform/gcp/gcptest"
	"github.com/yungbote/storybook-admin/internal/snapshot"
)

type failingPageRepo struct {
	repos.PageRepo
	failPage int
}

func (r failingPageRepo) UpsertByOwner(dbc dbctx.Context, page *types.Page) (*types.Page, error) {
	if page.PageNumber == r.failPage {
		return nil, errors.New("write rejected")
	}
	return r.PageRepo.UpsertByOwner(dbc, page)
}

type failingSubStoryRepo struct {
	repos.SubStoryRepo
	failNumber int
}

func (r failingSubStoryRepo) UpsertByChapterAndNumber(dbc dbctx.Context, s *types.SubStory) (*types.SubStory, error) {
	if s.SubStoryNumber == r.failNumber {
		return nil, errors.New("write rejected")
	}
	return r.SubStoryRepo.UpsertByChapterAndNumber(dbc, s)
}

func newBookViewService(r *testRepos, snaps snapshot.Store, policy SnapshotSavePolicy) BookViewService {
	return NewBookViewService(r.log, r.books, r.chapters, r.subs, r.pages, snaps, policy)
}

func flatBook() *books.BookView {
	return &books.BookView{
		BookTitle:    "Tiny Tales",
		ChapterCount: 1,
		Chapters: []books.ChapterView{{
			Title:            "Morning",
			NarrationVersion: "It was morning.",
			ReadingVersion: books.FlatReading{Sections: []books.PageView{
				{PageNumber: 1, Dialogue: "Wake up!", IllustrationPrompt: "sunrise", IllustrationImage: "https://cdn.test/1.png"},
				{PageNumber: 2, Dialogue: "", IllustrationPrompt: "bed", IllustrationImage: "books/Tiny_Tales/images/2.png"},
				{PageNumber: 3, Dialogue: "Breakfast", IllustrationPrompt: "", IllustrationImage: ""},
			}},
		}},
	}
}

func groupedBook() *books.BookView {
	return &books.BookView{
		BookTitle:    "Tiny Tales",
		ChapterCount: 1,
		Chapters: []books.ChapterView{{
			Title:            "Evening",
			NarrationVersion: "It was evening.",
			ReadingVersion: books.GroupedReading{SubStories: []books.SubStoryView{
				{SubStoryNumber: 1, Title: "Dusk", Content: "", Sections: []books.PageView{
					{PageNumber: 1, Dialogue: "Look", IllustrationPrompt: "sky", IllustrationImage: "books/Tiny_Tales/images/a.png"},
				}},
				{SubStoryNumber: 2, Title: "Night", Content: "Stars came out.", Sections: []books.PageView{
					{PageNumber: 1, Dialogue: "Shh", IllustrationPrompt: "moon", IllustrationImage: ""},
					{PageNumber: 2, Dialogue: "Sleep", IllustrationPrompt: "bed", IllustrationImage: "https://cdn.test/b.png"},
				}},
			}},
		}},
	}
}

func TestBookViewRoundTripFlat(t *testing.T) {
	r := newTestRepos(t)
	svc := newBookViewService(r, nil, SnapshotIgnore)
	dbc := dbctx.Background()
	in := flatBook()

	res, err := svc.Save(dbc, "Tiny_Tales", in)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 1, res.Chapters)
	assert.Equal(t, 3, res.Pages)

	out, src, err := svc.Resolve(dbc, "Tiny_Tales")
	require.NoError(t, err)
	assert.Equal(t, ViewSourceEntities, src)
	assert.Equal(t, in, out)
}

func TestBookViewRoundTripGroupedKeepsEmptyContent(t *testing.T) {
	r := newTestRepos(t)
	svc := newBookViewService(r, nil, SnapshotIgnore)
	dbc := dbctx.Background()
	in := groupedBook()

	res, err := svc.Save(dbc, "Tiny_Tales", in)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 2, res.SubStories)
	assert.Equal(t, 3, res.Pages)

	// A second save is idempotent.
	_, err = svc.Save(dbc, "Tiny_Tales", in)
	require.NoError(t, err)

	out, err := svc.ResolveFromEntities(dbc, "Tiny_Tales")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	grouped := out.Chapters[0].ReadingVersion.(books.GroupedReading)
	assert.Equal(t, "", grouped.SubStories[0].Content)
}

func TestBookViewSnapshotWins(t *testing.T) {
	r := newTestRepos(t)
	bucket := gcptest.NewMemoryBucket()
	bucket.Put(books.SnapshotKey("Tiny_Tales"), []byte(`{"book_title":"Snapshot Title","chapters":[]}`))
	snaps := snapshot.NewStore(r.log, bucket, "")
	testutil.SeedBook(t, r.db, "Entity Title", "Tiny_Tales")

	svc := newBookViewService(r, snaps, SnapshotIgnore)
	out, src, err := svc.Resolve(dbctx.Background(), "Tiny_Tales")
	require.NoError(t, err)
	assert.Equal(t, ViewSourceSnapshot, src)
	assert.Equal(t, "Snapshot Title", out.BookTitle)
}

func TestBookViewNotFound(t *testing.T) {
	r := newTestRepos(t)
	svc := newBookViewService(r, snapshot.NewStore(r.log, gcptest.NewMemoryBucket(), ""), SnapshotRewrite)

	_, _, err := svc.Resolve(dbctx.Background(), "Missing")
	status, code := apierr.StatusOf(err, "")
	assert.Equal(t, 404, status)
	assert.Equal(t, "book_not_found", code)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestBookViewInlineSectionsFallback(t *testing.T) {
	r := newTestRepos(t)
	book := testutil.SeedBook(t, r.db, "Inline", "Inline")
	ch := testutil.SeedChapter(t, r.db, book.ID, "One", 0)
	ss := &types.SubStory{
		ChapterID:      ch.ID,
		SubStoryNumber: 1,
		Title:          "Only",
		Content:        "c",
		Sections:       datatypes.JSON(`[{"page_number":1,"dialogue":"inline","illustration_prompt":"p","illustration_image":"k.png"}]`),
	}
	require.NoError(t, r.db.Create(ss).Error)

	svc := newBookViewService(r, nil, SnapshotIgnore)
	out, err := svc.ResolveFromEntities(dbctx.Background(), "Inline")
	require.NoError(t, err)
	grouped := out.Chapters[0].ReadingVersion.(books.GroupedReading)
	assert.Equal(t, []books.PageView{{PageNumber: 1, Dialogue: "inline", IllustrationPrompt: "p", IllustrationImage: "k.png"}}, grouped.SubStories[0].Sections)
}

func TestBookViewSaveIsolatesPageFailures(t *testing.T) {
	r := newTestRepos(t)
	svc := NewBookViewService(r.log, r.books, r.chapters, r.subs, failingPageRepo{PageRepo: r.pages, failPage: 2}, nil, SnapshotIgnore)
	dbc := dbctx.Background()

	res, err := svc.Save(dbc, "Tiny_Tales", flatBook())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Pages)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, SaveFailure{Scope: FailureScopePage, Chapter: "Morning", PageNumber: 2, Error: "write rejected"}, res.Failures[0])

	out, err := svc.ResolveFromEntities(dbc, "Tiny_Tales")
	require.NoError(t, err)
	pages := out.Chapters[0].ReadingVersion.(books.FlatReading).Sections
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, 3, pages[1].PageNumber)
}

func TestBookViewSaveNumbersPagesWithoutCollisions(t *testing.T) {
	r := newTestRepos(t)
	svc := newBookViewService(r, nil, SnapshotIgnore)
	dbc := dbctx.Background()

	in := &books.BookView{
		BookTitle: "Tiny Tales",
		Chapters: []books.ChapterView{{
			Title: "Morning",
			ReadingVersion: books.FlatReading{Sections: []books.PageView{
				{PageNumber: 2, Dialogue: "first"},
				{Dialogue: "second"},
			}},
		}},
	}
	res, err := svc.Save(dbc, "Tiny_Tales", in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Empty(t, res.Failures)

	out, err := svc.ResolveFromEntities(dbc, "Tiny_Tales")
	require.NoError(t, err)
	pages := out.Chapters[0].ReadingVersion.(books.FlatReading).Sections
	require.Len(t, pages, 2)
	assert.Equal(t, books.PageView{PageNumber: 2, Dialogue: "first"}, pages[0])
	assert.Equal(t, books.PageView{PageNumber: 3, Dialogue: "second"}, pages[1])
}

func TestBookViewSaveReportsDuplicateNumbers(t *testing.T) {
	r := newTestRepos(t)
	svc := newBookViewService(r, nil, SnapshotIgnore)
	dbc := dbctx.Background()

	in := &books.BookView{
		BookTitle: "Tiny Tales",
		Chapters: []books.ChapterView{{
			Title: "Evening",
			ReadingVersion: books.GroupedReading{SubStories: []books.SubStoryView{
				{SubStoryNumber: 1, Title: "Dusk", Sections: []books.PageView{
					{PageNumber: 1, Dialogue: "kept"},
					{PageNumber: 1, Dialogue: "repeat"},
				}},
				{SubStoryNumber: 1, Title: "Again"},
			}},
		}},
	}
	res, err := svc.Save(dbc, "Tiny_Tales", in)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.SubStories)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, []SaveFailure{
		{Scope: FailureScopePage, Chapter: "Evening", SubStoryNumber: 1, PageNumber: 1, Error: ErrDuplicatePageNumber.Error()},
		{Scope: FailureScopeSubStory, Chapter: "Evening", SubStoryNumber: 1, Error: ErrDuplicateSubStoryNumber.Error()},
	}, res.Failures)

	out, err := svc.ResolveFromEntities(dbc, "Tiny_Tales")
	require.NoError(t, err)
	grouped := out.Chapters[0].ReadingVersion.(books.GroupedReading)
	require.Len(t, grouped.SubStories, 1)
	assert.Equal(t, "Dusk", grouped.SubStories[0].Title)
	assert.Equal(t, []books.PageView{{PageNumber: 1, Dialogue: "kept"}}, grouped.SubStories[0].Sections)
}

func TestAssignNumbers(t *testing.T) {
	numbers, dup := assignNumbers([]int{0, 1, 0, 3, 3, -1})
	assert.Equal(t, []int{2, 1, 4, 3, 3, 6}, numbers)
	assert.Equal(t, []bool{false, false, false, false, true, false}, dup)
}

func TestBookViewSaveKeepsStoredTitle(t *testing.T) {
	r := newTestRepos(t)
	testutil.SeedBook(t, r.db, "Harry Potter & Friends", "Harry_Potter_Friends")
	svc := newBookViewService(r, nil, SnapshotIgnore)
	dbc := dbctx.Background()

	view := flatBook()
	view.BookTitle = ""
	_, err := svc.Save(dbc, "Harry_Potter_Friends", view)
	require.NoError(t, err)

	stored, err := r.books.GetBySafeTitle(dbc, "Harry_Potter_Friends")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Harry Potter & Friends", stored.Title)

	_, err = svc.Save(dbc, "New_Book", view)
	require.NoError(t, err)
	created, err := r.books.GetBySafeTitle(dbc, "New_Book")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, books.DisplayTitleFromSlug("New_Book"), created.Title)
}

func TestBookViewUnreadableSnapshotIsUpstreamFailure(t *testing.T) {
	r := newTestRepos(t)
	bucket := gcptest.NewMemoryBucket()
	bucket.Put(books.SnapshotKey("Tiny_Tales"), []byte(`{"book_title":`))
	testutil.SeedBook(t, r.db, "Tiny Tales", "Tiny_Tales")

	svc := newBookViewService(r, snapshot.NewStore(r.log, bucket, ""), SnapshotIgnore)
	_, _, err := svc.Resolve(dbctx.Background(), "Tiny_Tales")
	require.Error(t, err)
	status, code := apierr.StatusOf(err, "")
	assert.Equal(t, 500, status)
	assert.Equal(t, "snapshot_unreadable", code)
}

func TestBookViewSaveDropsFailedSubStory(t *testing.T) {
	r := newTestRepos(t)
	svc := NewBookViewService(r.log, r.books, r.chapters, failingSubStoryRepo{SubStoryRepo: r.subs, failNumber: 1}, r.pages, nil, SnapshotIgnore)
	dbc := dbctx.Background()

	res, err := svc.Save(dbc, "Tiny_Tales", groupedBook())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SubStories)
	assert.Equal(t, 2, res.Pages)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, FailureScopeSubStory, res.Failures[0].Scope)
	assert.Equal(t, 1, res.Failures[0].SubStoryNumber)

	out, err := svc.ResolveFromEntities(dbc, "Tiny_Tales")
	require.NoError(t, err)
	grouped := out.Chapters[0].ReadingVersion.(books.GroupedReading)
	require.Len(t, grouped.SubStories, 1)
	assert.Equal(t, "Night", grouped.SubStories[0].Title)
}

func TestBookViewSnapshotPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("rewrite", func(t *testing.T) {
		r := newTestRepos(t)
		bucket := gcptest.NewMemoryBucket()
		bucket.Put(books.SnapshotKey("Tiny_Tales"), []byte(`{"book_title":"Stale","chapters":[]}`))
		snaps := snapshot.NewStore(r.log, bucket, "")
		svc := newBookViewService(r, snaps, SnapshotRewrite)

		res, err := svc.Save(dbctx.Background(), "Tiny_Tales", flatBook())
		require.NoError(t, err)
		assert.Empty(t, res.Failures)

		view, _, err := snaps.Load(ctx, "Tiny_Tales")
		require.NoError(t, err)
		assert.Equal(t, flatBook(), view)
	})

	t.Run("invalidate", func(t *testing.T) {
		r := newTestRepos(t)
		bucket := gcptest.NewMemoryBucket()
		bucket.Put(books.SnapshotKey("Tiny_Tales"), []byte(`{"book_title":"Stale","chapters":[]}`))
		snaps := snapshot.NewStore(r.log, bucket, "")
		svc := newBookViewService(r, snaps, SnapshotInvalidate)

		_, err := svc.Save(dbctx.Background(), "Tiny_Tales", flatBook())
		require.NoError(t, err)
		_, ok := bucket.Get(books.SnapshotKey("Tiny_Tales"))
		assert.False(t, ok)

		_, src, err := svc.Resolve(dbctx.Background(), "Tiny_Tales")
		require.NoError(t, err)
		assert.Equal(t, ViewSourceEntities, src)
	})

	t.Run("ignore", func(t *testing.T) {
		r := newTestRepos(t)
		bucket := gcptest.NewMemoryBucket()
		bucket.Put(books.SnapshotKey("Tiny_Tales"), []byte(`{"book_title":"Stale","chapters":[]}`))
		svc := newBookViewService(r, snapshot.NewStore(r.log, bucket, ""), SnapshotIgnore)

		_, err := svc.Save(dbctx.Background(), "Tiny_Tales", flatBook())
		require.NoError(t, err)
		out, src, err := svc.Resolve(dbctx.Background(), "Tiny_Tales")
		require.NoError(t, err)
		assert.Equal(t, ViewSourceSnapshot, src)
		assert.Equal(t, "Stale", out.BookTitle)
	})

	t.Run("write failure is reported", func(t *testing.T) {
		r := newTestRepos(t)
		bucket := gcptest.NewMemoryBucket()
		bucket.Fail = func(op, key string) error {
			if op == "upload" {
				return errors.New("bucket read-only")
			}
			return nil
		}
		svc := newBookViewService(r, snapshot.NewStore(r.log, bucket, ""), SnapshotRewrite)

		res, err := svc.Save(dbctx.Background(), "Tiny_Tales", flatBook())
		require.NoError(t, err)
		assert.True(t, res.Success)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, FailureScopeSnapshot, res.Failures[0].Scope)
	})
}

func TestParseSnapshotSavePolicy(t *testing.T) {
	p, err := ParseSnapshotSavePolicy("")
	require.NoError(t, err)
	assert.Equal(t, SnapshotRewrite, p)
	p, err = ParseSnapshotSavePolicy(" Invalidate ")
	require.NoError(t, err)
	assert.Equal(t, SnapshotInvalidate, p)
	_, err = ParseSnapshotSavePolicy("merge")
	assert.Error(t, err)
}
