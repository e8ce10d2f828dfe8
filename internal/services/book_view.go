package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/storybook-admin/internal/data/repos"
	types "github.com/yungbote/storybook-admin/internal/domain"
	"github.com/yungbote/storybook-admin/internal/domain/books"
	"github.com/yungbote/storybook-admin/internal/observability"
	"github.com/yungbote/storybook-admin/internal/platform/apierr"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/snapshot"
)

// SnapshotSavePolicy decides what happens to the snapshot after an edit-save.
type SnapshotSavePolicy string

const (
	// SnapshotRewrite re-resolves the saved book from the entity graph and writes it as
	// the snapshot.
	SnapshotRewrite SnapshotSavePolicy = "rewrite"
	// SnapshotInvalidate deletes the snapshot; the entity graph is read from then on.
	SnapshotInvalidate SnapshotSavePolicy = "invalidate"
	// SnapshotIgnore leaves the snapshot alone; it keeps shadowing the saved edits.
	SnapshotIgnore SnapshotSavePolicy = "ignore"
)

func ParseSnapshotSavePolicy(s string) (SnapshotSavePolicy, error) {
	switch p := SnapshotSavePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SnapshotRewrite, nil
	case SnapshotRewrite, SnapshotInvalidate, SnapshotIgnore:
		return p, nil
	default:
		return "", fmt.Errorf("invalid SNAPSHOT_SAVE_POLICY %q (want rewrite|invalidate|ignore)", s)
	}
}

type ViewSource string

const (
	ViewSourceSnapshot ViewSource = "snapshot"
	ViewSourceEntities ViewSource = "entities"
)

const (
	FailureScopeChapter  = "chapter"
	FailureScopeSubStory = "sub_story"
	FailureScopePage     = "page"
	FailureScopeSnapshot = "snapshot"
)

// SaveFailure is one row the save skipped. The rest of the book was still written.
type SaveFailure struct {
	Scope          string `json:"scope"`
	Chapter        string `json:"chapter,omitempty"`
	SubStoryNumber int    `json:"sub_story_number,omitempty"`
	PageNumber     int    `json:"page_number,omitempty"`
	Error          string `json:"error"`
}

type SaveResult struct {
	Success        bool               `json:"success"`
	BookSafeTitle  string             `json:"bookSafeTitle"`
	Chapters       int                `json:"chapters"`
	SubStories     int                `json:"subStories"`
	Pages          int                `json:"pages"`
	SnapshotPolicy SnapshotSavePolicy `json:"snapshotPolicy"`
	Failures       []SaveFailure      `json:"failures"`
}

type BookViewService interface {
	// Resolve returns the snapshot when one exists, else the entity graph.
	Resolve(dbc dbctx.Context, safeTitle string) (*books.BookView, ViewSource, error)
	// ResolveFromEntities skips the snapshot.
	ResolveFromEntities(dbc dbctx.Context, safeTitle string) (*books.BookView, error)
	// Save upserts the structure into the entity graph. Row failures below the book
	// are collected in SaveResult.Failures; only a failed book upsert is an error.
	Save(dbc dbctx.Context, safeTitle string, view *books.BookView) (*SaveResult, error)
}

type bookViewService struct {
	log       *logger.Logger
	books     repos.BookRepo
	chapters  repos.ChapterRepo
	subs      repos.SubStoryRepo
	pages     repos.PageRepo
	snapshots snapshot.Store
	policy    SnapshotSavePolicy
}

func NewBookViewService(
	baseLog *logger.Logger,
	bookRepo repos.BookRepo,
	chapterRepo repos.ChapterRepo,
	subStoryRepo repos.SubStoryRepo,
	pageRepo repos.PageRepo,
	snapshots snapshot.Store,
	policy SnapshotSavePolicy,
) BookViewService {
	if policy == "" {
		policy = SnapshotRewrite
	}
	return &bookViewService{
		log:       baseLog.With("service", "BookViewService"),
		books:     bookRepo,
		chapters:  chapterRepo,
		subs:      subStoryRepo,
		pages:     pageRepo,
		snapshots: snapshots,
		policy:    policy,
	}
}

func (s *bookViewService) Resolve(dbc dbctx.Context, safeTitle string) (*books.BookView, ViewSource, error) {
	safeTitle = strings.TrimSpace(safeTitle)
	if safeTitle == "" {
		return nil, "", apierr.BadRequest("missing_book_safe_title", ErrMissingSafeTitle)
	}
	ctx, span := observability.StartSpan(dbc.Ctx, "book.resolve", attribute.String("book_safe_title", safeTitle))
	defer span.End()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	if s.snapshots != nil {
		view, src, err := s.snapshots.Load(dbc.Ctx, safeTitle)
		switch {
		case err == nil:
			s.log.Debug("Resolved book from snapshot", "book_safe_title", safeTitle, "source", src)
			observability.Current().IncBookResolve(string(ViewSourceSnapshot))
			return view, ViewSourceSnapshot, nil
		case errors.Is(err, snapshot.ErrNotFound):
		default:
			s.log.Error("Load snapshot failed", "book_safe_title", safeTitle, "source", src, "op", "resolve", "error", err)
			span.RecordError(err)
			return nil, "", apierr.Upstream("snapshot_unreadable", err)
		}
	}
	view, err := s.ResolveFromEntities(dbc, safeTitle)
	if err != nil {
		span.RecordError(err)
		return nil, "", err
	}
	observability.Current().IncBookResolve(string(ViewSourceEntities))
	return view, ViewSourceEntities, nil
}

func (s *bookViewService) ResolveFromEntities(dbc dbctx.Context, safeTitle string) (*books.BookView, error) {
	book, err := s.books.GetBySafeTitle(dbc, safeTitle)
	if err != nil {
		s.log.Error("Load book failed", "book_safe_title", safeTitle, "op", "resolve", "error", err)
		return nil, apierr.Upstream("book_lookup_failed", err)
	}
	if book == nil {
		return nil, apierr.NotFound("book_not_found", ErrBookNotFound)
	}

	chapters, err := s.chapters.ListByBook(dbc, book.ID)
	if err != nil {
		s.log.Error("List chapters failed", "book_id", book.ID, "error", err)
		return nil, apierr.Upstream("chapters_lookup_failed", err)
	}

	view := &books.BookView{
		BookTitle:    book.Title,
		ChapterCount: book.ChapterCount,
		Chapters:     make([]books.ChapterView, 0, len(chapters)),
	}
	if view.ChapterCount < len(chapters) {
		view.ChapterCount = len(chapters)
	}
	for _, ch := range chapters {
		rv, err := s.readingVersion(dbc, ch)
		if err != nil {
			s.log.Error("Load chapter content failed", "book_id", book.ID, "chapter_id", ch.ID, "error", err)
			return nil, apierr.Upstream("chapter_content_lookup_failed", err)
		}
		view.Chapters = append(view.Chapters, books.ChapterView{
			Title:            ch.Title,
			NarrationVersion: ch.NarrationVersion,
			ReadingVersion:   rv,
		})
	}
	return view, nil
}

// readingVersion picks the grouped schema when the chapter has sub-story rows and
// the flat schema otherwise.
func (s *bookViewService) readingVersion(dbc dbctx.Context, ch *types.Chapter) (books.ReadingVersion, error) {
	subs, err := s.subs.ListByChapter(dbc, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("list sub-stories: %w", err)
	}
	if len(subs) == 0 {
		pages, err := s.pages.ListByChapter(dbc, ch.ID)
		if err != nil {
			return nil, fmt.Errorf("list chapter pages: %w", err)
		}
		return books.FlatReading{Sections: pageViews(pages)}, nil
	}

	grouped := books.GroupedReading{SubStories: make([]books.SubStoryView, 0, len(subs))}
	for _, ss := range subs {
		pages, err := s.pages.ListBySubStory(dbc, ss.ID)
		if err != nil {
			return nil, fmt.Errorf("list pages of sub-story %d: %w", ss.SubStoryNumber, err)
		}
		sections := pageViews(pages)
		if len(pages) == 0 {
			sections = s.inlineSections(ss)
		}
		grouped.SubStories = append(grouped.SubStories, books.SubStoryView{
			SubStoryNumber: ss.SubStoryNumber,
			Title:          ss.Title,
			Content:        ss.Content,
			Sections:       sections,
		})
	}
	return grouped, nil
}

// inlineSections reads pages the worker wrote straight into the sub-story row.
func (s *bookViewService) inlineSections(ss *types.SubStory) []books.PageView {
	out := []books.PageView{}
	if len(ss.Sections) == 0 {
		return out
	}
	if err := json.Unmarshal(ss.Sections, &out); err != nil {
		s.log.Warn("Inline sections unreadable", "sub_story_id", ss.ID, "error", err)
		return []books.PageView{}
	}
	if out == nil {
		out = []books.PageView{}
	}
	return out
}

func pageViews(pages []*types.Page) []books.PageView {
	out := make([]books.PageView, 0, len(pages))
	for _, p := range pages {
		out = append(out, books.PageView{
			PageNumber:         p.PageNumber,
			IllustrationPrompt: p.IllustrationPrompt,
			Dialogue:           p.Dialogue,
			IllustrationImage:  p.IllustrationImage(),
		})
	}
	return out
}

func (s *bookViewService) Save(dbc dbctx.Context, safeTitle string, view *books.BookView) (*SaveResult, error) {
	safeTitle = strings.TrimSpace(safeTitle)
	if safeTitle == "" {
		return nil, apierr.BadRequest("missing_book_safe_title", ErrMissingSafeTitle)
	}
	if view == nil {
		return nil, apierr.BadRequest("invalid_body", fmt.Errorf("book structure is required"))
	}
	ctx, span := observability.StartSpan(dbc.Ctx, "book.save",
		attribute.String("book_safe_title", safeTitle),
		attribute.Int("chapters", len(view.Chapters)),
	)
	defer span.End()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	title := strings.TrimSpace(view.BookTitle)
	if title == "" {
		existing, err := s.books.GetBySafeTitle(dbc, safeTitle)
		if err != nil {
			s.log.Error("Load book failed", "book_safe_title", safeTitle, "op", "save", "error", err)
			return nil, apierr.Upstream("book_lookup_failed", err)
		}
		if existing != nil {
			title = existing.Title
		} else {
			title = books.DisplayTitleFromSlug(safeTitle)
		}
	}
	chapterCount := view.ChapterCount
	if chapterCount < len(view.Chapters) {
		chapterCount = len(view.Chapters)
	}
	book, err := s.books.UpsertBySafeTitle(dbc, &types.Book{
		Title:        title,
		SafeTitle:    safeTitle,
		ChapterCount: chapterCount,
	})
	if err != nil {
		s.log.Error("Upsert book failed", "book_safe_title", safeTitle, "op", "save", "error", err)
		return nil, apierr.Upstream("book_upsert_failed", err)
	}

	res := &SaveResult{
		BookSafeTitle:  safeTitle,
		SnapshotPolicy: s.policy,
		Failures:       []SaveFailure{},
	}
	for _, cv := range view.Chapters {
		s.saveChapter(dbc, book.ID, cv, res)
	}
	s.applySnapshotPolicy(dbc, safeTitle, res)
	for scope, n := range countByScope(res.Failures) {
		observability.Current().AddSaveFailures(scope, n)
	}

	res.Success = true
	s.log.Info("Book saved",
		"book_id", book.ID,
		"book_safe_title", safeTitle,
		"chapters", res.Chapters,
		"sub_stories", res.SubStories,
		"pages", res.Pages,
		"failures", len(res.Failures),
	)
	return res, nil
}

func (s *bookViewService) saveChapter(dbc dbctx.Context, bookID uuid.UUID, cv books.ChapterView, res *SaveResult) {
	ch, err := s.chapters.UpsertByBookAndTitle(dbc, &types.Chapter{
		BookID:           bookID,
		Title:            cv.Title,
		NarrationVersion: cv.NarrationVersion,
	})
	if err != nil {
		s.log.Warn("Chapter upsert failed; skipping its content", "book_id", bookID, "chapter", cv.Title, "error", err)
		res.Failures = append(res.Failures, SaveFailure{Scope: FailureScopeChapter, Chapter: cv.Title, Error: err.Error()})
		return
	}
	res.Chapters++

	switch rv := cv.ReadingVersion.(type) {
	case books.GroupedReading:
		s.saveSubStories(dbc, ch, rv.SubStories, res)
	case *books.GroupedReading:
		if rv != nil {
			s.saveSubStories(dbc, ch, rv.SubStories, res)
		}
	case books.FlatReading:
		s.savePages(dbc, ch.Title, 0, books.PageOwnerChapter, ch.ID, rv.Sections, res)
	case *books.FlatReading:
		if rv != nil {
			s.savePages(dbc, ch.Title, 0, books.PageOwnerChapter, ch.ID, rv.Sections, res)
		}
	}
}

func (s *bookViewService) saveSubStories(dbc dbctx.Context, ch *types.Chapter, subs []books.SubStoryView, res *SaveResult) {
	requested := make([]int, len(subs))
	for i, sv := range subs {
		requested[i] = sv.SubStoryNumber
	}
	numbers, dup := assignNumbers(requested)
	for i, sv := range subs {
		number := numbers[i]
		if dup[i] {
			s.log.Warn("Duplicate sub-story number in payload; skipping", "chapter_id", ch.ID, "sub_story_number", number)
			res.Failures = append(res.Failures, SaveFailure{
				Scope:          FailureScopeSubStory,
				Chapter:        ch.Title,
				SubStoryNumber: number,
				Error:          ErrDuplicateSubStoryNumber.Error(),
			})
			continue
		}
		ss, err := s.subs.UpsertByChapterAndNumber(dbc, &types.SubStory{
			ChapterID:      ch.ID,
			SubStoryNumber: number,
			Title:          sv.Title,
			Content:        sv.Content,
		})
		if err != nil {
			s.log.Warn("Sub-story upsert failed; dropping its pages", "chapter_id", ch.ID, "sub_story_number", number, "error", err)
			res.Failures = append(res.Failures, SaveFailure{
				Scope:          FailureScopeSubStory,
				Chapter:        ch.Title,
				SubStoryNumber: number,
				Error:          err.Error(),
			})
			continue
		}
		res.SubStories++
		s.savePages(dbc, ch.Title, number, books.PageOwnerSubStory, ss.ID, sv.Sections, res)
	}
}

func (s *bookViewService) savePages(
	dbc dbctx.Context,
	chapterTitle string,
	subStoryNumber int,
	kind books.PageOwnerKind,
	ownerID uuid.UUID,
	pages []books.PageView,
	res *SaveResult,
) {
	requested := make([]int, len(pages))
	for i, pv := range pages {
		requested[i] = pv.PageNumber
	}
	numbers, dup := assignNumbers(requested)
	for i, pv := range pages {
		number := numbers[i]
		if dup[i] {
			s.log.Warn("Duplicate page number in payload; skipping", "owner_id", ownerID, "owner_kind", kind, "page_number", number)
			res.Failures = append(res.Failures, SaveFailure{
				Scope:          FailureScopePage,
				Chapter:        chapterTitle,
				SubStoryNumber: subStoryNumber,
				PageNumber:     number,
				Error:          ErrDuplicatePageNumber.Error(),
			})
			continue
		}
		page := &types.Page{
			PageNumber:         number,
			Dialogue:           pv.Dialogue,
			IllustrationPrompt: pv.IllustrationPrompt,
		}
		owner := ownerID
		if kind == books.PageOwnerSubStory {
			page.SubStoryID = &owner
		} else {
			page.ChapterID = &owner
		}
		page.SetIllustrationImage(pv.IllustrationImage)

		if _, err := s.pages.UpsertByOwner(dbc, page); err != nil {
			s.log.Warn("Page upsert failed; continuing", "owner_id", ownerID, "owner_kind", kind, "page_number", number, "error", err)
			res.Failures = append(res.Failures, SaveFailure{
				Scope:          FailureScopePage,
				Chapter:        chapterTitle,
				SubStoryNumber: subStoryNumber,
				PageNumber:     number,
				Error:          err.Error(),
			})
			continue
		}
		res.Pages++
	}
}

// assignNumbers resolves the natural-key number of each row in one save scope.
// Explicit numbers (>= 1) are kept, and a repeat of one is flagged in dup. Rows
// without a number take their 1-based position, or the next number above it that
// no other row in the scope uses.
func assignNumbers(requested []int) (numbers []int, dup []bool) {
	numbers = make([]int, len(requested))
	dup = make([]bool, len(requested))
	used := make(map[int]bool, len(requested))
	for i, n := range requested {
		if n < 1 {
			continue
		}
		numbers[i] = n
		dup[i] = used[n]
		used[n] = true
	}
	for i, n := range requested {
		if n >= 1 {
			continue
		}
		candidate := i + 1
		for used[candidate] {
			candidate++
		}
		numbers[i] = candidate
		used[candidate] = true
	}
	return numbers, dup
}

func (s *bookViewService) applySnapshotPolicy(dbc dbctx.Context, safeTitle string, res *SaveResult) {
	if s.snapshots == nil || s.policy == SnapshotIgnore {
		return
	}
	var err error
	switch s.policy {
	case SnapshotInvalidate:
		err = s.snapshots.Delete(dbc.Ctx, safeTitle)
	case SnapshotRewrite:
		var view *books.BookView
		view, err = s.ResolveFromEntities(dbc, safeTitle)
		if err == nil {
			err = s.snapshots.Write(dbc.Ctx, safeTitle, view)
		}
	}
	if err != nil {
		s.log.Warn("Snapshot update after save failed", "book_safe_title", safeTitle, "policy", s.policy, "error", err)
		res.Failures = append(res.Failures, SaveFailure{Scope: FailureScopeSnapshot, Error: err.Error()})
	}
}

func countByScope(failures []SaveFailure) map[string]int {
	out := map[string]int{}
	for _, f := range failures {
		out[f.Scope]++
	}
	return out
}
