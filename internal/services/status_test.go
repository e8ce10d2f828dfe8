package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/storybook-admin/internal/data/repos/testutil"
	"github.com/yungbote/storybook-admin/internal/platform/apierr"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
)

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name        string
		book        string
		steps       []string
		wantOverall string
		wantActive  bool
	}{
		{"book processing", "processing", nil, OverallProcessing, true},
		{"book in_progress any case", "IN_PROGRESS", []string{"completed"}, OverallProcessing, true},
		{"book completed wins over steps", "completed", []string{"failed", "in_progress"}, OverallCompleted, false},
		{"book failed wins over steps", "Failed", []string{"completed"}, OverallFailed, false},
		{"no status all completed", "", []string{"completed", "completed"}, OverallCompleted, false},
		{"no status completed and failed", "", []string{"completed", "failed"}, OverallFailed, false},
		{"no status no steps", "", nil, OverallPending, false},
		{"active step beats failed", "", []string{"failed", "Processing"}, OverallProcessing, true},
		{"mixed other statuses", "", []string{"completed", "pending"}, OverallProcessing, true},
		{"cancelled book falls through", "cancelled", []string{"cancelled"}, OverallProcessing, true},
		{"unknown book status no steps", "queued", nil, OverallPending, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(tc.book, tc.steps)
			assert.Equal(t, tc.wantOverall, got.OverallStatus)
			assert.Equal(t, tc.wantActive, got.IsProcessing)
		})
	}
}

func TestPipelineStatusUnknownBook(t *testing.T) {
	r := newTestRepos(t)
	svc := NewPipelineStatusService(r.db, r.log, r.books, r.steps)

	st, err := svc.GetStatus(dbctx.Background(), "Nope")
	require.NoError(t, err)
	assert.Equal(t, OverallUnknown, st.OverallStatus)
	assert.False(t, st.IsProcessing)
	assert.Nil(t, st.BookStatus)
	assert.Empty(t, st.Steps)
	assert.Equal(t, "book not found", st.Message)

	_, err = svc.Stop(dbctx.Background(), "Nope")
	status, code := apierr.StatusOf(err, "")
	assert.Equal(t, 404, status)
	assert.Equal(t, "book_not_found", code)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestPipelineStopScenario(t *testing.T) {
	r := newTestRepos(t)
	dbc := dbctx.Background()
	book := testutil.SeedBook(t, r.db, "Harry Potter", "Harry_Potter")
	testutil.SeedStep(t, r.db, book.ID, "content", "in_progress")

	svc := NewPipelineStatusService(r.db, r.log, r.books, r.steps)

	st, err := svc.GetStatus(dbc, "Harry_Potter")
	require.NoError(t, err)
	assert.Equal(t, OverallProcessing, st.OverallStatus)
	assert.True(t, st.IsProcessing)
	require.Len(t, st.Steps, 1)

	stop, err := svc.Stop(dbc, "Harry_Potter")
	require.NoError(t, err)
	assert.True(t, stop.Success)
	assert.EqualValues(t, 1, stop.CancelledSteps)

	// The book is cancelled and its only step is cancelled, which none of the
	// book-level or step-level rules recognise, so the optimistic default applies.
	st, err = svc.GetStatus(dbc, "Harry_Potter")
	require.NoError(t, err)
	require.NotNil(t, st.BookStatus)
	assert.Equal(t, "cancelled", *st.BookStatus)
	assert.Equal(t, OverallProcessing, st.OverallStatus)
	assert.True(t, st.IsProcessing)
	assert.Equal(t, "cancelled", st.Steps[0].Status)
	assert.Equal(t, CancelledStepMessage, st.Steps[0].ErrorMessage)

	again, err := svc.Stop(dbc, "Harry_Potter")
	require.NoError(t, err)
	assert.EqualValues(t, 0, again.CancelledSteps)
}

func TestPipelineStopLeavesTerminalSteps(t *testing.T) {
	r := newTestRepos(t)
	dbc := dbctx.Background()
	book := testutil.SeedBook(t, r.db, "Tales", "Tales")
	testutil.SeedStep(t, r.db, book.ID, "a", "completed")
	testutil.SeedStep(t, r.db, book.ID, "b", "failed")
	testutil.SeedStep(t, r.db, book.ID, "c", "Processing")
	testutil.SeedStep(t, r.db, book.ID, "d", "in_progress")

	svc := NewPipelineStatusService(r.db, r.log, r.books, r.steps)
	stop, err := svc.Stop(dbc, "Tales")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stop.CancelledSteps)

	steps, err := r.steps.ListByBook(dbc, book.ID)
	require.NoError(t, err)
	byName := map[string]string{}
	for _, s := range steps {
		byName[s.StepName] = s.Status
	}
	assert.Equal(t, map[string]string{"a": "completed", "b": "failed", "c": "cancelled", "d": "cancelled"}, byName)
}

func TestPipelineStopCancelsEveryStepReportedActive(t *testing.T) {
	r := newTestRepos(t)
	dbc := dbctx.Background()
	book := testutil.SeedBook(t, r.db, "Tales", "Tales")
	testutil.SeedStep(t, r.db, book.ID, "content", " In_Progress ")

	svc := NewPipelineStatusService(r.db, r.log, r.books, r.steps)
	st, err := svc.GetStatus(dbc, "Tales")
	require.NoError(t, err)
	assert.Equal(t, OverallProcessing, st.OverallStatus)
	assert.True(t, st.IsProcessing)

	stop, err := svc.Stop(dbc, "Tales")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stop.CancelledSteps)

	steps, err := r.steps.ListByBook(dbc, book.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "cancelled", steps[0].Status)
}

func TestPipelineRemoveHistoryKeepsContent(t *testing.T) {
	r := newTestRepos(t)
	dbc := dbctx.Background()
	book := testutil.SeedBook(t, r.db, "Tales", "Tales")
	ch := testutil.SeedChapter(t, r.db, book.ID, "One", 0)
	testutil.SeedChapterPage(t, r.db, ch.ID, 1, "hello")
	testutil.SeedStep(t, r.db, book.ID, "a", "completed")
	testutil.SeedStep(t, r.db, book.ID, "b", "failed")

	svc := NewPipelineStatusService(r.db, r.log, r.books, r.steps)
	res, err := svc.RemoveHistory(dbc, "Tales")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.EqualValues(t, 2, res.DeletedSteps)

	st, err := svc.GetStatus(dbc, "Tales")
	require.NoError(t, err)
	assert.Equal(t, OverallPending, st.OverallStatus)

	pages, err := r.pages.ListByChapter(dbc, ch.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}
