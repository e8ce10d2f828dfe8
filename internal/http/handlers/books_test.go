package handlers

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/storybook-admin/internal/data/repos/testutil"
	"github.com/yungbote/storybook-admin/internal/domain/books"
	"github.com/yungbote/storybook-admin/internal/services"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) upload(t *testing.T, path, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndListBooks(t *testing.T) {
	env := newTestEnv(t, false, false)

	rec := env.do(t, http.MethodPost, "/api/books", map[string]string{"title": "The Wizard of Oz"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		Book struct {
			SafeTitle string `json:"safe_title"`
		} `json:"book"`
	}](t, rec)
	require.Equal(t, books.SafeTitle("The Wizard of Oz"), created.Book.SafeTitle)

	rec = env.do(t, http.MethodPost, "/api/books", map[string]string{"title": "The Wizard of Oz"})
	requireErrorCode(t, rec, http.StatusConflict, "book_exists")

	rec = env.do(t, http.MethodGet, "/api/books", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Books []services.BookSummary `json:"books"`
	}](t, rec)
	require.Len(t, list.Books, 1)
	require.Equal(t, "pending", list.Books[0].OverallStatus)
}

func TestSaveThenGetSubStories(t *testing.T) {
	env := newTestEnv(t, false, false)

	payload := `{
		"book_title": "Oz",
		"chapters": [{
			"title": "Cyclone",
			"narration_version": "Once upon a time",
			"reading_version": {"sub_stories": [
				{"title": "The House", "content": "", "sections": [
					{"page_number": 1, "dialogue": "Toto!", "illustration_prompt": "a dog", "illustration_image": "books/Oz/images/1.png"}
				]}
			]}
		}]
	}`
	rec := env.do(t, http.MethodPut, "/api/books/Oz", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[services.SaveResult](t, rec)
	require.True(t, saved.Success)
	require.Empty(t, saved.Failures)

	rec = env.do(t, http.MethodGet, "/api/books/Oz", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, string(services.ViewSourceSnapshot), rec.Header().Get(headerBookSource))

	view := decode[books.BookView](t, rec)
	require.Len(t, view.Chapters, 1)
	grouped, ok := view.Chapters[0].ReadingVersion.(books.GroupedReading)
	require.True(t, ok, "expected grouped reading, got %T", view.Chapters[0].ReadingVersion)
	require.Len(t, grouped.SubStories, 1)
	require.Equal(t, "The House", grouped.SubStories[0].Title)
	require.Equal(t, "", grouped.SubStories[0].Content)
	require.Equal(t, "Toto!", grouped.SubStories[0].Sections[0].Dialogue)
	require.Equal(t, "books/Oz/images/1.png", grouped.SubStories[0].Sections[0].IllustrationImage)
}

func TestGetUnknownBook(t *testing.T) {
	env := newTestEnv(t, false, false)
	rec := env.do(t, http.MethodGet, "/api/books/Nope", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "book_not_found")
}

func TestDeleteBookCascadesAndCleansBlobs(t *testing.T) {
	env := newTestEnv(t, false, true)
	book := testutil.SeedBook(t, env.db, "Oz", "Oz")
	ch := testutil.SeedChapter(t, env.db, book.ID, "Cyclone", 0)
	testutil.SeedChapterPage(t, env.db, ch.ID, 1, "Toto!")
	testutil.SeedStep(t, env.db, book.ID, "content", "completed")
	env.bucket.Put("books/Oz/images/1_a.png", []byte("x"))
	env.bucket.Put("books/Oz/chapters_final.json", []byte("{}"))
	env.bucket.Put("books/Ozma/chapters_final.json", []byte("{}"))

	rec := env.do(t, http.MethodDelete, "/api/books/Oz", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[services.DeleteBookResult](t, rec)
	require.True(t, res.Success)
	require.EqualValues(t, 1, res.Deleted.Books)
	require.EqualValues(t, 1, res.Deleted.Pages)
	require.EqualValues(t, 1, res.Deleted.Steps)
	require.Empty(t, res.BlobCleanupError)

	_, ok := env.bucket.Get("books/Oz/images/1_a.png")
	require.False(t, ok)
	_, ok = env.bucket.Get("books/Ozma/chapters_final.json")
	require.True(t, ok)

	rec = env.do(t, http.MethodDelete, "/api/books/Oz", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "book_not_found")
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t, false, true)

	rec := env.upload(t, "/api/books/Oz/images", "dorothy & toto.png", pngBytes(t, 4, 3))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	img := decode[services.UploadedImage](t, rec)
	require.True(t, strings.HasPrefix(img.Key, "books/Oz/images/"), img.Key)
	require.True(t, strings.HasSuffix(img.Key, "_dorothy___toto.png"), img.Key)
	require.Equal(t, "png", img.Format)
	require.Equal(t, 4, img.Width)
	require.Equal(t, 3, img.Height)
	require.Equal(t, "https://cdn.test/"+img.Key, img.URL)

	_, ok := env.bucket.Get(img.Key)
	require.True(t, ok)
}

func TestUploadImageRejects(t *testing.T) {
	t.Run("not an image", func(t *testing.T) {
		env := newTestEnv(t, false, true)
		rec := env.upload(t, "/api/books/Oz/images", "notes.txt", []byte("hello"))
		requireErrorCode(t, rec, http.StatusBadRequest, "invalid_image")
	})
	t.Run("storage disabled", func(t *testing.T) {
		env := newTestEnv(t, false, false)
		rec := env.upload(t, "/api/books/Oz/images", "a.png", pngBytes(t, 1, 1))
		requireErrorCode(t, rec, http.StatusServiceUnavailable, "storage_disabled")
	})
	t.Run("missing file field", func(t *testing.T) {
		env := newTestEnv(t, false, true)
		rec := env.do(t, http.MethodPost, "/api/books/Oz/images", map[string]string{})
		requireErrorCode(t, rec, http.StatusBadRequest, "missing_file")
	})
}
