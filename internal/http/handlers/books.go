package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-admin/internal/domain/books"
	"github.com/yungbote/storybook-admin/internal/http/response"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/services"
)

const headerBookSource = "X-Book-Source"

type BookHandler struct {
	log   *logger.Logger
	admin services.BookAdminService
	views services.BookViewService
}

func NewBookHandler(log *logger.Logger, admin services.BookAdminService, views services.BookViewService) *BookHandler {
	return &BookHandler{
		log:   log.With("handler", "BookHandler"),
		admin: admin,
		views: views,
	}
}

// GET /api/books
func (h *BookHandler) ListBooks(c *gin.Context) {
	rows, err := h.admin.List(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		response.RespondAPIError(c, err, "books_list_failed")
		return
	}
	response.RespondOK(c, gin.H{"books": rows})
}

// POST /api/books
func (h *BookHandler) CreateBook(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	book, err := h.admin.Create(dbctx.Context{Ctx: c.Request.Context()}, req.Title)
	if err != nil {
		response.RespondAPIError(c, err, "book_create_failed")
		return
	}
	response.RespondCreated(c, gin.H{"book": book})
}

// GET /api/books/:safeTitle
func (h *BookHandler) GetBook(c *gin.Context) {
	view, source, err := h.views.Resolve(dbctx.Context{Ctx: c.Request.Context()}, c.Param("safeTitle"))
	if err != nil {
		response.RespondAPIError(c, err, "book_resolve_failed")
		return
	}
	c.Header(headerBookSource, string(source))
	response.RespondOK(c, view)
}

// PUT /api/books/:safeTitle
func (h *BookHandler) SaveBook(c *gin.Context) {
	var view books.BookView
	if err := c.ShouldBindJSON(&view); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.views.Save(dbctx.Context{Ctx: c.Request.Context()}, c.Param("safeTitle"), &view)
	if err != nil {
		response.RespondAPIError(c, err, "book_save_failed")
		return
	}
	if len(res.Failures) > 0 {
		h.log.Warn("Book saved with skipped rows", "book_safe_title", res.BookSafeTitle, "failures", len(res.Failures))
	}
	response.RespondOK(c, res)
}

// DELETE /api/books/:safeTitle
func (h *BookHandler) DeleteBook(c *gin.Context) {
	res, err := h.admin.Delete(dbctx.Context{Ctx: c.Request.Context()}, c.Param("safeTitle"))
	if err != nil {
		response.RespondAPIError(c, err, "book_delete_failed")
		return
	}
	response.RespondOK(c, res)
}

// POST /api/books/:safeTitle/images
func (h *BookHandler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxImageBytes+(1<<20))
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "image_too_large", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "upload_read_failed", err)
		return
	}
	defer f.Close()

	img, err := h.admin.UploadImage(c.Request.Context(), c.Param("safeTitle"), fh.Filename, f)
	if err != nil {
		response.RespondAPIError(c, err, "image_upload_failed")
		return
	}
	response.RespondOK(c, img)
}
