package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-admin/internal/http/response"
	"github.com/yungbote/storybook-admin/internal/platform/dbctx"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/services"
)

type PipelineHandler struct {
	log     *logger.Logger
	trigger services.TriggerService
	status  services.PipelineStatusService
}

func NewPipelineHandler(log *logger.Logger, trigger services.TriggerService, status services.PipelineStatusService) *PipelineHandler {
	return &PipelineHandler{
		log:     log.With("handler", "PipelineHandler"),
		trigger: trigger,
		status:  status,
	}
}

type bookRef struct {
	BookSafeTitle string `json:"bookSafeTitle"`
}

// POST /api/pipeline/trigger
func (h *PipelineHandler) Trigger(c *gin.Context) {
	var req services.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.trigger.Trigger(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err, "trigger_failed")
		return
	}
	response.RespondOK(c, res)
}

// GET /api/pipeline/status?bookSafeTitle=
func (h *PipelineHandler) GetStatus(c *gin.Context) {
	st, err := h.status.GetStatus(dbctx.Context{Ctx: c.Request.Context()}, c.Query("bookSafeTitle"))
	if err != nil {
		response.RespondAPIError(c, err, "status_failed")
		return
	}
	response.RespondOK(c, st)
}

// POST /api/pipeline/stop
func (h *PipelineHandler) Stop(c *gin.Context) {
	var req bookRef
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.status.Stop(dbctx.Context{Ctx: c.Request.Context()}, req.BookSafeTitle)
	if err != nil {
		response.RespondAPIError(c, err, "stop_failed")
		return
	}
	response.RespondOK(c, res)
}

// POST /api/pipeline/remove
func (h *PipelineHandler) RemoveHistory(c *gin.Context) {
	var req bookRef
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.status.RemoveHistory(dbctx.Context{Ctx: c.Request.Context()}, req.BookSafeTitle)
	if err != nil {
		response.RespondAPIError(c, err, "remove_history_failed")
		return
	}
	response.RespondOK(c, res)
}
