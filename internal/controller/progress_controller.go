package controller

import (
	"strconv"

	"video_progress_backend/internal/config"
	"video_progress_backend/internal/service"
	"video_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
	Config          *config.Config
}

func NewProgressController(progressService *service.ProgressService, cfg *config.Config) *ProgressController {
	return &ProgressController{ProgressService: progressService, Config: cfg}
}

// GetProgress godoc
// @Summary 查询课程学习进度
// @Description 返回最新尝试的有效时长、覆盖度、校验点及最近会话
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param lessonId path int true "课程ID"
// @Success 200 {object} util.Response{data=service.ProgressReport}
// @Failure 404 {object} util.Response "课程或尝试不存在"
// @Router /api/progress/lessons/{lessonId} [get]
func (c *ProgressController) GetProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	lessonID, err := strconv.ParseUint(ctx.Param("lessonId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid lesson id")
		return
	}

	report, err := c.ProgressService.GetProgress(ctx.Request.Context(), user.UserID, uint(lessonID))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, report)
}

// GetUnassignedHistory godoc
// @Summary 查询未指派的历史观看
// @Description 列出窗口期内未归属任何指派尝试的会话及其观看摘要
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param windowDays query int false "回看窗口（天）"
// @Success 200 {object} util.Response{data=[]service.UnassignedHistoryEntry}
// @Router /api/progress/unassigned [get]
func (c *ProgressController) GetUnassignedHistory(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	windowDays := c.Config.Progress.CreditWindowDays
	if raw := ctx.Query("windowDays"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			util.BadRequest(ctx, "invalid windowDays")
			return
		}
		windowDays = parsed
	}

	entries, err := c.ProgressService.GetUnassignedHistory(user.UserID, windowDays)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, entries)
}
