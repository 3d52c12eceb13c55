package controller

import (
	"strconv"

	"video_progress_backend/internal/config"
	"video_progress_backend/internal/service"
	"video_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
	Config         *config.Config
}

func NewAttemptController(attemptService *service.AttemptService, cfg *config.Config) *AttemptController {
	return &AttemptController{AttemptService: attemptService, Config: cfg}
}

type GetOrCreateAttemptRequest struct {
	LessonID   uint `json:"lessonId" binding:"required"`
	IsAssigned bool `json:"isAssigned"`
}

// GetOrCreate godoc
// @Summary 获取或创建当前进行中的学习尝试
// @Description 同一 (用户, 课程) 至多一个进行中的尝试；不存在则按 max+1 开新编号
// @Tags 学习尝试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body GetOrCreateAttemptRequest true "尝试信息"
// @Success 200 {object} util.Response{data=model.LessonAttempt}
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/attempts [post]
func (c *AttemptController) GetOrCreate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req GetOrCreateAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.AttemptService.GetOrCreate(user.UserID, req.LessonID, req.IsAssigned)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, attempt)
}

// Complete godoc
// @Summary 完结学习尝试（幂等）
// @Tags 学习尝试
// @Produce json
// @Security ApiKeyAuth
// @Param attemptId path int true "尝试ID"
// @Success 200 {object} util.Response{data=model.LessonAttempt}
// @Router /api/attempts/{attemptId}/complete [post]
func (c *AttemptController) Complete(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID, err := strconv.ParseUint(ctx.Param("attemptId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	attempt, err := c.AttemptService.FindByID(uint(attemptID))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if attempt.UserID != user.UserID && user.Role != util.RoleAdmin {
		util.Forbidden(ctx)
		return
	}

	completed, err := c.AttemptService.MarkComplete(uint(attemptID))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, completed)
}

type CreditHistoryRequest struct {
	LessonID   uint `json:"lessonId" binding:"required"`
	WindowDays int  `json:"windowDays" binding:"omitempty,min=1,max=365"`
}

// CreditHistory godoc
// @Summary 将未指派的历史观看计入新尝试
// @Description 仅计入窗口期内已关闭、未被计入过的会话；覆盖时长不超过课程总时长
// @Tags 学习尝试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param attemptId path int true "目标尝试ID"
// @Param body body CreditHistoryRequest true "计入条件"
// @Success 200 {object} util.Response{data=service.CreditResult}
// @Router /api/attempts/{attemptId}/credit-history [post]
func (c *AttemptController) CreditHistory(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attemptID, err := strconv.ParseUint(ctx.Param("attemptId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	var req CreditHistoryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = c.Config.Progress.CreditWindowDays
	}

	result, err := c.AttemptService.CreditUnassignedHistory(user.UserID, req.LessonID, uint(attemptID), windowDays, 0)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}
