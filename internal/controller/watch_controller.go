package controller

import (
	"fmt"

	"video_progress_backend/internal/service"
	"video_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type WatchController struct {
	SessionService *service.SessionService
	SegmentService *service.SegmentService
	SeekService    *service.SeekService
}

func NewWatchController(sessionService *service.SessionService, segmentService *service.SegmentService, seekService *service.SeekService) *WatchController {
	return &WatchController{
		SessionService: sessionService,
		SegmentService: segmentService,
		SeekService:    seekService,
	}
}

type OpenSessionRequest struct {
	LessonID   uint   `json:"lessonId" binding:"required"`
	AttemptID  *uint  `json:"attemptId"`
	IsAssigned bool   `json:"isAssigned"`
	ClientInfo string `json:"clientInfo" binding:"max=255"`
}

// @Summary 开启观看会话
// @Tags 观看进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param session body OpenSessionRequest true "会话信息"
// @Success 201 {object} util.Response
// @Router /api/watch/sessions [post]
func (c *WatchController) OpenSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req OpenSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.SessionService.Open(user.UserID, req.LessonID, req.AttemptID, req.IsAssigned, req.ClientInfo)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, session)
}

type RecordSegmentsRequest struct {
	Segments []service.SegmentInput `json:"segments" binding:"required,min=1,dive"`
}

// @Summary 上报观看分段（按 clientEventId 幂等）
// @Tags 观看进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param sessionId path string true "会话ID"
// @Param segments body RecordSegmentsRequest true "分段列表"
// @Success 200 {object} util.Response
// @Router /api/watch/sessions/{sessionId}/segments [post]
func (c *WatchController) RecordSegments(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")

	var req RecordSegmentsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	// 语义校验在边界完成，recorder 对送达的数据照单全收
	for i, seg := range req.Segments {
		if seg.EndSecond < seg.StartSecond {
			util.BadRequest(ctx, fmt.Sprintf("segments[%d]: endSecond must be >= startSecond", i))
			return
		}
		if seg.Speed <= 0 {
			util.BadRequest(ctx, fmt.Sprintf("segments[%d]: speed must be > 0", i))
			return
		}
	}

	result, err := c.SegmentService.Record(sessionID, req.Segments)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

type RecordSeeksRequest struct {
	Seeks []service.SeekInput `json:"seeks" binding:"required,min=1,dive"`
}

// @Summary 上报拖动/跳跃事件
// @Tags 观看进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param sessionId path string true "会话ID"
// @Param seeks body RecordSeeksRequest true "拖动事件列表"
// @Success 200 {object} util.Response
// @Router /api/watch/sessions/{sessionId}/seeks [post]
func (c *WatchController) RecordSeeks(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")

	var req RecordSeeksRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SeekService.Record(sessionID, req.Seeks)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 会话心跳
// @Tags 观看进度
// @Produce json
// @Security ApiKeyAuth
// @Param sessionId path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/watch/sessions/{sessionId}/heartbeat [post]
func (c *WatchController) Heartbeat(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")

	if err := c.SessionService.Heartbeat(sessionID); err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"sessionId": sessionID})
}

// @Summary 关闭会话并聚合进度（幂等）
// @Tags 观看进度
// @Produce json
// @Security ApiKeyAuth
// @Param sessionId path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/watch/sessions/{sessionId}/close [post]
func (c *WatchController) CloseSession(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")

	session, err := c.SessionService.Close(sessionID, "client")
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, session)
}

// @Summary 会话跳跃分析
// @Tags 观看进度
// @Produce json
// @Security ApiKeyAuth
// @Param sessionId path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/watch/sessions/{sessionId}/skips [get]
func (c *WatchController) GetSkipAnalytics(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")

	analytics, err := c.SeekService.Analytics(sessionID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, analytics)
}
