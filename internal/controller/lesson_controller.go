package controller

import (
	"strconv"

	"video_progress_backend/internal/service"
	"video_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LessonController struct {
	ContentService *service.ContentService
}

func NewLessonController(contentService *service.ContentService) *LessonController {
	return &LessonController{ContentService: contentService}
}

// Create godoc
// @Summary 创建课程
// @Tags 课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.LessonCreateRequest true "课程信息"
// @Success 201 {object} util.Response{data=model.Lesson}
// @Router /api/lessons [post]
func (c *LessonController) Create(ctx *gin.Context) {
	var req service.LessonCreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson, err := c.ContentService.CreateLesson(req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, lesson)
}

// Get godoc
// @Summary 查询课程
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param lessonId path int true "课程ID"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/lessons/{lessonId} [get]
func (c *LessonController) Get(ctx *gin.Context) {
	lessonID, err := strconv.ParseUint(ctx.Param("lessonId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid lesson id")
		return
	}

	lesson, err := c.ContentService.GetLesson(uint(lessonID))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, lesson)
}

// List godoc
// @Summary 课程列表
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param pageSize query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/lessons [get]
func (c *LessonController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("pageSize", "20"))

	lessons, total, err := c.ContentService.ListLessons(page, pageSize)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"lessons": lessons,
		"total":   total,
		"page":    page,
	})
}

// UploadVideo godoc
// @Summary 上传课程视频
// @Description 视频存入对象存储；课程未设置时长时用 ffprobe 自动探测
// @Tags 课程
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param lessonId path int true "课程ID"
// @Param file formData file true "视频文件"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Router /api/lessons/{lessonId}/video [post]
func (c *LessonController) UploadVideo(ctx *gin.Context) {
	lessonID, err := strconv.ParseUint(ctx.Param("lessonId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid lesson id")
		return
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "missing video file")
		return
	}

	lesson, err := c.ContentService.UploadVideo(ctx.Request.Context(), uint(lessonID), file)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, lesson)
}
