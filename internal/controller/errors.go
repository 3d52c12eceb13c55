package controller

import (
	"errors"

	"video_progress_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// respondError maps service-layer sentinel errors onto HTTP responses so
// controllers do not repeat the same errors.Is ladder.
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrLessonNotFound),
		errors.Is(err, util.ErrSessionNotFound),
		errors.Is(err, util.ErrAttemptNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrSessionClosed),
		errors.Is(err, util.ErrAttemptCompleted),
		errors.Is(err, util.ErrAggregationConflict):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}
