package util

import "errors"

var (
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrSessionNotFound     = errors.New("watch session not found")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptCompleted    = errors.New("attempt already completed")
	ErrSessionClosed       = errors.New("watch session already closed")
	ErrDuplicateSegment    = errors.New("segment already recorded")
	ErrDuplicateSeek       = errors.New("seek already recorded")
	ErrAggregationConflict = errors.New("aggregation conflict, retry")
	ErrPermissionDenied    = errors.New("permission denied")
)
