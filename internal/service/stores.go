package service

import (
	"time"

	"video_progress_backend/internal/model"
)

// Persistence is injected through these interfaces; the gorm repositories in
// internal/repository implement them, tests substitute in-memory fakes.

type LessonStore interface {
	Create(lesson *model.Lesson) error
	Save(lesson *model.Lesson) error
	FindByID(id uint) (*model.Lesson, error)
	List(page, limit int) ([]model.Lesson, int64, error)
}

type AttemptStore interface {
	Create(attempt *model.LessonAttempt) error
	Save(attempt *model.LessonAttempt) error
	FindByID(id uint) (*model.LessonAttempt, error)
	FindInProgress(userID, lessonID uint) (*model.LessonAttempt, error)
	FindLatest(userID, lessonID uint) (*model.LessonAttempt, error)
	ListByUserAndLesson(userID, lessonID uint) ([]model.LessonAttempt, error)
	MaxAttemptNo(userID, lessonID uint) (int, error)
	UpdateAggregates(attemptID uint, apply func(*model.LessonAttempt) error) error
}

type SessionStore interface {
	Create(session *model.WatchSession) error
	FindByID(id string) (*model.WatchSession, error)
	Heartbeat(id string, at time.Time) error
	Close(id string, at time.Time) (bool, error)
	MarkAggregated(id string, at time.Time) (bool, error)
	ClearAggregated(id string) error
	ListByAttempt(attemptID uint) ([]model.WatchSession, error)
	ListRecent(userID, lessonID uint, limit int) ([]model.WatchSession, error)
	ListUnassigned(userID uint, lessonID uint, since time.Time) ([]model.WatchSession, error)
	ListStale(olderThan time.Time, limit int) ([]model.WatchSession, error)
	SetCreditedAttempt(sessionIDs []string, attemptID uint) error
	ClearCreditedAttempt(sessionIDs []string, attemptID uint) error
}

type SegmentStore interface {
	Insert(segment *model.WatchSegment) error
	ListBySession(sessionID string) ([]model.WatchSegment, error)
	ListBySessionIDs(sessionIDs []string) ([]model.WatchSegment, error)
	ListByAttempt(attemptID uint) ([]model.WatchSegment, error)
}

type SeekStore interface {
	Insert(seek *model.SeekEvent) error
	ListBySession(sessionID string) ([]model.SeekEvent, error)
	CountSkipsBySession(sessionID string) (int64, error)
}
