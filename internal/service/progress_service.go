package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"video_progress_backend/internal/model"
	"video_progress_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const recentSessionLimit = 10

type ProgressService struct {
	attempts AttemptStore
	sessions SessionStore
	segments SegmentStore
	lessons  LessonStore
	rdb      *redis.Client
	cacheTTL time.Duration
}

func NewProgressService(attempts AttemptStore, sessions SessionStore, segments SegmentStore, lessons LessonStore, rdb *redis.Client, cacheTTLSeconds int) *ProgressService {
	if cacheTTLSeconds <= 0 {
		cacheTTLSeconds = 30
	}
	return &ProgressService{
		attempts: attempts,
		sessions: sessions,
		segments: segments,
		lessons:  lessons,
		rdb:      rdb,
		cacheTTL: time.Duration(cacheTTLSeconds) * time.Second,
	}
}

// ProgressReport shows effective time and coverage side by side. The two
// measure different things (time spent vs positions seen): effective time
// counts re-watching again, so it can legitimately exceed the lesson
// duration, while coverage never does.
type ProgressReport struct {
	Lesson          *model.Lesson         `json:"lesson"`
	Attempt         *model.LessonAttempt  `json:"attempt"`
	Attempts        []model.LessonAttempt `json:"attempts"`
	RecentSessions  []model.WatchSession  `json:"recentSessions"`
	CoveragePercent float64               `json:"coveragePercent"`
	Watched         []Interval            `json:"watched"`
}

func (s *ProgressService) cacheKey(userID, lessonID uint) string {
	return fmt.Sprintf("progress:%d:%d", userID, lessonID)
}

// Invalidate drops the cached report; called whenever a session close or a
// crediting pass lands new aggregates on the attempt.
func (s *ProgressService) Invalidate(userID, lessonID uint) {
	if s.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.rdb.Del(ctx, s.cacheKey(userID, lessonID)).Err(); err != nil {
		logger.Log.Warn("progress cache invalidation failed",
			zap.Uint("userId", userID), zap.Uint("lessonId", lessonID), zap.Error(err))
	}
}

func (s *ProgressService) GetProgress(ctx context.Context, userID, lessonID uint) (*ProgressReport, error) {
	key := s.cacheKey(userID, lessonID)

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var report ProgressReport
			if err := json.Unmarshal([]byte(raw), &report); err == nil {
				return &report, nil
			}
		}
	}

	report, err := s.buildReport(userID, lessonID)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(report); err == nil {
			if err := s.rdb.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
				logger.Log.Warn("progress cache write failed", zap.Error(err))
			}
		}
	}

	return report, nil
}

func (s *ProgressService) buildReport(userID, lessonID uint) (*ProgressReport, error) {
	lesson, err := s.lessons.FindByID(lessonID)
	if err != nil {
		return nil, err
	}

	latest, err := s.attempts.FindLatest(userID, lessonID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.attempts.ListByUserAndLesson(userID, lessonID)
	if err != nil {
		return nil, err
	}

	recent, err := s.sessions.ListRecent(userID, lessonID, recentSessionLimit)
	if err != nil {
		return nil, err
	}

	// merged watched ranges for the latest attempt, for timeline rendering
	segments, err := s.segments.ListByAttempt(latest.ID)
	if err != nil {
		return nil, err
	}
	watched := AggregateSegments(segments).Intervals

	report := &ProgressReport{
		Lesson:         lesson,
		Attempt:        latest,
		Attempts:       attempts,
		RecentSessions: recent,
		Watched:        watched,
	}
	if lesson.DurationSeconds > 0 {
		report.CoveragePercent = 100 * float64(latest.CoverageSeconds) / float64(lesson.DurationSeconds)
		if report.CoveragePercent > 100 {
			report.CoveragePercent = 100
		}
	}
	return report, nil
}

// UnassignedHistoryEntry pairs an unassigned session with what it watched.
type UnassignedHistoryEntry struct {
	Session  model.WatchSession `json:"session"`
	Summary  ProgressSummary    `json:"summary"`
	Credited bool               `json:"credited"`
}

func (s *ProgressService) GetUnassignedHistory(userID uint, windowDays int) ([]UnassignedHistoryEntry, error) {
	since := time.Now().AddDate(0, 0, -windowDays)
	sessions, err := s.sessions.ListUnassigned(userID, 0, since)
	if err != nil {
		return nil, err
	}

	entries := make([]UnassignedHistoryEntry, 0, len(sessions))
	for _, sess := range sessions {
		segments, err := s.segments.ListBySession(sess.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, UnassignedHistoryEntry{
			Session:  sess,
			Summary:  AggregateSegments(segments),
			Credited: sess.CreditedAttemptID != nil,
		})
	}
	return entries, nil
}
