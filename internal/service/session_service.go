package service

import (
	"sync"
	"time"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"
	"video_progress_backend/pkg/logger"
	"video_progress_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const reapBatchSize = 100

type SessionService struct {
	sessions SessionStore
	segments SegmentStore
	seeks    SeekStore
	attempts *AttemptService

	// notified after a session's progress lands on its attempt, so cached
	// progress reads can be dropped
	onAggregated func(userID, lessonID uint)

	mu           sync.RWMutex
	staleTimeout time.Duration
}

func NewSessionService(sessions SessionStore, segments SegmentStore, seeks SeekStore, attempts *AttemptService, staleMinutes int) *SessionService {
	if staleMinutes <= 0 {
		staleMinutes = 5
	}
	return &SessionService{
		sessions:     sessions,
		segments:     segments,
		seeks:        seeks,
		attempts:     attempts,
		staleTimeout: time.Duration(staleMinutes) * time.Minute,
	}
}

func (s *SessionService) SetAggregationListener(fn func(userID, lessonID uint)) {
	s.onAggregated = fn
}

func (s *SessionService) UpdateSettings(staleMinutes int) {
	if staleMinutes <= 0 {
		return
	}
	s.mu.Lock()
	s.staleTimeout = time.Duration(staleMinutes) * time.Minute
	s.mu.Unlock()
}

// Open starts a watch session against an attempt. When the caller does not
// supply an attempt id, the in-progress attempt is resolved (or created)
// first; isAssigned reflects whether this viewing was assigned to the user.
func (s *SessionService) Open(userID, lessonID uint, attemptID *uint, isAssigned bool, clientInfo string) (*model.WatchSession, error) {
	var resolvedID uint
	if attemptID != nil {
		attempt, err := s.attempts.FindByID(*attemptID)
		if err != nil {
			return nil, err
		}
		if attempt.UserID != userID || attempt.LessonID != lessonID {
			return nil, util.ErrPermissionDenied
		}
		resolvedID = attempt.ID
	} else {
		attempt, err := s.attempts.GetOrCreate(userID, lessonID, isAssigned)
		if err != nil {
			return nil, err
		}
		resolvedID = attempt.ID
	}

	now := time.Now()
	session := &model.WatchSession{
		UserID:          userID,
		LessonID:        lessonID,
		LessonAttemptID: &resolvedID,
		StartedAt:       now,
		LastHeartbeatAt: now,
		ClientInfo:      clientInfo,
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) Heartbeat(sessionID string) error {
	return s.sessions.Heartbeat(sessionID, time.Now())
}

func (s *SessionService) FindByID(sessionID string) (*model.WatchSession, error) {
	return s.sessions.FindByID(sessionID)
}

// Close ends the session and triggers the only aggregation path there is:
// no background job recomputes attempt progress, a session that never closes
// contributes nothing until the reaper closes it. Closing an already-closed
// session is a no-op; the aggregated_at compare-and-set (not the close
// itself) decides which caller may add the session's effective time and skip
// count, so a close retried after a crash still aggregates exactly once.
// When aggregation fails the marker is released again, keeping the additive
// contribution reachable for the caller's retry.
func (s *SessionService) Close(sessionID, trigger string) (*model.WatchSession, error) {
	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}

	closedNow, err := s.sessions.Close(sessionID, time.Now())
	if err != nil {
		return nil, err
	}
	if closedNow {
		monitoring.SessionsClosed.WithLabelValues(trigger).Inc()
	}

	wonAggregation, err := s.sessions.MarkAggregated(sessionID, time.Now())
	if err != nil {
		return nil, err
	}
	if !wonAggregation && !closedNow {
		// duplicate close after aggregation already happened
		return s.sessions.FindByID(sessionID)
	}

	if session.LessonAttemptID != nil {
		if err := s.aggregate(sessionID, *session.LessonAttemptID, trigger, wonAggregation); err != nil {
			// release the once-only marker, otherwise the session's additive
			// contribution is unreachable for every retried close
			if wonAggregation {
				if clearErr := s.sessions.ClearAggregated(sessionID); clearErr != nil {
					logger.Log.Error("could not release aggregation marker",
						zap.String("sessionId", sessionID), zap.Error(clearErr))
				}
			}
			return nil, err
		}
	}

	if s.onAggregated != nil {
		s.onAggregated(session.UserID, session.LessonID)
	}

	return s.sessions.FindByID(sessionID)
}

func (s *SessionService) aggregate(sessionID string, attemptID uint, trigger string, addOnce bool) error {
	segments, err := s.segments.ListBySession(sessionID)
	if err != nil {
		return err
	}
	summary := AggregateSegments(segments)

	skips, err := s.seeks.CountSkipsBySession(sessionID)
	if err != nil {
		return err
	}

	if err := s.attempts.ApplyProgress(attemptID, summary, int(skips), addOnce); err != nil {
		return err
	}

	logger.Log.Info("session aggregated",
		zap.String("sessionId", sessionID),
		zap.Uint("attemptId", attemptID),
		zap.String("trigger", trigger),
		zap.Int("coverageSeconds", summary.CoverageSeconds),
		zap.String("effectiveSeconds", summary.TotalEffectiveSeconds.String()),
		zap.Int64("skips", skips))
	return nil
}

// ReapStale force-closes sessions whose heartbeat went quiet, bounding the
// data-loss window for clients that disconnected without closing.
func (s *SessionService) ReapStale() (int, error) {
	s.mu.RLock()
	timeout := s.staleTimeout
	s.mu.RUnlock()

	stale, err := s.sessions.ListStale(time.Now().Add(-timeout), reapBatchSize)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, sess := range stale {
		if _, err := s.Close(sess.ID, "reaper"); err != nil {
			logger.Log.Error("failed to reap stale session",
				zap.String("sessionId", sess.ID), zap.Error(err))
			continue
		}
		reaped++
	}
	return reaped, nil
}
