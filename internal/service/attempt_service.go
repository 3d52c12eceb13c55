package service

import (
	"errors"
	"time"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"
	"video_progress_backend/pkg/logger"
	"video_progress_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const applyRetries = 3

type AttemptService struct {
	attempts AttemptStore
	sessions SessionStore
	segments SegmentStore
	lessons  LessonStore
}

func NewAttemptService(attempts AttemptStore, sessions SessionStore, segments SegmentStore, lessons LessonStore) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		sessions: sessions,
		segments: segments,
		lessons:  lessons,
	}
}

// GetOrCreate returns the single in-progress attempt for (user, lesson),
// syncing its isAssigned flag in place when it changed; when none exists it
// opens attempt number max+1. Completing an attempt and calling this again
// is how re-takes work: prior rows stay untouched.
func (s *AttemptService) GetOrCreate(userID, lessonID uint, isAssigned bool) (*model.LessonAttempt, error) {
	if _, err := s.lessons.FindByID(lessonID); err != nil {
		return nil, err
	}

	for i := 0; i < applyRetries; i++ {
		attempt, err := s.attempts.FindInProgress(userID, lessonID)
		if err != nil {
			return nil, err
		}
		if attempt != nil {
			if attempt.IsAssigned != isAssigned {
				attempt.IsAssigned = isAssigned
				if err := s.attempts.Save(attempt); err != nil {
					return nil, err
				}
			}
			return attempt, nil
		}

		maxNo, err := s.attempts.MaxAttemptNo(userID, lessonID)
		if err != nil {
			return nil, err
		}

		attempt = &model.LessonAttempt{
			UserID:     userID,
			LessonID:   lessonID,
			AttemptNo:  maxNo + 1,
			Status:     model.AttemptInProgress,
			IsAssigned: isAssigned,
		}
		err = s.attempts.Create(attempt)
		if errors.Is(err, util.ErrAggregationConflict) {
			// lost the race on the (user, lesson, attempt_no) unique index;
			// the winner's row is what we want
			continue
		}
		if err != nil {
			return nil, err
		}
		return attempt, nil
	}

	return nil, util.ErrAggregationConflict
}

// ApplyProgress folds one closed session's summary into its attempt.
// Coverage and maxVerifiedSecond are recomputed from every segment under the
// attempt (all sessions, plus credited ones), which makes them idempotent
// under duplicate close calls; the effective-time and skip-count increments
// are additive and must only be passed with addOnce=true by the caller that
// won the session's aggregated_at compare-and-set.
func (s *AttemptService) ApplyProgress(attemptID uint, summary ProgressSummary, skipDelta int, addOnce bool) error {
	return s.applyWithRetry(attemptID, func(a *model.LessonAttempt) error {
		if addOnce {
			a.TotalEffectiveSeconds = a.TotalEffectiveSeconds.Add(summary.TotalEffectiveSeconds)
			a.SkipEventCount += skipDelta
		}
		return nil
	}, 0)
}

// MarkComplete terminates the attempt. Completion does not block segment
// writes against the attempt's closed sessions; new viewing should open a
// fresh attempt via GetOrCreate.
func (s *AttemptService) MarkComplete(attemptID uint) (*model.LessonAttempt, error) {
	var completed *model.LessonAttempt
	err := s.attempts.UpdateAggregates(attemptID, func(a *model.LessonAttempt) error {
		if a.Status != model.AttemptCompleted {
			now := time.Now()
			a.Status = model.AttemptCompleted
			a.CompletedAt = &now
		}
		completed = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

type CreditResult struct {
	AttemptID        uint   `json:"attemptId"`
	SessionsCredited int    `json:"sessionsCredited"`
	SessionIDs       []string `json:"sessionIds,omitempty"`
	EffectiveSeconds string `json:"effectiveSeconds"`
	CoverageSeconds  int    `json:"coverageSeconds"`
}

// CreditUnassignedHistory folds a user's prior unassigned viewing of the
// lesson into a freshly assigned attempt. Only closed sessions inside the
// policy window are credited, each at most once (the credited_attempt_id
// marker doubles as the audit reference), and the resulting coverage is
// capped at the lesson's known duration.
func (s *AttemptService) CreditUnassignedHistory(userID, lessonID, newAttemptID uint, windowDays int, durationCapSeconds int) (*CreditResult, error) {
	attempt, err := s.attempts.FindByID(newAttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID || attempt.LessonID != lessonID {
		return nil, util.ErrPermissionDenied
	}

	if durationCapSeconds <= 0 {
		lesson, err := s.lessons.FindByID(lessonID)
		if err != nil {
			return nil, err
		}
		durationCapSeconds = lesson.DurationSeconds
	}

	since := time.Now().AddDate(0, 0, -windowDays)
	candidates, err := s.sessions.ListUnassigned(userID, lessonID, since)
	if err != nil {
		return nil, err
	}

	sessionIDs := make([]string, 0, len(candidates))
	for _, sess := range candidates {
		// open sessions keep accumulating; they will be aggregated into
		// their own attempt on close, so only settled history is credited
		if !sess.IsClosed() {
			continue
		}
		if sess.LessonAttemptID != nil && *sess.LessonAttemptID == newAttemptID {
			continue
		}
		sessionIDs = append(sessionIDs, sess.ID)
	}

	result := &CreditResult{AttemptID: newAttemptID, EffectiveSeconds: "0"}
	if len(sessionIDs) == 0 {
		return result, nil
	}

	segments, err := s.segments.ListBySessionIDs(sessionIDs)
	if err != nil {
		return nil, err
	}
	credited := AggregateSegments(segments)

	if err := s.sessions.SetCreditedAttempt(sessionIDs, newAttemptID); err != nil {
		return nil, err
	}

	err = s.applyWithRetry(newAttemptID, func(a *model.LessonAttempt) error {
		a.TotalEffectiveSeconds = a.TotalEffectiveSeconds.Add(credited.TotalEffectiveSeconds)
		return nil
	}, durationCapSeconds)
	if err != nil {
		// unmark the sessions, otherwise they vanish from the candidate set
		// while their effective time was never added
		if clearErr := s.sessions.ClearCreditedAttempt(sessionIDs, newAttemptID); clearErr != nil {
			logger.Log.Error("could not roll back crediting marker",
				zap.Uint("attemptId", newAttemptID), zap.Error(clearErr))
		}
		return nil, err
	}

	updated, err := s.attempts.FindByID(newAttemptID)
	if err != nil {
		return nil, err
	}

	result.SessionsCredited = len(sessionIDs)
	result.SessionIDs = sessionIDs
	result.EffectiveSeconds = credited.TotalEffectiveSeconds.String()
	result.CoverageSeconds = updated.CoverageSeconds
	return result, nil
}

// applyWithRetry recomputes coverage/maxVerified from source rows (honoring
// the cap) and applies the additive mutation atomically.
func (s *AttemptService) applyWithRetry(attemptID uint, add func(*model.LessonAttempt) error, capSeconds int) error {
	var lastErr error
	for i := 0; i < applyRetries; i++ {
		if i > 0 {
			monitoring.AggregationConflicts.Inc()
		}

		segments, err := s.segments.ListByAttempt(attemptID)
		if err != nil {
			return err
		}
		recomputed := AggregateSegments(segments)
		if capSeconds > 0 && recomputed.CoverageSeconds > capSeconds {
			recomputed.CoverageSeconds = capSeconds
		}

		lastErr = s.attempts.UpdateAggregates(attemptID, func(a *model.LessonAttempt) error {
			a.CoverageSeconds = recomputed.CoverageSeconds
			if recomputed.MaxVerifiedSecond > a.MaxVerifiedSecond {
				a.MaxVerifiedSecond = recomputed.MaxVerifiedSecond
			}
			return add(a)
		})
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, util.ErrAttemptNotFound) {
			return lastErr
		}

		logger.Log.Warn("attempt aggregate update failed, retrying",
			zap.Uint("attemptId", attemptID), zap.Error(lastErr))
	}
	return util.ErrAggregationConflict
}

func (s *AttemptService) FindByID(attemptID uint) (*model.LessonAttempt, error) {
	return s.attempts.FindByID(attemptID)
}
