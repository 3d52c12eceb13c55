package repository

import (
	"errors"
	"time"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(session *model.WatchSession) error {
	return r.DB.Create(session).Error
}

func (r *SessionRepository) FindByID(id string) (*model.WatchSession, error) {
	var s model.WatchSession
	if err := r.DB.Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Heartbeat(id string, at time.Time) error {
	res := r.DB.Model(&model.WatchSession{}).
		Where("id = ?", id).
		Update("last_heartbeat_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrSessionNotFound
	}
	return nil
}

// Close sets closed_at exactly once. The compare-and-set keeps a racing
// double close from re-triggering downstream aggregation.
func (r *SessionRepository) Close(id string, at time.Time) (bool, error) {
	res := r.DB.Model(&model.WatchSession{}).
		Where("id = ? AND closed_at IS NULL", id).
		Update("closed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkAggregated is the once-only guard for the additive half of attempt
// aggregation: only the caller that flips aggregated_at from NULL may add
// effective time and skip counts.
func (r *SessionRepository) MarkAggregated(id string, at time.Time) (bool, error) {
	res := r.DB.Model(&model.WatchSession{}).
		Where("id = ? AND aggregated_at IS NULL", id).
		Update("aggregated_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClearAggregated releases the once-only marker after a failed aggregation,
// so a retried close can win the compare-and-set again and add the session's
// effective time after all.
func (r *SessionRepository) ClearAggregated(id string) error {
	return r.DB.Model(&model.WatchSession{}).
		Where("id = ?", id).
		Update("aggregated_at", nil).Error
}

func (r *SessionRepository) ListByAttempt(attemptID uint) ([]model.WatchSession, error) {
	var sessions []model.WatchSession
	err := r.DB.
		Where("lesson_attempt_id = ? OR credited_attempt_id = ?", attemptID, attemptID).
		Order("started_at").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) ListRecent(userID, lessonID uint, limit int) ([]model.WatchSession, error) {
	var sessions []model.WatchSession
	err := r.DB.
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Order("started_at DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// ListUnassigned returns a user's viewing that never belonged to an assigned
// attempt: sessions with no attempt at all, or linked to an attempt with
// is_assigned = false. Already-credited sessions are excluded.
func (r *SessionRepository) ListUnassigned(userID uint, lessonID uint, since time.Time) ([]model.WatchSession, error) {
	var sessions []model.WatchSession
	q := r.DB.
		Where("watch_sessions.user_id = ? AND watch_sessions.credited_attempt_id IS NULL", userID).
		Where("watch_sessions.started_at >= ?", since).
		Where(`watch_sessions.lesson_attempt_id IS NULL OR watch_sessions.lesson_attempt_id IN (
			SELECT id FROM lesson_attempts WHERE is_assigned = false)`)
	if lessonID != 0 {
		q = q.Where("watch_sessions.lesson_id = ?", lessonID)
	}
	err := q.Order("watch_sessions.started_at").Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) ListStale(olderThan time.Time, limit int) ([]model.WatchSession, error) {
	var sessions []model.WatchSession
	err := r.DB.
		Where("closed_at IS NULL AND last_heartbeat_at < ?", olderThan).
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) SetCreditedAttempt(sessionIDs []string, attemptID uint) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	return r.DB.Model(&model.WatchSession{}).
		Where("id IN ?", sessionIDs).
		Update("credited_attempt_id", attemptID).Error
}

// ClearCreditedAttempt rolls the crediting marker back after a failed apply;
// the attempt guard keeps it from touching sessions credited elsewhere since.
func (r *SessionRepository) ClearCreditedAttempt(sessionIDs []string, attemptID uint) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	return r.DB.Model(&model.WatchSession{}).
		Where("id IN ? AND credited_attempt_id = ?", sessionIDs, attemptID).
		Update("credited_attempt_id", nil).Error
}
