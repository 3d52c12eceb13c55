package repository

import (
	"errors"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"

	"gorm.io/gorm"
)

type SegmentRepository struct {
	DB *gorm.DB
}

func NewSegmentRepository(db *gorm.DB) *SegmentRepository {
	return &SegmentRepository{DB: db}
}

// Insert persists one segment. A retried submission trips the
// (session_id, client_event_id) unique index and comes back as
// util.ErrDuplicateSegment for the caller to swallow.
func (r *SegmentRepository) Insert(segment *model.WatchSegment) error {
	err := r.DB.Create(segment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrDuplicateSegment
	}
	return err
}

func (r *SegmentRepository) ListBySession(sessionID string) ([]model.WatchSegment, error) {
	var segments []model.WatchSegment
	err := r.DB.
		Where("session_id = ?", sessionID).
		Order("start_second").
		Find(&segments).Error
	return segments, err
}

func (r *SegmentRepository) ListBySessionIDs(sessionIDs []string) ([]model.WatchSegment, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	var segments []model.WatchSegment
	err := r.DB.
		Where("session_id IN ?", sessionIDs).
		Order("start_second").
		Find(&segments).Error
	return segments, err
}

// ListByAttempt pulls every segment under an attempt, both from sessions
// opened against it and from sessions later credited into it. Coverage is
// always recomputed from this full set.
func (r *SegmentRepository) ListByAttempt(attemptID uint) ([]model.WatchSegment, error) {
	var segments []model.WatchSegment
	err := r.DB.
		Joins("JOIN watch_sessions ON watch_sessions.id = watch_segments.session_id").
		Where("watch_sessions.lesson_attempt_id = ? OR watch_sessions.credited_attempt_id = ?", attemptID, attemptID).
		Order("watch_segments.start_second").
		Find(&segments).Error
	return segments, err
}
