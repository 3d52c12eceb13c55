package repository

import (
	"errors"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"

	"gorm.io/gorm"
)

type SeekRepository struct {
	DB *gorm.DB
}

func NewSeekRepository(db *gorm.DB) *SeekRepository {
	return &SeekRepository{DB: db}
}

func (r *SeekRepository) Insert(seek *model.SeekEvent) error {
	err := r.DB.Create(seek).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrDuplicateSeek
	}
	return err
}

func (r *SeekRepository) ListBySession(sessionID string) ([]model.SeekEvent, error) {
	var seeks []model.SeekEvent
	err := r.DB.
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&seeks).Error
	return seeks, err
}

func (r *SeekRepository) CountSkipsBySession(sessionID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.SeekEvent{}).
		Where("session_id = ? AND is_skip = ?", sessionID, true).
		Count(&count).Error
	return count, err
}
