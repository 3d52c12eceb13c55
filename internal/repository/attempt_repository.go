package repository

import (
	"errors"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(attempt *model.LessonAttempt) error {
	err := r.DB.Create(attempt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 两个并发的 getOrCreate 撞上了 (user, lesson, attempt_no) 唯一索引
		return util.ErrAggregationConflict
	}
	return err
}

func (r *AttemptRepository) Save(attempt *model.LessonAttempt) error {
	return r.DB.Save(attempt).Error
}

func (r *AttemptRepository) FindByID(id uint) (*model.LessonAttempt, error) {
	var a model.LessonAttempt
	if err := r.DB.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindInProgress returns the single in-progress attempt for (user, lesson),
// or nil when there is none.
func (r *AttemptRepository) FindInProgress(userID, lessonID uint) (*model.LessonAttempt, error) {
	var a model.LessonAttempt
	err := r.DB.
		Where("user_id = ? AND lesson_id = ? AND status = ?", userID, lessonID, model.AttemptInProgress).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) MaxAttemptNo(userID, lessonID uint) (int, error) {
	var maxNo int
	err := r.DB.Model(&model.LessonAttempt{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Select("COALESCE(MAX(attempt_no), 0)").
		Scan(&maxNo).Error
	return maxNo, err
}

func (r *AttemptRepository) FindLatest(userID, lessonID uint) (*model.LessonAttempt, error) {
	var a model.LessonAttempt
	err := r.DB.
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Order("attempt_no DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) ListByUserAndLesson(userID, lessonID uint) ([]model.LessonAttempt, error) {
	var attempts []model.LessonAttempt
	err := r.DB.
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Order("attempt_no").
		Find(&attempts).Error
	return attempts, err
}

// UpdateAggregates re-reads the attempt row under a row lock and applies the
// mutation inside one transaction. This is the only write path for the
// aggregate columns, so concurrent session closes serialize here instead of
// clobbering each other with stale in-memory state.
func (r *AttemptRepository) UpdateAggregates(attemptID uint, apply func(*model.LessonAttempt) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var a model.LessonAttempt
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, attemptID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrAttemptNotFound
		}
		if err != nil {
			return err
		}

		if err := apply(&a); err != nil {
			return err
		}

		return tx.Save(&a).Error
	})
}
