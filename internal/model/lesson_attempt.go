package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// LessonAttempt is one user's pass at one lesson. Re-takes create a new row
// with the next attempt_no; old rows are never deleted.
// swagger:model LessonAttempt
type LessonAttempt struct {
	BaseModel

	UserID    uint          `gorm:"uniqueIndex:idx_user_lesson_attempt;index:idx_user_lesson;type:bigint unsigned" json:"userId"`
	LessonID  uint          `gorm:"uniqueIndex:idx_user_lesson_attempt;index:idx_user_lesson;type:bigint unsigned" json:"lessonId"`
	AttemptNo int           `gorm:"uniqueIndex:idx_user_lesson_attempt" json:"attemptNo"`
	Status    AttemptStatus `gorm:"type:varchar(20);default:'in_progress'" json:"status"`

	IsAssigned bool `gorm:"default:false" json:"isAssigned"`

	MaxVerifiedSecond     int             `gorm:"default:0" json:"maxVerifiedSecond"`
	TotalEffectiveSeconds decimal.Decimal `gorm:"type:decimal(14,3);default:0" json:"totalEffectiveSeconds"`
	CoverageSeconds       int             `gorm:"default:0" json:"coverageSeconds"`
	SkipEventCount        int             `gorm:"default:0" json:"skipEventCount"`

	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (LessonAttempt) TableName() string {
	return "lesson_attempts"
}
