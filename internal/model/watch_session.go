package model

import "time"

// WatchSession is one continuous player lifetime. Closing it is the only
// trigger for attempt-level aggregation; AggregatedAt is the once-only guard
// for the additive parts of that aggregation.
// swagger:model WatchSession
type WatchSession struct {
	UUIDBase

	UserID          uint  `gorm:"index:idx_session_user_lesson;type:bigint unsigned" json:"userId"`
	LessonID        uint  `gorm:"index:idx_session_user_lesson;type:bigint unsigned" json:"lessonId"`
	LessonAttemptID *uint `gorm:"index;type:bigint unsigned" json:"lessonAttemptId,omitempty"`

	StartedAt       time.Time  `gorm:"index:idx_session_user_lesson" json:"startedAt"`
	LastHeartbeatAt time.Time  `json:"lastHeartbeatAt"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	AggregatedAt    *time.Time `json:"-"`

	// set when an unassigned session's viewing is credited into an attempt
	CreditedAttemptID *uint `gorm:"type:bigint unsigned" json:"creditedAttemptId,omitempty"`

	ClientInfo string `gorm:"type:varchar(255)" json:"clientInfo,omitempty"`
}

func (WatchSession) TableName() string {
	return "watch_sessions"
}

func (s *WatchSession) IsClosed() bool {
	return s.ClosedAt != nil
}
