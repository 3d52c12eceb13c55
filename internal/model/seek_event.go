package model

// SeekEvent is a single seek action. Append-only and not deduplicated:
// unlike segments, every submitted seek is a new fact.
// swagger:model SeekEvent
type SeekEvent struct {
	BaseModel

	SessionID string `gorm:"index:idx_seek_session_skip;uniqueIndex:idx_seek_session_event;type:varchar(36)" json:"sessionId"`

	// optional client idempotency key; only enforced when seek dedup is
	// enabled in config (NULLs never collide in the unique index)
	ClientEventID *string `gorm:"uniqueIndex:idx_seek_session_event;type:varchar(64)" json:"clientEventId,omitempty"`

	FromSecond   float64 `json:"fromSecond"`
	ToSecond     float64 `json:"toSecond"`
	Allowed      bool    `json:"allowed"`
	Reason       string  `gorm:"type:varchar(64)" json:"reason,omitempty"`
	IsSkip       bool    `gorm:"index:idx_seek_session_skip" json:"isSkip"`
	SkipDistance float64 `json:"skipDistance"`
}

func (SeekEvent) TableName() string {
	return "seek_events"
}
