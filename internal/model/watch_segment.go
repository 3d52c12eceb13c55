package model

import "github.com/shopspring/decimal"

// WatchSegment is a client-reported contiguous watched range. Append-only;
// (session_id, client_event_id) is unique so a retried submission is a no-op
// rather than a duplicate row.
// swagger:model WatchSegment
type WatchSegment struct {
	BaseModel

	SessionID     string `gorm:"uniqueIndex:idx_session_client_event;index;type:varchar(36)" json:"sessionId"`
	ClientEventID string `gorm:"uniqueIndex:idx_session_client_event;type:varchar(64)" json:"clientEventId"`

	StartSecond float64         `json:"startSecond"`
	EndSecond   float64         `json:"endSecond"`
	Speed       decimal.Decimal `gorm:"type:decimal(4,2);default:1" json:"speed"`
}

func (WatchSegment) TableName() string {
	return "watch_segments"
}
