package service

import (
	"errors"
	"time"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"
	"video_progress_backend/pkg/logger"
	"video_progress_backend/pkg/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SegmentService struct {
	segments SegmentStore
	sessions SessionStore
}

func NewSegmentService(segments SegmentStore, sessions SessionStore) *SegmentService {
	return &SegmentService{segments: segments, sessions: sessions}
}

type SegmentInput struct {
	ClientEventID string  `json:"clientEventId" binding:"required,max=64"`
	StartSecond   float64 `json:"startSecond" binding:"min=0"`
	EndSecond     float64 `json:"endSecond" binding:"min=0"`
	Speed         float64 `json:"speed" binding:"required"`
}

type RecordResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// Record appends the submitted segments to the session. The recorder does no
// semantic validation of ranges or speed (the HTTP boundary rejects those
// before they get here); its single guarantee is idempotency per
// (sessionId, clientEventId): a retried item is counted as a duplicate and
// leaves no new row. Any progress-bearing write also bumps the session
// heartbeat.
func (s *SegmentService) Record(sessionID string, inputs []SegmentInput) (*RecordResult, error) {
	if _, err := s.sessions.FindByID(sessionID); err != nil {
		return nil, err
	}

	result := &RecordResult{}
	for _, in := range inputs {
		segment := &model.WatchSegment{
			SessionID:     sessionID,
			ClientEventID: in.ClientEventID,
			StartSecond:   in.StartSecond,
			EndSecond:     in.EndSecond,
			Speed:         decimal.NewFromFloat(in.Speed),
		}

		err := s.segments.Insert(segment)
		if errors.Is(err, util.ErrDuplicateSegment) {
			result.Duplicates++
			monitoring.SegmentsDuplicate.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Accepted++
		monitoring.SegmentsRecorded.Inc()
	}

	if err := s.sessions.Heartbeat(sessionID, time.Now()); err != nil {
		logger.Log.Warn("segment write could not bump heartbeat",
			zap.String("sessionId", sessionID), zap.Error(err))
	}

	return result, nil
}

func (s *SegmentService) ListBySession(sessionID string) ([]model.WatchSegment, error) {
	if _, err := s.sessions.FindByID(sessionID); err != nil {
		return nil, err
	}
	return s.segments.ListBySession(sessionID)
}
