package service

import (
	"errors"
	"math"
	"sync"
	"time"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"
	"video_progress_backend/pkg/logger"
	"video_progress_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const DefaultSkipThresholdSeconds = 5.0

type SeekService struct {
	seeks    SeekStore
	sessions SessionStore

	mu         sync.RWMutex
	threshold  float64
	dedupSeeks bool
}

func NewSeekService(seeks SeekStore, sessions SessionStore, thresholdSeconds float64, dedupSeeks bool) *SeekService {
	if thresholdSeconds <= 0 {
		thresholdSeconds = DefaultSkipThresholdSeconds
	}
	return &SeekService{
		seeks:      seeks,
		sessions:   sessions,
		threshold:  thresholdSeconds,
		dedupSeeks: dedupSeeks,
	}
}

// UpdateSettings applies hot-reloaded config.
func (s *SeekService) UpdateSettings(thresholdSeconds float64, dedupSeeks bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if thresholdSeconds > 0 {
		s.threshold = thresholdSeconds
	}
	s.dedupSeeks = dedupSeeks
}

// ClassifySeek derives the skip verdict: a skip is specifically a disallowed
// forward jump longer than the threshold. Backward seeks are recorded but
// never skips.
func ClassifySeek(fromSecond, toSecond float64, allowed bool, threshold float64) (isSkip bool, distance float64) {
	distance = math.Abs(toSecond - fromSecond)
	isSkip = !allowed && toSecond > fromSecond && distance > threshold
	return isSkip, distance
}

type SeekInput struct {
	ClientEventID string  `json:"clientEventId,omitempty" binding:"max=64"`
	FromSecond    float64 `json:"fromSecond" binding:"min=0"`
	ToSecond      float64 `json:"toSecond" binding:"min=0"`
	Allowed       bool    `json:"allowed"`
	Reason        string  `json:"reason,omitempty" binding:"max=64"`
}

// Record classifies and persists the submitted seeks. Seeks are not
// deduplicated by default: every call is a new fact. When dedup is enabled
// in config and the client supplies an event id, retries are ignored the
// same way segment retries are.
func (s *SeekService) Record(sessionID string, inputs []SeekInput) (*RecordResult, error) {
	if _, err := s.sessions.FindByID(sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	threshold := s.threshold
	dedup := s.dedupSeeks
	s.mu.RUnlock()

	result := &RecordResult{}
	for _, in := range inputs {
		isSkip, distance := ClassifySeek(in.FromSecond, in.ToSecond, in.Allowed, threshold)

		seek := &model.SeekEvent{
			SessionID:    sessionID,
			FromSecond:   in.FromSecond,
			ToSecond:     in.ToSecond,
			Allowed:      in.Allowed,
			Reason:       in.Reason,
			IsSkip:       isSkip,
			SkipDistance: distance,
		}
		if dedup && in.ClientEventID != "" {
			eventID := in.ClientEventID
			seek.ClientEventID = &eventID
		}

		err := s.seeks.Insert(seek)
		if errors.Is(err, util.ErrDuplicateSeek) {
			result.Duplicates++
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Accepted++
		if isSkip {
			monitoring.SeeksRecorded.WithLabelValues("true").Inc()
		} else {
			monitoring.SeeksRecorded.WithLabelValues("false").Inc()
		}
	}

	if err := s.sessions.Heartbeat(sessionID, time.Now()); err != nil {
		logger.Log.Warn("seek write could not bump heartbeat",
			zap.String("sessionId", sessionID), zap.Error(err))
	}

	return result, nil
}

// SkipAnalytics summarises a session's seek behaviour for reporting.
type SkipAnalytics struct {
	SessionID       string         `json:"sessionId"`
	TotalSeeks      int            `json:"totalSeeks"`
	SkipCount       int            `json:"skipCount"`
	MaxSkipDistance float64        `json:"maxSkipDistance"`
	AvgSkipDistance float64        `json:"avgSkipDistance"`
	ByReason        map[string]int `json:"byReason"`
	Events          []model.SeekEvent `json:"events"`
}

func (s *SeekService) Analytics(sessionID string) (*SkipAnalytics, error) {
	if _, err := s.sessions.FindByID(sessionID); err != nil {
		return nil, err
	}

	events, err := s.seeks.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}

	analytics := &SkipAnalytics{
		SessionID:  sessionID,
		TotalSeeks: len(events),
		ByReason:   map[string]int{},
		Events:     events,
	}

	var skipDistanceSum float64
	for _, ev := range events {
		if ev.Reason != "" {
			analytics.ByReason[ev.Reason]++
		}
		if !ev.IsSkip {
			continue
		}
		analytics.SkipCount++
		skipDistanceSum += ev.SkipDistance
		if ev.SkipDistance > analytics.MaxSkipDistance {
			analytics.MaxSkipDistance = ev.SkipDistance
		}
	}
	if analytics.SkipCount > 0 {
		analytics.AvgSkipDistance = skipDistanceSum / float64(analytics.SkipCount)
	}

	return analytics, nil
}
