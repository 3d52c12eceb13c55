package service

import (
	"context"
	"testing"

	"video_progress_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProgressService(f *fixture) *ProgressService {
	return NewProgressService(f.attempts, f.sessions, f.segments, f.lessons, nil, 30)
}

func TestGetProgressReport(t *testing.T) {
	f := newFixture()
	svc := newProgressService(f)
	lesson := f.addLesson(300)

	session, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)
	_, err = f.segmentSvc.Record(session.ID, []SegmentInput{
		{ClientEventID: "ev-1", StartSecond: 0, EndSecond: 90, Speed: 1},
		{ClientEventID: "ev-2", StartSecond: 120, EndSecond: 180, Speed: 1},
	})
	require.NoError(t, err)
	_, err = f.sessionSvc.Close(session.ID, "client")
	require.NoError(t, err)

	report, err := svc.GetProgress(context.Background(), 1, lesson.ID)
	require.NoError(t, err)

	assert.Equal(t, lesson.ID, report.Lesson.ID)
	require.NotNil(t, report.Attempt)
	assert.Equal(t, 150, report.Attempt.CoverageSeconds)
	assert.Equal(t, 180, report.Attempt.MaxVerifiedSecond)
	assert.InDelta(t, 50.0, report.CoveragePercent, 0.001)
	assert.Len(t, report.Attempts, 1)
	assert.Len(t, report.RecentSessions, 1)

	require.Len(t, report.Watched, 2)
	assert.Equal(t, Interval{Start: 0, End: 90}, report.Watched[0])
	assert.Equal(t, Interval{Start: 120, End: 180}, report.Watched[1])
}

func TestGetProgressCoveragePercentCapped(t *testing.T) {
	f := newFixture()
	svc := newProgressService(f)
	lesson := f.addLesson(100)

	session, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)
	_, err = f.segmentSvc.Record(session.ID, []SegmentInput{
		{ClientEventID: "ev-1", StartSecond: 0, EndSecond: 130, Speed: 1},
	})
	require.NoError(t, err)
	_, err = f.sessionSvc.Close(session.ID, "client")
	require.NoError(t, err)

	report, err := svc.GetProgress(context.Background(), 1, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, report.CoveragePercent)
}

func TestGetProgressNoAttempt(t *testing.T) {
	f := newFixture()
	svc := newProgressService(f)
	lesson := f.addLesson(300)

	_, err := svc.GetProgress(context.Background(), 1, lesson.ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestGetProgressUnknownLesson(t *testing.T) {
	f := newFixture()
	svc := newProgressService(f)

	_, err := svc.GetProgress(context.Background(), 1, 999)
	assert.ErrorIs(t, err, util.ErrLessonNotFound)
}

func TestGetUnassignedHistory(t *testing.T) {
	f := newFixture()
	svc := newProgressService(f)
	lesson := f.addLesson(300)

	closedUnassignedSession(t, f, 1, lesson.ID, 0, 60, "ev-a")

	// assigned viewing must not show up as unassigned history
	assignedSession, err := f.sessionSvc.Open(2, lesson.ID, nil, true, "")
	require.NoError(t, err)
	_, err = f.sessionSvc.Close(assignedSession.ID, "client")
	require.NoError(t, err)

	entries, err := svc.GetUnassignedHistory(1, 30)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 60, entries[0].Summary.CoverageSeconds)
	assert.False(t, entries[0].Credited)

	other, err := svc.GetUnassignedHistory(2, 30)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetUnassignedHistoryMarksCredited(t *testing.T) {
	f := newFixture()
	svc := newProgressService(f)
	lesson := f.addLesson(300)

	session := closedUnassignedSession(t, f, 1, lesson.ID, 0, 60, "ev-a")

	attempt, err := f.attempts.FindInProgress(1, lesson.ID)
	require.NoError(t, err)
	_, err = f.attemptSvc.MarkComplete(attempt.ID)
	require.NoError(t, err)

	assigned, err := f.attemptSvc.GetOrCreate(1, lesson.ID, true)
	require.NoError(t, err)
	_, err = f.attemptSvc.CreditUnassignedHistory(1, lesson.ID, assigned.ID, 30, 0)
	require.NoError(t, err)

	// once credited the session drops out of the unassigned listing
	entries, err := svc.GetUnassignedHistory(1, 30)
	require.NoError(t, err)
	assert.Empty(t, entries)

	reloaded, err := f.sessions.FindByID(session.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.CreditedAttemptID)
	assert.Equal(t, assigned.ID, *reloaded.CreditedAttemptID)
}
