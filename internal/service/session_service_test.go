package service

import (
	"testing"
	"time"

	"video_progress_backend/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionOpenResolvesAttempt(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	session, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "web/1.0")
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	require.NotNil(t, session.LessonAttemptID)
	assert.Equal(t, "web/1.0", session.ClientInfo)

	attempt, err := f.attempts.FindByID(*session.LessonAttemptID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), attempt.UserID)
	assert.True(t, attempt.IsAssigned)

	// a second session joins the same attempt
	another, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)
	assert.Equal(t, *session.LessonAttemptID, *another.LessonAttemptID)
	assert.NotEqual(t, session.ID, another.ID)
}

func TestSessionOpenWithExplicitAttempt(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	attempt, err := f.attemptSvc.GetOrCreate(1, lesson.ID, true)
	require.NoError(t, err)

	session, err := f.sessionSvc.Open(1, lesson.ID, &attempt.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, *session.LessonAttemptID)
}

func TestSessionOpenRejectsForeignAttempt(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	attempt, err := f.attemptSvc.GetOrCreate(1, lesson.ID, true)
	require.NoError(t, err)

	_, err = f.sessionSvc.Open(2, lesson.ID, &attempt.ID, true, "")
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestSessionCloseAggregates(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	session, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)

	_, err = f.segmentSvc.Record(session.ID, []SegmentInput{
		{ClientEventID: "ev-1", StartSecond: 0, EndSecond: 60, Speed: 1},
		{ClientEventID: "ev-2", StartSecond: 60, EndSecond: 120, Speed: 2},
	})
	require.NoError(t, err)

	_, err = f.seekSvc.Record(session.ID, []SeekInput{
		{FromSecond: 120, ToSecond: 200, Allowed: false},
	})
	require.NoError(t, err)

	closed, err := f.sessionSvc.Close(session.ID, "client")
	require.NoError(t, err)
	assert.True(t, closed.IsClosed())

	attempt, err := f.attempts.FindByID(*session.LessonAttemptID)
	require.NoError(t, err)
	// 60 at 1x + 60 at 2x
	assert.True(t, attempt.TotalEffectiveSeconds.Equal(decimal.NewFromInt(90)),
		"got %s", attempt.TotalEffectiveSeconds)
	assert.Equal(t, 120, attempt.CoverageSeconds)
	assert.Equal(t, 120, attempt.MaxVerifiedSecond)
	assert.Equal(t, 1, attempt.SkipEventCount)
}

func TestSessionDuplicateCloseDoesNotDoubleCount(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	session, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)

	_, err = f.segmentSvc.Record(session.ID, []SegmentInput{
		{ClientEventID: "ev-1", StartSecond: 0, EndSecond: 100, Speed: 1},
	})
	require.NoError(t, err)

	_, err = f.sessionSvc.Close(session.ID, "client")
	require.NoError(t, err)

	// the client retries the close
	again, err := f.sessionSvc.Close(session.ID, "client")
	require.NoError(t, err)
	assert.True(t, again.IsClosed())

	attempt, err := f.attempts.FindByID(*session.LessonAttemptID)
	require.NoError(t, err)
	assert.True(t, attempt.TotalEffectiveSeconds.Equal(decimal.NewFromInt(100)),
		"got %s", attempt.TotalEffectiveSeconds)
	assert.Equal(t, 100, attempt.CoverageSeconds)
}

func TestSessionCloseRetryAfterAggregateFailure(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	session, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)
	_, err = f.segmentSvc.Record(session.ID, []SegmentInput{
		{ClientEventID: "ev-1", StartSecond: 0, EndSecond: 100, Speed: 1},
	})
	require.NoError(t, err)

	// every aggregate write fails: the close errors out
	f.attempts.failUpdates = applyRetries
	_, err = f.sessionSvc.Close(session.ID, "client")
	require.ErrorIs(t, err, util.ErrAggregationConflict)

	// the failure must not consume the once-only marker
	reloaded, err := f.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsClosed())
	assert.Nil(t, reloaded.AggregatedAt)

	// storage recovered: the retried close adds the session's time after all
	closed, err := f.sessionSvc.Close(session.ID, "client")
	require.NoError(t, err)
	assert.NotNil(t, closed.AggregatedAt)

	attempt, err := f.attempts.FindByID(*session.LessonAttemptID)
	require.NoError(t, err)
	assert.True(t, attempt.TotalEffectiveSeconds.Equal(decimal.NewFromInt(100)),
		"got %s", attempt.TotalEffectiveSeconds)
	assert.Equal(t, 100, attempt.CoverageSeconds)

	// and a further close stays a no-op
	_, err = f.sessionSvc.Close(session.ID, "client")
	require.NoError(t, err)
	attempt, err = f.attempts.FindByID(*session.LessonAttemptID)
	require.NoError(t, err)
	assert.True(t, attempt.TotalEffectiveSeconds.Equal(decimal.NewFromInt(100)))
}

func TestSessionCloseAcrossSessionsAccumulates(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	first, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)
	_, err = f.segmentSvc.Record(first.ID, []SegmentInput{
		{ClientEventID: "ev-1", StartSecond: 0, EndSecond: 100, Speed: 1},
	})
	require.NoError(t, err)
	_, err = f.sessionSvc.Close(first.ID, "client")
	require.NoError(t, err)

	// second sitting overlaps the first one's range
	second, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)
	_, err = f.segmentSvc.Record(second.ID, []SegmentInput{
		{ClientEventID: "ev-1", StartSecond: 50, EndSecond: 200, Speed: 1},
	})
	require.NoError(t, err)
	_, err = f.sessionSvc.Close(second.ID, "client")
	require.NoError(t, err)

	attempt, err := f.attempts.FindByID(*first.LessonAttemptID)
	require.NoError(t, err)
	// effective time counts both sittings in full
	assert.True(t, attempt.TotalEffectiveSeconds.Equal(decimal.NewFromInt(250)),
		"got %s", attempt.TotalEffectiveSeconds)
	// coverage merges the overlap
	assert.Equal(t, 200, attempt.CoverageSeconds)
	assert.Equal(t, 200, attempt.MaxVerifiedSecond)
}

func TestSessionCloseNotifiesListener(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	var gotUser, gotLesson uint
	calls := 0
	f.sessionSvc.SetAggregationListener(func(userID, lessonID uint) {
		gotUser, gotLesson = userID, lessonID
		calls++
	})

	session, err := f.sessionSvc.Open(7, lesson.ID, nil, true, "")
	require.NoError(t, err)
	_, err = f.sessionSvc.Close(session.ID, "client")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint(7), gotUser)
	assert.Equal(t, lesson.ID, gotLesson)
}

func TestSessionCloseUnknown(t *testing.T) {
	f := newFixture()
	_, err := f.sessionSvc.Close("missing", "client")
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestHeartbeat(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	session, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)

	before := f.sessions.sessions[session.ID].LastHeartbeatAt
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, f.sessionSvc.Heartbeat(session.ID))
	after := f.sessions.sessions[session.ID].LastHeartbeatAt
	assert.True(t, after.After(before))

	assert.ErrorIs(t, f.sessionSvc.Heartbeat("missing"), util.ErrSessionNotFound)
}

func TestReapStaleClosesAndAggregates(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	stale, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)
	_, err = f.segmentSvc.Record(stale.ID, []SegmentInput{
		{ClientEventID: "ev-1", StartSecond: 0, EndSecond: 30, Speed: 1},
	})
	require.NoError(t, err)

	fresh, err := f.sessionSvc.Open(2, lesson.ID, nil, true, "")
	require.NoError(t, err)

	// quiet for 10 minutes against a 5 minute timeout
	f.sessions.sessions[stale.ID].LastHeartbeatAt = time.Now().Add(-10 * time.Minute)

	reaped, err := f.sessionSvc.ReapStale()
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	reloaded, err := f.sessions.FindByID(stale.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsClosed())

	untouched, err := f.sessions.FindByID(fresh.ID)
	require.NoError(t, err)
	assert.False(t, untouched.IsClosed())

	// the reaped session's progress landed on its attempt
	attempt, err := f.attempts.FindByID(*stale.LessonAttemptID)
	require.NoError(t, err)
	assert.True(t, attempt.TotalEffectiveSeconds.Equal(decimal.NewFromInt(30)))
}

func TestReapStaleHonorsUpdatedTimeout(t *testing.T) {
	f := newFixture()
	lesson := f.addLesson(600)

	session, err := f.sessionSvc.Open(1, lesson.ID, nil, true, "")
	require.NoError(t, err)
	f.sessions.sessions[session.ID].LastHeartbeatAt = time.Now().Add(-3 * time.Minute)

	// 5 minute default: not stale yet
	reaped, err := f.sessionSvc.ReapStale()
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)

	// tightened to 1 minute by a config reload
	f.sessionSvc.UpdateSettings(1)
	reaped, err = f.sessionSvc.ReapStale()
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
}
