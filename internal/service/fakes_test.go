package service

import (
	"fmt"
	"sort"
	"time"

	"video_progress_backend/internal/model"
	"video_progress_backend/internal/util"
)

// In-memory store fakes mirroring the repository contracts, including the
// unique-index and compare-and-set behaviour the services lean on.

type fakeLessonStore struct {
	lessons map[uint]*model.Lesson
	nextID  uint
}

func newFakeLessonStore() *fakeLessonStore {
	return &fakeLessonStore{lessons: map[uint]*model.Lesson{}, nextID: 1}
}

func (f *fakeLessonStore) Create(lesson *model.Lesson) error {
	lesson.ID = f.nextID
	f.nextID++
	cp := *lesson
	f.lessons[lesson.ID] = &cp
	return nil
}

func (f *fakeLessonStore) Save(lesson *model.Lesson) error {
	cp := *lesson
	f.lessons[lesson.ID] = &cp
	return nil
}

func (f *fakeLessonStore) FindByID(id uint) (*model.Lesson, error) {
	l, ok := f.lessons[id]
	if !ok {
		return nil, util.ErrLessonNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLessonStore) List(page, limit int) ([]model.Lesson, int64, error) {
	out := make([]model.Lesson, 0, len(f.lessons))
	for _, l := range f.lessons {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

type fakeAttemptStore struct {
	attempts map[uint]*model.LessonAttempt
	nextID   uint

	// when > 0, the next N UpdateAggregates calls fail
	failUpdates int
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: map[uint]*model.LessonAttempt{}, nextID: 1}
}

func (f *fakeAttemptStore) Create(attempt *model.LessonAttempt) error {
	for _, a := range f.attempts {
		if a.UserID == attempt.UserID && a.LessonID == attempt.LessonID && a.AttemptNo == attempt.AttemptNo {
			return util.ErrAggregationConflict
		}
	}
	attempt.ID = f.nextID
	f.nextID++
	cp := *attempt
	f.attempts[attempt.ID] = &cp
	return nil
}

func (f *fakeAttemptStore) Save(attempt *model.LessonAttempt) error {
	if _, ok := f.attempts[attempt.ID]; !ok {
		return util.ErrAttemptNotFound
	}
	cp := *attempt
	f.attempts[attempt.ID] = &cp
	return nil
}

func (f *fakeAttemptStore) FindByID(id uint) (*model.LessonAttempt, error) {
	a, ok := f.attempts[id]
	if !ok {
		return nil, util.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttemptStore) FindInProgress(userID, lessonID uint) (*model.LessonAttempt, error) {
	for _, a := range f.attempts {
		if a.UserID == userID && a.LessonID == lessonID && a.Status == model.AttemptInProgress {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAttemptStore) FindLatest(userID, lessonID uint) (*model.LessonAttempt, error) {
	var latest *model.LessonAttempt
	for _, a := range f.attempts {
		if a.UserID != userID || a.LessonID != lessonID {
			continue
		}
		if latest == nil || a.AttemptNo > latest.AttemptNo {
			latest = a
		}
	}
	if latest == nil {
		return nil, util.ErrAttemptNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeAttemptStore) ListByUserAndLesson(userID, lessonID uint) ([]model.LessonAttempt, error) {
	var out []model.LessonAttempt
	for _, a := range f.attempts {
		if a.UserID == userID && a.LessonID == lessonID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNo < out[j].AttemptNo })
	return out, nil
}

func (f *fakeAttemptStore) MaxAttemptNo(userID, lessonID uint) (int, error) {
	maxNo := 0
	for _, a := range f.attempts {
		if a.UserID == userID && a.LessonID == lessonID && a.AttemptNo > maxNo {
			maxNo = a.AttemptNo
		}
	}
	return maxNo, nil
}

func (f *fakeAttemptStore) UpdateAggregates(attemptID uint, apply func(*model.LessonAttempt) error) error {
	if f.failUpdates > 0 {
		f.failUpdates--
		return fmt.Errorf("simulated update failure")
	}
	a, ok := f.attempts[attemptID]
	if !ok {
		return util.ErrAttemptNotFound
	}
	cp := *a
	if err := apply(&cp); err != nil {
		return err
	}
	f.attempts[attemptID] = &cp
	return nil
}

type fakeSessionStore struct {
	sessions map[string]*model.WatchSession
	nextID   int

	// resolves is_assigned for ListUnassigned, like the repository subquery
	attempts *fakeAttemptStore
}

func newFakeSessionStore(attempts *fakeAttemptStore) *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]*model.WatchSession{}, nextID: 1, attempts: attempts}
}

func (f *fakeSessionStore) Create(session *model.WatchSession) error {
	if session.ID == "" {
		session.ID = fmt.Sprintf("sess-%d", f.nextID)
		f.nextID++
	}
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f *fakeSessionStore) FindByID(id string) (*model.WatchSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) Heartbeat(id string, at time.Time) error {
	s, ok := f.sessions[id]
	if !ok {
		return util.ErrSessionNotFound
	}
	s.LastHeartbeatAt = at
	return nil
}

func (f *fakeSessionStore) Close(id string, at time.Time) (bool, error) {
	s, ok := f.sessions[id]
	if !ok {
		return false, nil
	}
	if s.ClosedAt != nil {
		return false, nil
	}
	t := at
	s.ClosedAt = &t
	return true, nil
}

func (f *fakeSessionStore) MarkAggregated(id string, at time.Time) (bool, error) {
	s, ok := f.sessions[id]
	if !ok {
		return false, nil
	}
	if s.AggregatedAt != nil {
		return false, nil
	}
	t := at
	s.AggregatedAt = &t
	return true, nil
}

func (f *fakeSessionStore) ClearAggregated(id string) error {
	s, ok := f.sessions[id]
	if !ok {
		return util.ErrSessionNotFound
	}
	s.AggregatedAt = nil
	return nil
}

func (f *fakeSessionStore) ListByAttempt(attemptID uint) ([]model.WatchSession, error) {
	var out []model.WatchSession
	for _, s := range f.sessions {
		direct := s.LessonAttemptID != nil && *s.LessonAttemptID == attemptID
		credited := s.CreditedAttemptID != nil && *s.CreditedAttemptID == attemptID
		if direct || credited {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (f *fakeSessionStore) ListRecent(userID, lessonID uint, limit int) ([]model.WatchSession, error) {
	var out []model.WatchSession
	for _, s := range f.sessions {
		if s.UserID == userID && s.LessonID == lessonID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessionStore) ListUnassigned(userID uint, lessonID uint, since time.Time) ([]model.WatchSession, error) {
	var out []model.WatchSession
	for _, s := range f.sessions {
		if s.UserID != userID || s.CreditedAttemptID != nil {
			continue
		}
		if lessonID != 0 && s.LessonID != lessonID {
			continue
		}
		if s.StartedAt.Before(since) {
			continue
		}
		if s.LessonAttemptID != nil {
			a, ok := f.attempts.attempts[*s.LessonAttemptID]
			if ok && a.IsAssigned {
				continue
			}
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (f *fakeSessionStore) ListStale(olderThan time.Time, limit int) ([]model.WatchSession, error) {
	var out []model.WatchSession
	for _, s := range f.sessions {
		if s.ClosedAt == nil && s.LastHeartbeatAt.Before(olderThan) {
			out = append(out, *s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessionStore) SetCreditedAttempt(sessionIDs []string, attemptID uint) error {
	for _, id := range sessionIDs {
		if s, ok := f.sessions[id]; ok {
			a := attemptID
			s.CreditedAttemptID = &a
		}
	}
	return nil
}

func (f *fakeSessionStore) ClearCreditedAttempt(sessionIDs []string, attemptID uint) error {
	for _, id := range sessionIDs {
		if s, ok := f.sessions[id]; ok && s.CreditedAttemptID != nil && *s.CreditedAttemptID == attemptID {
			s.CreditedAttemptID = nil
		}
	}
	return nil
}

type fakeSegmentStore struct {
	segments []model.WatchSegment
	nextID   uint

	// resolves session -> attempt for ListByAttempt, like the repository join
	sessions *fakeSessionStore
}

func newFakeSegmentStore(sessions *fakeSessionStore) *fakeSegmentStore {
	return &fakeSegmentStore{nextID: 1, sessions: sessions}
}

func (f *fakeSegmentStore) Insert(segment *model.WatchSegment) error {
	for _, s := range f.segments {
		if s.SessionID == segment.SessionID && s.ClientEventID == segment.ClientEventID {
			return util.ErrDuplicateSegment
		}
	}
	segment.ID = f.nextID
	f.nextID++
	f.segments = append(f.segments, *segment)
	return nil
}

func (f *fakeSegmentStore) ListBySession(sessionID string) ([]model.WatchSegment, error) {
	var out []model.WatchSegment
	for _, s := range f.segments {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSegmentStore) ListBySessionIDs(sessionIDs []string) ([]model.WatchSegment, error) {
	wanted := map[string]bool{}
	for _, id := range sessionIDs {
		wanted[id] = true
	}
	var out []model.WatchSegment
	for _, s := range f.segments {
		if wanted[s.SessionID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSegmentStore) ListByAttempt(attemptID uint) ([]model.WatchSegment, error) {
	sessions, _ := f.sessions.ListByAttempt(attemptID)
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return f.ListBySessionIDs(ids)
}

type fakeSeekStore struct {
	seeks  []model.SeekEvent
	nextID uint
}

func newFakeSeekStore() *fakeSeekStore {
	return &fakeSeekStore{nextID: 1}
}

func (f *fakeSeekStore) Insert(seek *model.SeekEvent) error {
	if seek.ClientEventID != nil {
		for _, s := range f.seeks {
			if s.SessionID == seek.SessionID && s.ClientEventID != nil && *s.ClientEventID == *seek.ClientEventID {
				return util.ErrDuplicateSeek
			}
		}
	}
	seek.ID = f.nextID
	f.nextID++
	f.seeks = append(f.seeks, *seek)
	return nil
}

func (f *fakeSeekStore) ListBySession(sessionID string) ([]model.SeekEvent, error) {
	var out []model.SeekEvent
	for _, s := range f.seeks {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSeekStore) CountSkipsBySession(sessionID string) (int64, error) {
	var count int64
	for _, s := range f.seeks {
		if s.SessionID == sessionID && s.IsSkip {
			count++
		}
	}
	return count, nil
}

// fixture wires the whole service graph over the fakes.
type fixture struct {
	lessons  *fakeLessonStore
	attempts *fakeAttemptStore
	sessions *fakeSessionStore
	segments *fakeSegmentStore
	seeks    *fakeSeekStore

	attemptSvc *AttemptService
	sessionSvc *SessionService
	segmentSvc *SegmentService
	seekSvc    *SeekService
}

func newFixture() *fixture {
	f := &fixture{
		lessons:  newFakeLessonStore(),
		attempts: newFakeAttemptStore(),
		seeks:    newFakeSeekStore(),
	}
	f.sessions = newFakeSessionStore(f.attempts)
	f.segments = newFakeSegmentStore(f.sessions)

	f.attemptSvc = NewAttemptService(f.attempts, f.sessions, f.segments, f.lessons)
	f.sessionSvc = NewSessionService(f.sessions, f.segments, f.seeks, f.attemptSvc, 5)
	f.segmentSvc = NewSegmentService(f.segments, f.sessions)
	f.seekSvc = NewSeekService(f.seeks, f.sessions, DefaultSkipThresholdSeconds, false)
	return f
}

func (f *fixture) addLesson(durationSeconds int) *model.Lesson {
	lesson := &model.Lesson{Title: "lesson", DurationSeconds: durationSeconds, IsPublished: true}
	f.lessons.Create(lesson)
	return lesson
}
