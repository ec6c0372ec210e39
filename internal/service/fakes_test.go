package service

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/repository"
)

// fakeRoomStore mimics the conditional updates of RoomRepository.
type fakeRoomStore struct {
	mu        sync.Mutex
	rooms     map[string]*model.Room
	conflicts int // Create fails with ErrConflict this many times first
	creates   int
	subs      *fakeSubmissionStore
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{rooms: map[string]*model.Room{}}
}

func (f *fakeRoomStore) put(r *model.Room) *model.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Code = strings.ToUpper(r.Code)
	cp := *r
	f.rooms[r.Code] = &cp
	return r
}

func (f *fakeRoomStore) Create(_ context.Context, room *model.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.conflicts > 0 {
		f.conflicts--
		return repository.ErrConflict
	}
	code := strings.ToUpper(room.Code)
	if _, ok := f.rooms[code]; ok {
		return repository.ErrConflict
	}
	room.ID = uuid.New()
	room.Code = code
	room.Status = model.RoomStatusWaiting
	room.CreatedAt = time.Now()
	room.UpdatedAt = room.CreatedAt
	cp := *room
	f.rooms[code] = &cp
	return nil
}

func (f *fakeRoomStore) GetByCode(_ context.Context, code string) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[strings.ToUpper(code)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRoomStore) ListByTeacher(_ context.Context, teacherID string, limit, offset int) ([]model.Room, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.Room
	for _, r := range f.rooms {
		if r.TeacherID == teacherID {
			all = append(all, *r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeRoomStore) transition(code string, from model.RoomStatus, apply func(r *model.Room)) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[strings.ToUpper(code)]
	if !ok || r.Status != from {
		return nil, repository.ErrNoTransition
	}
	apply(r)
	cp := *r
	return &cp, nil
}

func (f *fakeRoomStore) MarkRunning(_ context.Context, code string, start, end time.Time) (*model.Room, error) {
	return f.transition(code, model.RoomStatusWaiting, func(r *model.Room) {
		r.Status = model.RoomStatusRunning
		r.StartTime, r.EndTime = &start, &end
	})
}

func (f *fakeRoomStore) MarkEnded(_ context.Context, code string, endTime *time.Time) (*model.Room, error) {
	return f.transition(code, model.RoomStatusRunning, func(r *model.Room) {
		r.Status = model.RoomStatusEnded
		if endTime != nil {
			r.EndTime = endTime
		}
	})
}

func (f *fakeRoomStore) SetPublish(_ context.Context, code string, publish bool) (*model.Room, error) {
	return f.transition(code, model.RoomStatusEnded, func(r *model.Room) {
		r.PublishAnalysis = publish
	})
}

func (f *fakeRoomStore) DeleteWaiting(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[strings.ToUpper(code)]
	if !ok || r.Status != model.RoomStatusWaiting {
		return repository.ErrNoTransition
	}
	delete(f.rooms, r.Code)
	return nil
}

func (f *fakeRoomStore) list(match func(r *model.Room) bool) []model.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Room
	for _, r := range f.rooms {
		if match(r) {
			out = append(out, *r)
		}
	}
	return out
}

func (f *fakeRoomStore) ListRunning(context.Context) ([]model.Room, error) {
	return f.list(func(r *model.Room) bool { return r.Status == model.RoomStatusRunning }), nil
}

// ListEndedWithPending consults subs, which tests set when they need it.
func (f *fakeRoomStore) ListEndedWithPending(ctx context.Context) ([]model.Room, error) {
	if f.subs == nil {
		return nil, nil
	}
	ended := f.list(func(r *model.Room) bool { return r.Status == model.RoomStatusEnded })
	var out []model.Room
	for _, r := range ended {
		if open, _ := f.subs.ListInProgress(ctx, r.ID); len(open) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

type subKey struct {
	room    uuid.UUID
	student string
}

// fakeSubmissionStore enforces one row per (room, student) and the
// in-progress guard of Finalize and SaveDraft.
type fakeSubmissionStore struct {
	mu   sync.Mutex
	rows map[subKey]*model.Submission
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{rows: map[subKey]*model.Submission{}}
}

func clone(s *model.Submission) *model.Submission {
	cp := *s
	cp.Drafts = maps.Clone(s.Drafts)
	cp.Answers = append([]model.GradedAnswer(nil), s.Answers...)
	return &cp
}

func (f *fakeSubmissionStore) CreateAttempt(_ context.Context, roomID uuid.UUID, studentID, quizID string, startedAt time.Time) (*model.Submission, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := subKey{roomID, studentID}
	if s, ok := f.rows[k]; ok {
		return clone(s), false, nil
	}
	s := &model.Submission{
		ID:        uuid.New(),
		RoomID:    roomID,
		StudentID: studentID,
		QuizID:    quizID,
		Status:    model.SubmissionInProgress,
		StartedAt: startedAt,
		Drafts:    map[string]model.Answer{},
	}
	f.rows[k] = s
	return clone(s), true, nil
}

func (f *fakeSubmissionStore) Get(_ context.Context, roomID uuid.UUID, studentID string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[subKey{roomID, studentID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s), nil
}

func (f *fakeSubmissionStore) SaveDraft(_ context.Context, roomID uuid.UUID, studentID, questionID string, answer model.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[subKey{roomID, studentID}]
	if !ok || s.Status != model.SubmissionInProgress {
		return repository.ErrNoTransition
	}
	s.Drafts[questionID] = answer
	return nil
}

func (f *fakeSubmissionStore) Finalize(_ context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[subKey{sub.RoomID, sub.StudentID}]
	if !ok || s.Status != model.SubmissionInProgress {
		return repository.ErrNoTransition
	}
	stored := clone(sub)
	stored.Drafts = s.Drafts
	f.rows[subKey{sub.RoomID, sub.StudentID}] = stored
	return nil
}

func (f *fakeSubmissionStore) filter(roomID uuid.UUID, match func(*model.Submission) bool) []model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Submission
	for k, s := range f.rows {
		if k.room == roomID && match(s) {
			out = append(out, *clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

func (f *fakeSubmissionStore) ListByRoom(_ context.Context, roomID uuid.UUID) ([]model.Submission, error) {
	return f.filter(roomID, func(*model.Submission) bool { return true }), nil
}

func (f *fakeSubmissionStore) ListInProgress(_ context.Context, roomID uuid.UUID) ([]model.Submission, error) {
	return f.filter(roomID, func(s *model.Submission) bool { return s.Status == model.SubmissionInProgress }), nil
}

type fakeQuizStore map[string]*model.Quiz

func (f fakeQuizStore) GetQuiz(_ context.Context, id string) (*model.Quiz, error) {
	q, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return q, nil
}

type armCall struct {
	code string
	at   time.Time
}

type fakeScheduler struct {
	mu        sync.Mutex
	armed     []armCall
	cancelled []string
}

func (f *fakeScheduler) Arm(_ context.Context, code string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = append(f.armed, armCall{code, at})
	return nil
}

func (f *fakeScheduler) Cancel(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, code)
	return nil
}

type queuedViolation struct {
	submissionID uuid.UUID
	t            model.ViolationType
}

type fakeSink struct {
	mu     sync.Mutex
	err    error
	events []queuedViolation
}

func (f *fakeSink) Enqueue(_ context.Context, id uuid.UUID, t model.ViolationType, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, queuedViolation{id, t})
	return nil
}

type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate(context.Context, uuid.UUID) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// fixture wires the services over the fakes with a controllable clock.
type fixture struct {
	rooms     *fakeRoomStore
	subs      *fakeSubmissionStore
	quizzes   fakeQuizStore
	scheduler *fakeScheduler
	sink      *fakeSink
	stats     *countingInvalidator
	roomSvc   *RoomService
	subSvc    *SubmissionService
	clock     time.Time
}

const testGrace = 5 * time.Second

func newFixture() *fixture {
	f := &fixture{
		rooms:     newFakeRoomStore(),
		subs:      newFakeSubmissionStore(),
		quizzes:   fakeQuizStore{"quiz-1": {ID: "quiz-1", Title: "Arithmetic", Questions: mixedQuiz()}},
		scheduler: &fakeScheduler{},
		sink:      &fakeSink{},
		stats:     &countingInvalidator{},
		clock:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.rooms.subs = f.subs
	log := zerolog.Nop()
	f.subSvc = NewSubmissionService(f.rooms, f.subs, f.quizzes, f.sink, f.stats, testGrace, log)
	f.roomSvc = NewRoomService(f.rooms, f.quizzes, f.scheduler, f.subSvc, testGrace, 240, log)
	now := func() time.Time { return f.clock }
	f.subSvc.now = now
	f.roomSvc.now = now
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// runningRoom creates and starts a room owned by teacher-1.
func (f *fixture) runningRoom(ctx context.Context, settings model.RoomSettings) *model.Room {
	room, err := f.roomSvc.CreateRoom(ctx, CreateRoomInput{
		TeacherID:       "teacher-1",
		QuizID:          "quiz-1",
		DurationMinutes: 10,
		Settings:        settings,
	})
	if err != nil {
		panic(err)
	}
	room, err = f.roomSvc.StartExam(ctx, room.Code, "teacher-1")
	if err != nil {
		panic(err)
	}
	return room
}
