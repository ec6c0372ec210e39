// Package presence coordinates live rooms. Each active room is served by one
// actor goroutine that owns its roster and connections; every operation on a
// room runs inside that actor, one at a time.
package presence

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/metrics"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/service"
	ws "github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/websocket"
)

// Lifecycle is implemented by service.RoomService.
type Lifecycle interface {
	GetRoom(ctx context.Context, code string) (*model.Room, error)
	StartExam(ctx context.Context, code, teacherID string) (*model.Room, error)
	EndExam(ctx context.Context, code string, actor service.Actor) (*model.Room, bool, error)
}

// Attempts is implemented by service.SubmissionService.
type Attempts interface {
	StartAttempt(ctx context.Context, code, studentID string) (*model.Submission, error)
	Submit(ctx context.Context, code, studentID string, answers []model.AnswerInput) (*model.Submission, error)
	SaveAnswer(ctx context.Context, code, studentID, questionID string, answer model.Answer) error
	RecordViolation(ctx context.Context, code, studentID string, t model.ViolationType) (bool, error)
}

const (
	// MinPresenceTTL outlives one server ping plus the pong write window, so a
	// quiet client that answers pings is never evicted.
	MinPresenceTTL = ws.PingPeriod + ws.WriteWait
	// DefaultPresenceTTL leaves headroom over MinPresenceTTL for slow links.
	DefaultPresenceTTL = 75 * time.Second
)

// Options tunes the hub. Zero values take the defaults below; a PresenceTTL
// below MinPresenceTTL is raised to DefaultPresenceTTL.
type Options struct {
	MailboxSize    int
	MailboxTimeout time.Duration
	PresenceTTL    time.Duration
	SweepInterval  time.Duration
	IdleTimeout    time.Duration
	PublishTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.MailboxSize <= 0 {
		o.MailboxSize = 256
	}
	if o.MailboxTimeout <= 0 {
		o.MailboxTimeout = 3 * time.Second
	}
	if o.PresenceTTL < MinPresenceTTL {
		o.PresenceTTL = DefaultPresenceTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 10 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = time.Second
	}
}

// JoinRequest is what a client asks for when joining. UserID and Role are
// optional and must match the client's identity when set.
type JoinRequest struct {
	RoomCode string
	UserID   string
	UserName string
	Role     model.Role
}

// Hub is the registry of room actors.
type Hub struct {
	lifecycle Lifecycle
	attempts  Attempts
	pub       Publisher
	opts      Options
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	rooms    map[string]*actor
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub. pub may be nil.
func NewHub(lifecycle Lifecycle, attempts Attempts, pub Publisher, opts Options, log zerolog.Logger) *Hub {
	if opts.PresenceTTL > 0 && opts.PresenceTTL < MinPresenceTTL {
		log.Warn().
			Dur("presence_ttl", opts.PresenceTTL).
			Dur("min_presence_ttl", MinPresenceTTL).
			Msg("Presence TTL shorter than the ping interval, using the default")
	}
	opts.withDefaults()
	if pub == nil {
		pub = nopPublisher{}
	}
	return &Hub{
		lifecycle: lifecycle,
		attempts:  attempts,
		pub:       pub,
		opts:      opts,
		log:       log.With().Str("component", "presence").Logger(),
		now:       time.Now,
		rooms:     make(map[string]*actor),
		stop:      make(chan struct{}),
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// actorFor returns the live actor of a room, starting one when needed.
func (h *Hub) actorFor(code string) *actor {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.stop:
		return nil
	default:
	}
	if a, ok := h.rooms[code]; ok {
		return a
	}
	a := newActor(h, code)
	h.rooms[code] = a
	metrics.ActiveRooms.Inc()
	go a.run()
	return a
}

// retire unregisters a and closes its done channel. Called by a itself.
func (h *Hub) retire(a *actor) {
	h.mu.Lock()
	if h.rooms[a.code] == a {
		delete(h.rooms, a.code)
		metrics.ActiveRooms.Dec()
	}
	h.mu.Unlock()
	close(a.done)
}

// ActiveRooms returns the number of running actors.
func (h *Hub) ActiveRooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close stops every actor and closes their connections.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

type result[T any] struct {
	v   T
	err error
}

// maxDeliveries bounds retries when an actor retires under a caller.
const maxDeliveries = 3

// Job states. A job is claimed by exactly one side: the actor starts it or
// the caller abandons it.
const (
	jobQueued int32 = iota
	jobStarted
	jobAbandoned
)

// call runs fn inside the room's actor and waits for its result. A job that
// has not started within MailboxTimeout, or before ctx ends, is abandoned and
// the call fails with ServiceUnavailable. Abandoned jobs are skipped by the actor.
func call[T any](ctx context.Context, h *Hub, code string, fn func(a *actor) (T, error)) (T, error) {
	var zero T
	code = normalizeCode(code)
	if code == "" {
		return zero, apperror.Validation("room code is required")
	}

	timer := time.NewTimer(h.opts.MailboxTimeout)
	defer timer.Stop()

	busy := func(cause error) (T, error) {
		metrics.MailboxRejections.Inc()
		h.log.Warn().Str("room_code", code).Msg("Room actor busy")
		return zero, apperror.ServiceUnavailable(cause, "room %s is busy, try again", code)
	}

	for i := 0; i < maxDeliveries; i++ {
		a := h.actorFor(code)
		if a == nil {
			return zero, apperror.ServiceUnavailable(nil, "server is shutting down")
		}

		var state atomic.Int32
		started := make(chan struct{})
		res := make(chan result[T], 1)
		job := func() {
			if !state.CompareAndSwap(jobQueued, jobStarted) {
				return
			}
			close(started)
			v, err := fn(a)
			res <- result[T]{v, err}
		}
		abandon := func() bool { return state.CompareAndSwap(jobQueued, jobAbandoned) }

		select {
		case a.mailbox <- job:
		case <-a.done:
			continue
		case <-timer.C:
			return busy(nil)
		case <-ctx.Done():
			return busy(ctx.Err())
		}

		select {
		case <-started:
		case <-a.done:
			if abandon() {
				continue
			}
		case <-timer.C:
			if abandon() {
				return busy(nil)
			}
		case <-ctx.Done():
			if abandon() {
				return busy(ctx.Err())
			}
		}

		// Once started the job runs to completion inside the actor and
		// stores its result before the actor can retire.
		r := <-res
		return r.v, r.err
	}
	return zero, apperror.ServiceUnavailable(nil, "room %s is restarting, try again", code)
}

// Join adds the client to a room's roster and replies with the room snapshot.
func (h *Hub) Join(ctx context.Context, c *Client, req JoinRequest) (*ws.JoinedRoomData, error) {
	if req.UserID != "" && req.UserID != c.UserID {
		return nil, apperror.Forbidden("user id does not match the token")
	}
	if req.Role != "" && req.Role != c.Role {
		return nil, apperror.Forbidden("role does not match the token")
	}
	code := normalizeCode(req.RoomCode)
	if current := c.RoomCode(); current != "" && current != code {
		return nil, apperror.InvalidState("connection already joined room %s", current)
	}
	if c.Name == "" {
		c.Name = req.UserName
	}

	return call(ctx, h, code, func(a *actor) (*ws.JoinedRoomData, error) {
		return a.join(ctx, c)
	})
}

// Leave removes the client's user from the roster of its room.
func (h *Hub) Leave(ctx context.Context, c *Client) error {
	code := c.RoomCode()
	if code == "" {
		return apperror.InvalidState("not in a room")
	}
	_, err := call(ctx, h, code, func(a *actor) (struct{}, error) {
		a.leave(c)
		return struct{}{}, nil
	})
	return err
}

// Detach forgets a closed connection. The user leaves the roster once no
// other connection of theirs remains.
func (h *Hub) Detach(c *Client) {
	code := c.RoomCode()
	if code == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.MailboxTimeout)
	defer cancel()
	_, err := call(ctx, h, code, func(a *actor) (struct{}, error) {
		a.detach(c)
		return struct{}{}, nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("room_code", code).Str("user_id", c.UserID).Msg("Detach failed")
	}
}

// Roster returns the current roster of a room.
func (h *Hub) Roster(ctx context.Context, code string) (model.RosterSnapshot, error) {
	return call(ctx, h, code, func(a *actor) (model.RosterSnapshot, error) {
		if _, err := a.loadRoom(ctx); err != nil {
			return model.RosterSnapshot{}, err
		}
		return a.snapshot(), nil
	})
}

// StartExam starts the exam and notifies the room.
func (h *Hub) StartExam(ctx context.Context, code, teacherID string) (*model.Room, error) {
	return call(ctx, h, code, func(a *actor) (*model.Room, error) {
		room, err := h.lifecycle.StartExam(ctx, a.code, teacherID)
		if err != nil {
			return nil, err
		}
		a.room = room
		a.broadcast(ws.EventExamStarted, ws.ExamStartedData{
			RoomCode:  room.Code,
			StartTime: *room.StartTime,
			EndTime:   *room.EndTime,
			Duration:  room.DurationMinutes,
			Message:   "The exam has started",
		}, false)
		return room, nil
	})
}

// EndExam ends the exam on the owner's request.
func (h *Hub) EndExam(ctx context.Context, code, teacherID string) (*model.Room, error) {
	return call(ctx, h, code, func(a *actor) (*model.Room, error) {
		return a.end(ctx, service.TeacherActor(teacherID), "The exam was ended by the teacher")
	})
}

// ExpireRoom ends the exam when its deadline passes. It is the watchdog callback.
func (h *Hub) ExpireRoom(ctx context.Context, code string) error {
	_, err := call(ctx, h, code, func(a *actor) (*model.Room, error) {
		return a.end(ctx, service.SystemActor, "Time is up")
	})
	return err
}

// BeginAttempt opens the student's attempt.
func (h *Hub) BeginAttempt(ctx context.Context, c *Client, code string) (*model.Submission, error) {
	return call(ctx, h, code, func(a *actor) (*model.Submission, error) {
		if err := a.requireStudent(c); err != nil {
			return nil, err
		}
		return h.attempts.StartAttempt(ctx, a.code, c.UserID)
	})
}

// SaveAnswer autosaves one draft answer.
func (h *Hub) SaveAnswer(ctx context.Context, c *Client, code, questionID string, answer model.Answer) error {
	_, err := call(ctx, h, code, func(a *actor) (struct{}, error) {
		if err := a.requireStudent(c); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, h.attempts.SaveAnswer(ctx, a.code, c.UserID, questionID, answer)
	})
	return err
}

// Submit grades the student's attempt and notifies the room.
func (h *Hub) Submit(ctx context.Context, c *Client, code string, answers []model.AnswerInput) (*model.Submission, error) {
	return call(ctx, h, code, func(a *actor) (*model.Submission, error) {
		if err := a.requireStudent(c); err != nil {
			return nil, err
		}
		sub, err := h.attempts.Submit(ctx, a.code, c.UserID, answers)
		if err != nil {
			return nil, err
		}
		a.broadcast(ws.EventStudentSubmitted, ws.StudentSubmittedData{
			RoomCode:    a.code,
			StudentID:   c.UserID,
			SubmittedAt: *sub.SubmittedAt,
		}, false)
		return sub, nil
	})
}

// ReportViolation records a proctoring signal and tells the teachers.
func (h *Hub) ReportViolation(ctx context.Context, c *Client, code string, t model.ViolationType) error {
	_, err := call(ctx, h, code, func(a *actor) (struct{}, error) {
		if err := a.requireStudent(c); err != nil {
			return struct{}{}, err
		}
		recorded, err := h.attempts.RecordViolation(ctx, a.code, c.UserID, t)
		if err != nil || !recorded {
			return struct{}{}, err
		}
		a.broadcast(ws.EventViolationReported, ws.ViolationReportedData{
			RoomCode:  a.code,
			StudentID: c.UserID,
			Type:      t,
			At:        h.now().UTC(),
		}, true)
		return struct{}{}, nil
	})
	return err
}
