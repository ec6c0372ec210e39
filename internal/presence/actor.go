package presence

import (
	"context"
	"sort"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/service"
	ws "github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/websocket"
)

// entry is one roster line. A user may hold several connections.
type entry struct {
	participant model.Participant
	conns       map[*Client]struct{}
}

func (e *entry) lastSeen() time.Time {
	var last time.Time
	for c := range e.conns {
		if t := c.LastSeen(); t.After(last) {
			last = t
		}
	}
	return last
}

// actor owns the state of one room. Its fields are only touched from run.
type actor struct {
	hub     *Hub
	code    string
	mailbox chan func()
	done    chan struct{}

	room      *model.Room
	roster    map[string]*entry
	clients   map[*Client]struct{}
	idleSince time.Time
}

func newActor(h *Hub, code string) *actor {
	return &actor{
		hub:       h,
		code:      code,
		mailbox:   make(chan func(), h.opts.MailboxSize),
		done:      make(chan struct{}),
		roster:    make(map[string]*entry),
		clients:   make(map[*Client]struct{}),
		idleSince: h.now(),
	}
}

func (a *actor) run() {
	ticker := time.NewTicker(a.hub.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case job := <-a.mailbox:
			job()
			a.idleSince = a.hub.now()
		case <-ticker.C:
			a.sweep()
			if a.idle() {
				a.hub.log.Debug().Str("room_code", a.code).Msg("Room actor idle, stopping")
				a.hub.retire(a)
				return
			}
		case <-a.hub.stop:
			for c := range a.clients {
				c.Close()
			}
			a.hub.retire(a)
			return
		}
	}
}

func (a *actor) idle() bool {
	return len(a.clients) == 0 && len(a.roster) == 0 &&
		a.hub.now().Sub(a.idleSince) >= a.hub.opts.IdleTimeout
}

// loadRoom refreshes the cached room from storage.
func (a *actor) loadRoom(ctx context.Context) (*model.Room, error) {
	room, err := a.hub.lifecycle.GetRoom(ctx, a.code)
	if err != nil {
		return nil, err
	}
	a.room = room
	return room, nil
}

func (a *actor) join(ctx context.Context, c *Client) (*ws.JoinedRoomData, error) {
	room, err := a.loadRoom(ctx)
	if err != nil {
		return nil, err
	}

	owner := c.Role == model.RoleTeacher && room.IsOwner(c.UserID)
	if c.Role == model.RoleTeacher && !owner {
		return nil, apperror.Forbidden("only the owning teacher can join room %s as teacher", room.Code)
	}
	if room.Status == model.RoomStatusEnded && !owner {
		return nil, apperror.RoomClosed("room %s has ended", room.Code)
	}

	e, known := a.roster[c.UserID]
	if !known && c.Role == model.RoleStudent && room.MaxStudents != nil && a.studentCount() >= *room.MaxStudents {
		return nil, apperror.RoomFull("room %s is full", room.Code)
	}
	if !known {
		e = &entry{
			participant: model.Participant{
				UserID:   c.UserID,
				Role:     c.Role,
				JoinedAt: a.hub.now().UTC(),
			},
			conns: make(map[*Client]struct{}),
		}
		a.roster[c.UserID] = e
	}
	if c.Name != "" {
		e.participant.Name = c.Name
	}
	e.conns[c] = struct{}{}
	a.clients[c] = struct{}{}
	c.setRoom(a.code)
	c.Touch(a.hub.now())

	a.hub.log.Info().
		Str("room_code", a.code).
		Str("user_id", c.UserID).
		Str("role", string(c.Role)).
		Bool("rejoin", known).
		Msg("Participant joined")

	snap := a.snapshot()
	a.broadcastRoster(snap)
	return &ws.JoinedRoomData{
		Room:         ws.NewRoomData(room.Snapshot(a.hub.now())),
		Participants: ws.NewParticipants(snap.Participants),
	}, nil
}

// leave removes the user and unbinds all of their connections.
func (a *actor) leave(c *Client) {
	e, ok := a.roster[c.UserID]
	if !ok {
		delete(a.clients, c)
		c.setRoom("")
		return
	}
	for conn := range e.conns {
		delete(a.clients, conn)
		conn.setRoom("")
	}
	delete(a.roster, c.UserID)
	a.broadcastRoster(a.snapshot())
}

// detach forgets one closed connection.
func (a *actor) detach(c *Client) {
	delete(a.clients, c)
	e, ok := a.roster[c.UserID]
	if !ok {
		return
	}
	delete(e.conns, c)
	if len(e.conns) > 0 {
		return
	}
	delete(a.roster, c.UserID)
	a.broadcastRoster(a.snapshot())
}

// sweep evicts users whose connections stopped answering.
func (a *actor) sweep() {
	now := a.hub.now()
	evicted := 0
	for uid, e := range a.roster {
		if now.Sub(e.lastSeen()) <= a.hub.opts.PresenceTTL {
			continue
		}
		for c := range e.conns {
			delete(a.clients, c)
			c.setRoom("")
			c.Close()
		}
		delete(a.roster, uid)
		evicted++
	}
	if evicted > 0 {
		a.hub.log.Info().Str("room_code", a.code).Int("evicted", evicted).Msg("Evicted stale participants")
		a.broadcastRoster(a.snapshot())
	}
}

func (a *actor) end(ctx context.Context, by service.Actor, message string) (*model.Room, error) {
	room, changed, err := a.hub.lifecycle.EndExam(ctx, a.code, by)
	if err != nil {
		return nil, err
	}
	a.room = room
	if changed {
		a.broadcast(ws.EventExamEnded, ws.ExamEndedData{RoomCode: room.Code, Message: message}, false)
	}
	return room, nil
}

func (a *actor) requireStudent(c *Client) error {
	if _, ok := a.clients[c]; !ok {
		return apperror.Forbidden("join room %s first", a.code)
	}
	if c.Role != model.RoleStudent {
		return apperror.Forbidden("only students can take the exam")
	}
	return nil
}

func (a *actor) studentCount() int {
	n := 0
	for _, e := range a.roster {
		if e.participant.Role == model.RoleStudent {
			n++
		}
	}
	return n
}

func (a *actor) snapshot() model.RosterSnapshot {
	ps := make([]model.Participant, 0, len(a.roster))
	for _, e := range a.roster {
		ps = append(ps, e.participant)
	}
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].UserID < ps[j].UserID
	})
	return model.RosterSnapshot{
		RoomCode:      a.code,
		Participants:  ps,
		TotalStudents: a.studentCount(),
	}
}

func (a *actor) broadcastRoster(snap model.RosterSnapshot) {
	a.broadcast(ws.EventRoomUpdate, ws.NewRoomUpdate(snap), false)
}

// broadcast fans a frame out to local connections and mirrors it to the
// monitor channel. Slow connections miss frames rather than stall the room.
func (a *actor) broadcast(event ws.Event, data interface{}, teachersOnly bool) {
	frame, err := ws.Encode(event, data)
	if err != nil {
		a.hub.log.Error().Err(err).Str("event", string(event)).Msg("Failed to encode frame")
		return
	}
	for c := range a.clients {
		if teachersOnly && c.Role != model.RoleTeacher {
			continue
		}
		if !c.Send(frame) {
			a.hub.log.Debug().Str("room_code", a.code).Str("user_id", c.UserID).Msg("Dropped frame for slow client")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.hub.opts.PublishTimeout)
	defer cancel()
	if err := a.hub.pub.Publish(ctx, a.code, frame); err != nil {
		a.hub.log.Warn().Err(err).Str("room_code", a.code).Msg("Monitor publish failed")
	}
}
