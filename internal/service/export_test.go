package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
)

// TestGrace is the submit grace of the in-memory fixture.
const TestGrace = testGrace

// FlowFixture exposes the in-memory stores and real services to the external
// tests of this package.
type FlowFixture struct {
	Rooms       *RoomService
	Submissions *SubmissionService
	subs        *fakeSubmissionStore
}

// NewFlowFixture wires sched as the deadline scheduler. The services read the
// wall clock shifted back by skew, so a room started now is already close to
// its deadline.
func NewFlowFixture(sched Scheduler, skew time.Duration) *FlowFixture {
	f := newFixture()
	now := func() time.Time { return time.Now().Add(-skew) }
	f.roomSvc.scheduler = sched
	f.roomSvc.now = now
	f.subSvc.now = now
	return &FlowFixture{Rooms: f.roomSvc, Submissions: f.subSvc, subs: f.subs}
}

// Submission returns the stored attempt of a student.
func (f *FlowFixture) Submission(roomID uuid.UUID, studentID string) (*model.Submission, error) {
	return f.subs.Get(context.Background(), roomID, studentID)
}
