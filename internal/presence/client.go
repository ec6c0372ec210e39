package presence

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
)

// DefaultSendBuffer is the number of outbound frames a slow client may lag.
const DefaultSendBuffer = 64

// Client is one connection. Identity comes from the verified token.
type Client struct {
	ID     string
	UserID string
	Name   string
	Role   model.Role

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	lastSeen  atomic.Int64

	mu   sync.Mutex
	room string
}

// NewClient creates a client with a buffered outbound queue.
func NewClient(userID, name string, role model.Role, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		Role:   role,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
	c.Touch(time.Now())
	return c
}

// Send queues a frame without blocking. A full queue drops the frame.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Outbound is drained by the connection's writer.
func (c *Client) Outbound() <-chan []byte { return c.send }

// Closed is closed once the connection must shut down.
func (c *Client) Closed() <-chan struct{} { return c.closed }

// Close asks the connection to shut down. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Touch records activity from the peer.
func (c *Client) Touch(at time.Time) { c.lastSeen.Store(at.UnixNano()) }

// LastSeen returns the time of the last inbound frame or pong.
func (c *Client) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// RoomCode is the room the client joined, or "".
func (c *Client) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setRoom(code string) {
	c.mu.Lock()
	c.room = code
	c.mu.Unlock()
}
