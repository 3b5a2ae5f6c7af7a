// Package transport keeps one websocket session to the chat server per
// signed-in identity and reports its lifecycle as events.
package transport

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"activamigos-chat/internal/events"
	"activamigos-chat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufSize    = 32
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrUnauthorized = errors.New("transport: unauthorized")
	ErrClosed       = errors.New("transport: connection closed")
)

// Event is a lifecycle or inbound notification. Every event names the
// session it belongs to so consumers can ignore stale sessions.
type Event interface {
	Session() uint64
}

// Connected reports a successful handshake.
type Connected struct {
	SessionID uint64
}

// Disconnected is emitted once per session, on dial failure, drop or
// Disconnect. Err is nil for a requested disconnect.
type Disconnected struct {
	SessionID uint64
	Err       error
}

// Inbound carries one decoded server frame.
type Inbound struct {
	SessionID uint64
	Event     events.Event
}

func (e Connected) Session() uint64    { return e.SessionID }
func (e Disconnected) Session() uint64 { return e.SessionID }
func (e Inbound) Session() uint64      { return e.SessionID }

type session struct {
	id        uint64
	cancel    context.CancelFunc
	send      chan []byte
	done      chan struct{}
	once      sync.Once
	conn      *websocket.Conn
	connected bool
}

// Client is the websocket transport. It never rejoins rooms on its own.
type Client struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.Mutex
	nextID uint64
	sess   *session
	room   *models.RoomRef

	queue *eventQueue
}

// New returns a transport for the websocket endpoint at url.
func New(url string) *Client {
	return &Client{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: writeWait},
		queue:  newEventQueue(),
	}
}

// Events delivers lifecycle and inbound events in the order they happened.
func (c *Client) Events() <-chan Event {
	return c.queue.out
}

// Close disconnects and stops event delivery.
func (c *Client) Close() {
	c.Disconnect()
	c.queue.close()
}

// Connect starts a session carrying token. It returns 0 without a token and
// the live session id when one already exists.
func (c *Client) Connect(ctx context.Context, token string) uint64 {
	if token == "" {
		return 0
	}

	c.mu.Lock()
	if c.sess != nil {
		id := c.sess.id
		c.mu.Unlock()
		return id
	}
	c.nextID++
	sessCtx, cancel := context.WithCancel(ctx)
	s := &session{
		id:     c.nextID,
		cancel: cancel,
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
	c.sess = s
	c.mu.Unlock()

	go c.run(sessCtx, s, token)
	return s.id
}

// Disconnect closes the current session, if any, and forgets the room.
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s != nil {
		c.finish(s, nil)
	}
}

// Connected reports whether the current session finished its handshake.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.connected
}

// CurrentRoom is the room of the last JoinRoom on this session.
func (c *Client) CurrentRoom() *models.RoomRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil
	}
	r := *c.room
	return &r
}

// JoinRoom sends join_chat and records room as current.
func (c *Client) JoinRoom(room models.RoomRef) error {
	return c.command(events.JoinChat{RoomRef: room}, func() { c.room = &room })
}

// LeaveRoom sends leave_chat and clears the current room.
func (c *Client) LeaveRoom(room models.RoomRef) error {
	return c.command(events.LeaveChat{RoomRef: room}, func() {
		if c.room != nil && *c.room == room {
			c.room = nil
		}
	})
}

// SendMessage sends send_message. Delivery is confirmed by the server's
// new_message broadcast.
func (c *Client) SendMessage(room models.RoomRef, content string) error {
	return c.command(events.SendMessage{RoomRef: room, Content: content}, nil)
}

func (c *Client) command(ev events.Event, apply func()) error {
	payload, err := events.Encode(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil || !s.connected {
		log.Printf("transport: %s dropped: not connected", ev.Type())
		return ErrNotConnected
	}
	select {
	case <-s.done:
		return ErrNotConnected
	case s.send <- payload:
	default:
		return errors.New("transport: send buffer full")
	}
	if apply != nil {
		apply()
	}
	return nil
}

func (c *Client) run(ctx context.Context, s *session, token string) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			err = ErrUnauthorized
		}
		log.Printf("transport: dial failed session=%d err=%v", s.id, err)
		c.finish(s, err)
		return
	}

	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.connected = true
	c.queue.push(Connected{SessionID: s.id})
	c.mu.Unlock()

	go c.writePump(s)
	err = c.readPump(s)
	c.finish(s, err)
}

// finish tears s down and emits its Disconnected event exactly once.
func (c *Client) finish(s *session, err error) {
	s.once.Do(func() {
		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
			c.room = nil
		}
		close(s.done)
		s.cancel()
		if s.conn != nil {
			s.conn.Close()
		}
		c.queue.push(Disconnected{SessionID: s.id, Err: err})
		c.mu.Unlock()
	})
}

func (c *Client) readPump(s *session) error {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrClosed
			}
			return err
		}

		ev, err := events.Decode(raw)
		if err != nil {
			log.Printf("transport: dropping frame session=%d err=%v", s.id, err)
			continue
		}
		if e, ok := ev.(events.Error); ok && e.Code == events.CodeUnauthorized {
			return ErrUnauthorized
		}
		c.queue.push(Inbound{SessionID: s.id, Event: ev})
	}
}

func (c *Client) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.finish(s, err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.finish(s, err)
				return
			}
		}
	}
}
