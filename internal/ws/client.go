package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"activamigos-chat/internal/events"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBufSize    = 64
)

// Client is one authenticated websocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity models.Identity
	info     observability.WSConn

	done chan struct{}
	once sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, identity models.Identity, info observability.WSConn) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufSize),
		identity: identity,
		info:     info,
		done:     make(chan struct{}),
	}
}

// Send encodes and queues ev for the client.
func (c *Client) Send(ev events.Event) {
	payload, err := events.Encode(ev)
	if err != nil {
		log.Printf("websocket encode error: conn_id=%s type=%s err=%v", c.info.ConnID, ev.Type(), err)
		return
	}
	c.enqueue(payload)
}

// enqueue never blocks; a client that cannot keep up is closed.
func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		log.Printf("websocket send buffer full, closing: conn_id=%s user_id=%d", c.info.ConnID, c.identity.UserID)
		c.Close()
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump decodes frames and hands them to handle until the connection
// fails. It returns the close reason.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, *Client, events.Event)) string {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				observability.PublishWSEvent(ctx, "ws_error", c.info, "", err.Error())
			}
			return err.Error()
		}

		ev, err := events.Decode(raw)
		if err != nil {
			log.Printf("websocket decode error: conn_id=%s err=%v", c.info.ConnID, err)
			c.Send(events.Error{Code: events.CodeInvalidPayload, Message: err.Error()})
			continue
		}
		handle(ctx, c, ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: conn_id=%s err=%v", c.info.ConnID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
