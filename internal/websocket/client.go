package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"marketchat/internal/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	sendBuffer   = 256
)

// Client is one live room connection held by a persona.
type Client struct {
	ID        string
	PersonaID uuid.UUID
	RoomID    uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
	dropped   int
}

func NewClient(conn *websocket.Conn, personaID, roomID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New().String(),
		PersonaID: personaID,
		RoomID:    roomID,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
	}
}

// WriteLoop drains Send and pings the peer until ctx ends.
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case msg := <-c.Send:
			c.mu.Lock()
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.Conn.WriteMessage(websocket.TextMessage, msg)
			c.mu.Unlock()
			if err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.mu.Lock()
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.Conn.WriteMessage(websocket.PingMessage, []byte("ping"))
			c.mu.Unlock()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

// Forward copies every envelope of sub onto the connection until the
// subscription ends.
func (c *Client) Forward(sub *events.Subscription) {
	for env := range sub.Events() {
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}
		c.SendMessage(data)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	_ = c.Conn.Close()
	c.mu.Unlock()
}

// SendMessage never blocks. A slow peer loses frames and catches up from
// history.
func (c *Client) SendMessage(msg []byte) {
	select {
	case c.Send <- msg:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

// Dropped reports how many frames were discarded for a full buffer.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
