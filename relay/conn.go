package main

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/myhisun270212/notpad-bersama/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is the server-side state of one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once

	rooms map[string]struct{} // guarded by hub.mu
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		out:   make(chan []byte, h.cfg.SendQueue),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
}

// send queues a frame for delivery. A consumer too slow to drain its queue
// is closed rather than allowed to stall the hub.
func (c *Client) send(frame []byte) {
	select {
	case c.out <- frame:
	case <-c.done:
	default:
		log.Printf("[ws] peer %s send queue full, dropping connection", c.id)
		c.close()
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.close()
	}()
	c.conn.SetReadLimit(c.hub.cfg.MaxMsgBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] peer %s read: %v", c.id, err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case frame := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

// handle routes one inbound frame. Malformed input is dropped and logged,
// never answered and never fatal to the connection.
func (c *Client) handle(raw []byte) {
	env, err := wire.Decode(raw)
	if err != nil {
		log.Printf("[ws] peer %s sent undecodable frame (%d bytes)", c.id, len(raw))
		return
	}
	switch env.Event {
	case wire.EventRoomJoin:
		var j wire.JoinRoom
		if env.Bind(&j) != nil || strings.TrimSpace(j.RoomID) == "" {
			log.Printf("[ws] peer %s join without room id, dropped", c.id)
			return
		}
		c.hub.join(c, j.RoomID)
	case wire.EventRoomLeave:
		var l wire.LeaveRoom
		if env.Bind(&l) != nil || strings.TrimSpace(l.RoomID) == "" {
			return
		}
		c.hub.leave(c, l.RoomID)
	case wire.EventNoteUpdate:
		c.hub.broadcastAll(c, raw)
	case wire.EventFileMeta, wire.EventFileChunk, wire.EventFileComplete, wire.EventFileError:
		roomID := env.RoomID()
		if roomID == "" {
			log.Printf("[ws] peer %s sent %s without room id, dropped", c.id, env.Event)
			return
		}
		c.hub.broadcast(c, roomID, raw)
	default:
		log.Printf("[ws] peer %s sent unknown event %q, dropped", c.id, env.Event)
	}
}
