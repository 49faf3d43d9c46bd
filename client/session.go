package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/myhisun270212/notpad-bersama/transfer"
	"github.com/myhisun270212/notpad-bersama/wire"
)

// Session is one client connection to the relay, joined to a single room.
// Its Emit side satisfies transfer.Emitter so the outbox can push frames
// straight through it.
type Session struct {
	conn   *websocket.Conn
	roomID string
	peerID string
	inbox  *transfer.Inbox

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Dial connects to the relay, joins roomID and starts the read loop. File
// events are fed into inbox when one is given; room traffic is logged.
func Dial(ctx context.Context, relayAddr, roomID string, inbox *transfer.Inbox) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, relayAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", relayAddr, err)
	}

	s := &Session{
		conn:   conn,
		roomID: roomID,
		inbox:  inbox,
		done:   make(chan struct{}),
	}

	if err := s.Emit(ctx, wire.Pack(wire.EventRoomJoin, wire.JoinRoom{RoomID: roomID})); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join room: %w", err)
	}
	ack, err := s.awaitJoin()
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.peerID = ack.PeerID
	log.Printf("[room %s] joined as %s, %d peer(s) present", roomID, short(ack.PeerID), len(ack.Peers))

	go s.readLoop()
	return s, nil
}

// awaitJoin reads until the join ack arrives. Other rooms' note traffic can
// already be in flight, so anything else is skipped.
func (s *Session) awaitJoin() (wire.RoomJoined, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return wire.RoomJoined{}, fmt.Errorf("await join ack: %w", err)
		}
		env, err := wire.Decode(raw)
		if err != nil || env.Event != wire.EventRoomJoined {
			continue
		}
		var ack wire.RoomJoined
		if err := env.Bind(&ack); err != nil {
			return wire.RoomJoined{}, fmt.Errorf("join ack: %w", err)
		}
		_ = s.conn.SetReadDeadline(time.Time{})
		return ack, nil
	}
}

// Emit writes one envelope. Safe for concurrent use by the send workers.
func (s *Session) Emit(ctx context.Context, env wire.Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return net.ErrClosed
	default:
	}

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, env.Encode())
}

func (s *Session) readLoop() {
	defer s.Close()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[room %s] read: %v", s.roomID, err)
			}
			return
		}
		env, err := wire.Decode(raw)
		if err != nil {
			continue
		}
		if s.inbox != nil && s.inbox.Handle(env) {
			continue
		}
		switch env.Event {
		case wire.EventPeerJoined:
			var p wire.PeerJoined
			if env.Bind(&p) == nil {
				log.Printf("[room %s] peer %s joined", p.RoomID, short(p.PeerID))
			}
		case wire.EventPeerLeft:
			var p wire.PeerLeft
			if env.Bind(&p) == nil {
				log.Printf("[room %s] peer %s left", p.RoomID, short(p.PeerID))
			}
		case wire.EventNoteUpdate:
			var n wire.NoteUpdate
			if env.Bind(&n) == nil {
				log.Printf("[notes] note %d %s changed", n.NoteID, n.Field)
			}
		}
	}
}

// Done is closed when the connection is gone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.conn.Close()
	})
}
