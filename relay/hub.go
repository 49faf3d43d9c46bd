package main

import (
	"log"
	"sort"
	"sync"

	"github.com/myhisun270212/notpad-bersama/wire"
)

// Hub tracks every live connection and which rooms each one sits in. All
// state sits behind one mutex; fan-out never blocks the caller because
// every client drains its own buffered send queue.
type Hub struct {
	cfg *Config

	mu      sync.Mutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates an empty hub
func NewHub(cfg *Config) *Hub {
	return &Hub{
		cfg:     cfg,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[hub] peer %s connected (%d online)", c.id, n)
}

// join adds c to a room, acks it with the current peer list and announces
// the arrival to everyone already there. Joining a room twice only repeats
// the ack.
func (h *Hub) join(c *Client, roomID string) {
	h.mu.Lock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	_, already := members[c]
	peers := make([]string, 0, len(members))
	others := make([]*Client, 0, len(members))
	for m := range members {
		if m == c {
			continue
		}
		peers = append(peers, m.id)
		others = append(others, m)
	}
	if !already {
		members[c] = struct{}{}
		c.rooms[roomID] = struct{}{}
	}
	h.mu.Unlock()

	sort.Strings(peers)
	c.send(wire.Pack(wire.EventRoomJoined, wire.RoomJoined{
		RoomID: roomID,
		PeerID: c.id,
		Peers:  peers,
	}).Encode())
	if already {
		return
	}
	ann := wire.Pack(wire.EventPeerJoined, wire.PeerJoined{RoomID: roomID, PeerID: c.id}).Encode()
	for _, m := range others {
		m.send(ann)
	}
	log.Printf("[hub] peer %s joined room %s (%d member(s))", c.id, roomID, len(peers)+1)
}

// leave removes c from one room and tells the remaining members.
func (h *Hub) leave(c *Client, roomID string) {
	h.mu.Lock()
	members := h.rooms[roomID]
	_, was := members[c]
	if was {
		delete(members, c)
		delete(c.rooms, roomID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	rest := make([]*Client, 0, len(members))
	for m := range members {
		rest = append(rest, m)
	}
	h.mu.Unlock()

	if !was {
		return
	}
	ann := wire.Pack(wire.EventPeerLeft, wire.PeerLeft{RoomID: roomID, PeerID: c.id}).Encode()
	for _, m := range rest {
		m.send(ann)
	}
	log.Printf("[hub] peer %s left room %s", c.id, roomID)
}

// drop tears a client out of the hub entirely, announcing one peer:left in
// every room it occupied.
func (h *Hub) drop(c *Client) {
	type farewell struct {
		frame []byte
		to    []*Client
	}

	h.mu.Lock()
	if _, in := h.clients[c]; !in {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	var outs []farewell
	for roomID := range c.rooms {
		members := h.rooms[roomID]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
			continue
		}
		to := make([]*Client, 0, len(members))
		for m := range members {
			to = append(to, m)
		}
		outs = append(outs, farewell{
			frame: wire.Pack(wire.EventPeerLeft, wire.PeerLeft{RoomID: roomID, PeerID: c.id}).Encode(),
			to:    to,
		})
	}
	left := len(c.rooms)
	c.rooms = map[string]struct{}{}
	h.mu.Unlock()

	for _, f := range outs {
		for _, m := range f.to {
			m.send(f.frame)
		}
	}
	log.Printf("[hub] peer %s disconnected (left %d room(s))", c.id, left)
}

// broadcast forwards a raw frame to every member of a room except the
// sender. The frame is relayed exactly as received; the hub never decodes
// the payload.
func (h *Hub) broadcast(sender *Client, roomID string, frame []byte) {
	h.mu.Lock()
	members := h.rooms[roomID]
	to := make([]*Client, 0, len(members))
	for m := range members {
		if m != sender {
			to = append(to, m)
		}
	}
	h.mu.Unlock()

	for _, m := range to {
		m.send(frame)
	}
}

// broadcastAll forwards a raw frame to every connected client except the
// sender, regardless of room membership.
func (h *Hub) broadcastAll(sender *Client, frame []byte) {
	h.mu.Lock()
	to := make([]*Client, 0, len(h.clients))
	for m := range h.clients {
		if m != sender {
			to = append(to, m)
		}
	}
	h.mu.Unlock()

	for _, m := range to {
		m.send(frame)
	}
}

// shutdown closes every live connection.
func (h *Hub) shutdown() {
	h.mu.Lock()
	cs := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		cs = append(cs, c)
	}
	h.mu.Unlock()

	for _, c := range cs {
		c.close()
	}
}
