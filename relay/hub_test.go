package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/myhisun270212/notpad-bersama/wire"
)

func newTestRelay(t *testing.T) string {
	t.Helper()
	cfg := defaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "notes.db")

	notes, err := NewNoteStore(cfg.DBPath, "")
	if err != nil {
		t.Fatalf("note store: %v", err)
	}
	t.Cleanup(func() { notes.Close() })

	hub := NewHub(cfg)
	srv := NewServer(cfg, hub, notes)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.shutdown)
	return ts.URL
}

func dialPeer(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnv(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, wire.Pack(event, payload).Encode()); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func writeRaw(t *testing.T, conn *websocket.Conn, raw []byte) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write raw: %v", err)
	}
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return raw
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()
	env, err := wire.Decode(readRaw(t, conn))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID string) wire.RoomJoined {
	t.Helper()
	sendEnv(t, conn, wire.EventRoomJoin, wire.JoinRoom{RoomID: roomID})
	env := readEnvelope(t, conn)
	if env.Event != wire.EventRoomJoined {
		t.Fatalf("join reply = %s, want %s", env.Event, wire.EventRoomJoined)
	}
	var ack wire.RoomJoined
	if err := env.Bind(&ack); err != nil {
		t.Fatalf("bind ack: %v", err)
	}
	if ack.RoomID != roomID {
		t.Fatalf("ack room = %q, want %q", ack.RoomID, roomID)
	}
	return ack
}

func TestJoinAckAndPeerNotifications(t *testing.T) {
	base := newTestRelay(t)

	a := dialPeer(t, base)
	ackA := joinRoom(t, a, "ab12")
	if len(ackA.Peers) != 0 {
		t.Fatalf("first joiner peers = %v, want none", ackA.Peers)
	}
	if ackA.PeerID == "" {
		t.Fatal("ack missing peer id")
	}

	b := dialPeer(t, base)
	ackB := joinRoom(t, b, "ab12")
	if len(ackB.Peers) != 1 || ackB.Peers[0] != ackA.PeerID {
		t.Fatalf("second joiner peers = %v, want [%s]", ackB.Peers, ackA.PeerID)
	}

	env := readEnvelope(t, a)
	if env.Event != wire.EventPeerJoined {
		t.Fatalf("a got %s, want %s", env.Event, wire.EventPeerJoined)
	}
	var pj wire.PeerJoined
	if err := env.Bind(&pj); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if pj.PeerID != ackB.PeerID || pj.RoomID != "ab12" {
		t.Fatalf("peer:joined = %+v, want peer %s in ab12", pj, ackB.PeerID)
	}

	// Nothing else may be queued on either side: the next frame each peer
	// sees must be a probe sent after the joins settled. A second arrival
	// notice or a self notice would show up here instead.
	sendEnv(t, b, wire.EventNoteUpdate, wire.NoteUpdate{NoteID: 1, Field: "title", Value: "x"})
	if env := readEnvelope(t, a); env.Event != wire.EventNoteUpdate {
		t.Fatalf("a got %s, want %s", env.Event, wire.EventNoteUpdate)
	}
	sendEnv(t, a, wire.EventNoteUpdate, wire.NoteUpdate{NoteID: 2, Field: "title", Value: "y"})
	if env := readEnvelope(t, b); env.Event != wire.EventNoteUpdate {
		t.Fatalf("b got %s, want %s", env.Event, wire.EventNoteUpdate)
	}
}

func TestBroadcastStaysInRoomAndSkipsSender(t *testing.T) {
	base := newTestRelay(t)

	a := dialPeer(t, base)
	joinRoom(t, a, "ab12")
	b := dialPeer(t, base)
	joinRoom(t, b, "ab12")
	c := dialPeer(t, base)
	joinRoom(t, c, "zz99")
	readEnvelope(t, a) // b arrives

	frame := wire.Pack(wire.EventFileMeta, wire.FileMeta{
		RoomID:      "ab12",
		TransferID:  "t-1",
		Name:        "a.txt",
		Size:        3,
		MimeType:    "text/plain",
		TotalChunks: 1,
	}).Encode()
	writeRaw(t, b, frame)

	// Same-room member receives the frame byte for byte.
	got := readRaw(t, a)
	if !bytes.Equal(got, frame) {
		t.Fatalf("relayed frame differs:\n got:  %s\n sent: %s", got, frame)
	}

	// The probe must be the first thing c and b see: the meta never left
	// the room and never echoed back to its sender.
	sendEnv(t, a, wire.EventNoteUpdate, wire.NoteUpdate{NoteID: 7, Field: "body", Value: "z"})
	if env := readEnvelope(t, c); env.Event != wire.EventNoteUpdate {
		t.Fatalf("c got %s, want %s (file frame crossed rooms?)", env.Event, wire.EventNoteUpdate)
	}
	if env := readEnvelope(t, b); env.Event != wire.EventNoteUpdate {
		t.Fatalf("b got %s, want %s (broadcast echoed to sender?)", env.Event, wire.EventNoteUpdate)
	}
}

func TestNoteUpdateNeedsNoRoom(t *testing.T) {
	base := newTestRelay(t)

	a := dialPeer(t, base) // never joins a room
	b := dialPeer(t, base)
	joinRoom(t, b, "ab12")

	sendEnv(t, b, wire.EventNoteUpdate, wire.NoteUpdate{NoteID: 3, Field: "title", Value: "n"})

	env := readEnvelope(t, a)
	if env.Event != wire.EventNoteUpdate {
		t.Fatalf("a got %s, want %s", env.Event, wire.EventNoteUpdate)
	}
	var nu wire.NoteUpdate
	if err := env.Bind(&nu); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if nu.NoteID != 3 || nu.Field != "title" {
		t.Fatalf("note update = %+v, want note 3 title", nu)
	}
}

func TestBlankJoinIgnored(t *testing.T) {
	base := newTestRelay(t)

	a := dialPeer(t, base)
	sendEnv(t, a, wire.EventRoomJoin, wire.JoinRoom{RoomID: "   "})
	sendEnv(t, a, wire.EventRoomJoin, wire.JoinRoom{})

	// Neither blank join produced an ack, so the first reply on the wire
	// belongs to the valid one.
	ack := joinRoom(t, a, "ok42")
	if len(ack.Peers) != 0 {
		t.Fatalf("peers = %v, want none", ack.Peers)
	}
}

func TestMalformedFramesDropped(t *testing.T) {
	base := newTestRelay(t)

	a := dialPeer(t, base)
	joinRoom(t, a, "ab12")
	b := dialPeer(t, base)
	joinRoom(t, b, "ab12")
	readEnvelope(t, a) // b arrives

	// None of these should reach a or kill b's connection.
	writeRaw(t, b, []byte("this is not json"))
	writeRaw(t, b, []byte(`{"data":{"roomId":"ab12"}}`))
	sendEnv(t, b, wire.EventFileChunk, wire.FileChunk{TransferID: "t", ChunkIndex: 0})
	writeRaw(t, b, []byte(`{"event":"file:meta","data":{"roomId":42}}`))

	valid := wire.Pack(wire.EventFileMeta, wire.FileMeta{
		RoomID:      "ab12",
		TransferID:  "t-2",
		Name:        "ok.bin",
		Size:        1,
		MimeType:    "application/octet-stream",
		TotalChunks: 1,
	}).Encode()
	writeRaw(t, b, valid)

	got := readRaw(t, a)
	if !bytes.Equal(got, valid) {
		t.Fatalf("a saw %s, want the valid meta", got)
	}
}

func TestDisconnectAnnouncesEveryRoom(t *testing.T) {
	base := newTestRelay(t)

	a := dialPeer(t, base)
	ackA := joinRoom(t, a, "room-x")
	joinRoom(t, a, "room-y")
	b := dialPeer(t, base)
	joinRoom(t, b, "room-x")
	c := dialPeer(t, base)
	joinRoom(t, c, "room-y")
	readEnvelope(t, a) // b arrives in x
	readEnvelope(t, a) // c arrives in y

	a.Close()

	env := readEnvelope(t, b)
	if env.Event != wire.EventPeerLeft {
		t.Fatalf("b got %s, want %s", env.Event, wire.EventPeerLeft)
	}
	var pl wire.PeerLeft
	if err := env.Bind(&pl); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if pl.RoomID != "room-x" || pl.PeerID != ackA.PeerID {
		t.Fatalf("b farewell = %+v, want %s leaving room-x", pl, ackA.PeerID)
	}

	env = readEnvelope(t, c)
	if env.Event != wire.EventPeerLeft {
		t.Fatalf("c got %s, want %s", env.Event, wire.EventPeerLeft)
	}
	if err := env.Bind(&pl); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if pl.RoomID != "room-y" || pl.PeerID != ackA.PeerID {
		t.Fatalf("c farewell = %+v, want %s leaving room-y", pl, ackA.PeerID)
	}

	// Exactly one farewell each: the next frame must be a fresh probe.
	sendEnv(t, b, wire.EventNoteUpdate, wire.NoteUpdate{NoteID: 5, Field: "title", Value: "p"})
	if env := readEnvelope(t, c); env.Event != wire.EventNoteUpdate {
		t.Fatalf("c got %s, want %s (duplicate farewell?)", env.Event, wire.EventNoteUpdate)
	}
	sendEnv(t, c, wire.EventNoteUpdate, wire.NoteUpdate{NoteID: 6, Field: "title", Value: "q"})
	if env := readEnvelope(t, b); env.Event != wire.EventNoteUpdate {
		t.Fatalf("b got %s, want %s (duplicate farewell?)", env.Event, wire.EventNoteUpdate)
	}
}

func TestExplicitLeaveAnnouncesOnlyThatRoom(t *testing.T) {
	base := newTestRelay(t)

	a := dialPeer(t, base)
	ackA := joinRoom(t, a, "room-x")
	joinRoom(t, a, "room-y")
	b := dialPeer(t, base)
	joinRoom(t, b, "room-x")
	c := dialPeer(t, base)
	joinRoom(t, c, "room-y")
	readEnvelope(t, a)
	readEnvelope(t, a)

	sendEnv(t, a, wire.EventRoomLeave, wire.LeaveRoom{RoomID: "room-x"})

	env := readEnvelope(t, b)
	if env.Event != wire.EventPeerLeft {
		t.Fatalf("b got %s, want %s", env.Event, wire.EventPeerLeft)
	}
	var pl wire.PeerLeft
	if err := env.Bind(&pl); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if pl.RoomID != "room-x" || pl.PeerID != ackA.PeerID {
		t.Fatalf("farewell = %+v, want %s leaving room-x", pl, ackA.PeerID)
	}

	// c shares only room-y with a and must hear nothing from the leave.
	sendEnv(t, b, wire.EventNoteUpdate, wire.NoteUpdate{NoteID: 8, Field: "title", Value: "r"})
	if env := readEnvelope(t, c); env.Event != wire.EventNoteUpdate {
		t.Fatalf("c got %s, want %s (leave leaked into room-y?)", env.Event, wire.EventNoteUpdate)
	}
}
