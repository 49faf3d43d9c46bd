// Package wire defines the JSON messages exchanged through the relay's
// WebSocket transport and the envelope framing around them.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Chunk geometry and transport bounds shared by both ends.
const (
	ChunkSize       = 512 * 1024
	MaxMessageBytes = 2 << 30 // ceiling for a single frame
)

// Event names. The relay routes on the event plus the payload's roomId and
// treats the rest of the payload as opaque bytes.
const (
	EventRoomJoin     = "room:join"
	EventRoomLeave    = "room:leave"
	EventRoomJoined   = "room:joined"
	EventPeerJoined   = "peer:joined"
	EventPeerLeft     = "peer:left"
	EventFileMeta     = "file:meta"
	EventFileChunk    = "file:chunk"
	EventFileComplete = "file:complete"
	EventFileError    = "file:error"
	EventNoteUpdate   = "note:update"
)

var ErrBadEnvelope = errors.New("malformed envelope")

// Envelope frames every message: an event name plus its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Pack builds an envelope around a payload value. The payload types in this
// package marshal without error.
func Pack(event string, data any) Envelope {
	b, _ := json.Marshal(data)
	return Envelope{Event: event, Data: b}
}

// Encode renders the envelope as one wire frame.
func (e Envelope) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Decode parses a wire frame. Frames that are not JSON or carry no event
// name are rejected.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Event == "" {
		return Envelope{}, ErrBadEnvelope
	}
	return e, nil
}

// Bind unmarshals the payload into a concrete message type.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return ErrBadEnvelope
	}
	return json.Unmarshal(e.Data, v)
}

// RoomID pulls the routing field out of the payload without touching the
// rest of it. Returns "" when absent or unreadable.
func (e Envelope) RoomID() string {
	var route struct {
		RoomID string `json:"roomId"`
	}
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &route) != nil {
		return ""
	}
	return route.RoomID
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// RoomJoined acknowledges a join. Peers lists the member ids already in the
// room so the newcomer knows who is present.
type RoomJoined struct {
	RoomID string   `json:"roomId"`
	PeerID string   `json:"peerId"`
	Peers  []string `json:"peers"`
}

type PeerJoined struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
}

type PeerLeft struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
}

// FileMeta announces one transfer and fixes its chunk geometry.
type FileMeta struct {
	RoomID       string `json:"roomId"`
	TransferID   string `json:"transferId"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"type"`
	RelativePath string `json:"relativePath,omitempty"`
	TotalChunks  int    `json:"totalChunks"`
}

// FileChunk carries one slice of the file. Chunk rides base64 inside the
// JSON text frame.
type FileChunk struct {
	RoomID     string `json:"roomId"`
	TransferID string `json:"transferId"`
	ChunkIndex int    `json:"chunkIndex"`
	Chunk      []byte `json:"chunk"`
}

type FileComplete struct {
	RoomID     string `json:"roomId"`
	TransferID string `json:"transferId"`
}

type FileError struct {
	RoomID     string `json:"roomId"`
	TransferID string `json:"transferId"`
	Message    string `json:"message,omitempty"`
}

// NoteUpdate is the live-edit channel for the shared notes, relayed to every
// connection regardless of rooms. Field is "title" or "body". Persistence
// happens over the REST API, not here.
type NoteUpdate struct {
	NoteID int64  `json:"noteId"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}
