// Package transfer implements both ends of the chunked file pipeline: the
// sending state machine that slices files into wire chunks, the receiving
// assembler that rebuilds them, and the folder aggregator that restores
// received files to their original directory shape.
package transfer

import (
	"encoding/binary"
	mrand "math/rand"

	"github.com/google/uuid"

	"github.com/myhisun270212/notpad-bersama/wire"
)

// Status of a single transfer. Transitions are monotone: nothing leaves
// complete or error.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusReceiving Status = "receiving"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// TotalChunks returns the chunk count for a payload of the given size.
// Empty files still occupy one (empty) chunk so a transfer is never
// chunkless.
func TotalChunks(size int64) int {
	n := int((size + wire.ChunkSize - 1) / wire.ChunkSize)
	if n < 1 {
		n = 1
	}
	return n
}

// NewTransferID returns a fresh transfer id: a random v4 UUID, falling back
// to math/rand bytes shaped as a v4 when the system randomness source is
// unavailable.
func NewTransferID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], mrand.Uint64())
	binary.BigEndian.PutUint64(b[8:], mrand.Uint64())
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	id, _ = uuid.FromBytes(b[:])
	return id.String()
}

// Meta describes one transfer's identity and chunk geometry.
type Meta struct {
	TransferID   string
	Name         string
	Size         int64
	MimeType     string
	RelativePath string
	TotalChunks  int
}

// OutgoingSnapshot is the progress view of one queued or in-flight send.
type OutgoingSnapshot struct {
	Meta
	Status     Status
	SentChunks int
	Err        string
}

// IncomingSnapshot is the progress view of one receiving transfer.
type IncomingSnapshot struct {
	Meta
	Status         Status
	ReceivedChunks int
	ReceivedBytes  int64
	Err            string
}
