package transfer

import (
	"fmt"
	"sync"

	"github.com/myhisun270212/notpad-bersama/wire"
)

// Inbox tracks every transfer announced to this peer and rebuilds payloads
// chunk by chunk. Handlers are synchronous and cheap; they are normally
// driven from a connection's single read loop, but all state is
// mutex-guarded so snapshot readers can run from other goroutines.
type Inbox struct {
	mu     sync.Mutex
	order  []string // transfer ids in arrival order
	byID   map[string]*incoming
	notify func(IncomingSnapshot)
}

type incoming struct {
	meta          Meta
	slots         [][]byte
	received      map[int]bool
	receivedBytes int64
	status        Status
	errMsg        string
	payload       []byte
}

func (t *incoming) snapshot() IncomingSnapshot {
	return IncomingSnapshot{
		Meta:           t.meta,
		Status:         t.status,
		ReceivedChunks: len(t.received),
		ReceivedBytes:  t.receivedBytes,
		Err:            t.errMsg,
	}
}

// NewInbox returns an empty assembler. notify, when non-nil, receives a
// snapshot after every state change.
func NewInbox(notify func(IncomingSnapshot)) *Inbox {
	return &Inbox{byID: make(map[string]*incoming), notify: notify}
}

func (in *Inbox) push(s IncomingSnapshot) {
	if in.notify != nil {
		in.notify(s)
	}
}

// Handle routes one inbound envelope into the assembler and reports whether
// the event was a transfer event. Malformed payloads are dropped without
// effect, matching the relay's best-effort contract.
func (in *Inbox) Handle(env wire.Envelope) bool {
	switch env.Event {
	case wire.EventFileMeta:
		var m wire.FileMeta
		if env.Bind(&m) == nil && m.TransferID != "" {
			in.HandleMeta(m)
		}
	case wire.EventFileChunk:
		var c wire.FileChunk
		if env.Bind(&c) == nil {
			in.HandleChunk(c)
		}
	case wire.EventFileComplete:
		var c wire.FileComplete
		if env.Bind(&c) == nil {
			in.HandleComplete(c)
		}
	case wire.EventFileError:
		var e wire.FileError
		if env.Bind(&e) == nil {
			in.HandleError(e)
		}
	default:
		return false
	}
	return true
}

// HandleMeta registers a transfer in pending state with an empty slot
// buffer. A second meta for the same id is a full reset, dropping any
// progress made under the old announcement.
func (in *Inbox) HandleMeta(m wire.FileMeta) {
	total := m.TotalChunks
	if total < 1 {
		total = TotalChunks(m.Size)
	}
	t := &incoming{
		meta: Meta{
			TransferID:   m.TransferID,
			Name:         m.Name,
			Size:         m.Size,
			MimeType:     m.MimeType,
			RelativePath: m.RelativePath,
			TotalChunks:  total,
		},
		slots:    make([][]byte, total),
		received: make(map[int]bool, total),
		status:   StatusPending,
	}
	in.mu.Lock()
	if _, ok := in.byID[m.TransferID]; !ok {
		in.order = append(in.order, m.TransferID)
	}
	in.byID[m.TransferID] = t
	snap := t.snapshot()
	in.mu.Unlock()
	in.push(snap)
}

// HandleChunk fills one slot. Unknown transfer ids and out-of-range indexes
// are dropped silently; the meta may have been missed or the transfer
// already finalized. A repeated index overwrites its slot (last write wins)
// and the counters track distinct populated slots, so duplicates never
// inflate progress.
func (in *Inbox) HandleChunk(c wire.FileChunk) {
	in.mu.Lock()
	t, ok := in.byID[c.TransferID]
	if !ok || t.status.Terminal() {
		in.mu.Unlock()
		return
	}
	if c.ChunkIndex < 0 || c.ChunkIndex >= t.meta.TotalChunks {
		in.mu.Unlock()
		return
	}
	if t.received[c.ChunkIndex] {
		t.receivedBytes += int64(len(c.Chunk)) - int64(len(t.slots[c.ChunkIndex]))
	} else {
		t.received[c.ChunkIndex] = true
		t.receivedBytes += int64(len(c.Chunk))
	}
	t.slots[c.ChunkIndex] = c.Chunk
	t.status = StatusReceiving
	snap := t.snapshot()
	in.mu.Unlock()
	in.push(snap)
}

// HandleComplete finalizes a transfer. Every slot must have been populated:
// the payload is the slots concatenated in index order, and any gap fails
// the transfer instead of silently truncating the file. The slot buffer is
// released either way.
func (in *Inbox) HandleComplete(c wire.FileComplete) {
	in.mu.Lock()
	t, ok := in.byID[c.TransferID]
	if !ok || t.status.Terminal() {
		in.mu.Unlock()
		return
	}
	if missing := t.meta.TotalChunks - len(t.received); missing > 0 {
		t.status = StatusError
		t.errMsg = fmt.Sprintf("missing %d of %d chunks", missing, t.meta.TotalChunks)
		t.slots = nil
		snap := t.snapshot()
		in.mu.Unlock()
		in.push(snap)
		return
	}
	var size int64
	for _, s := range t.slots {
		size += int64(len(s))
	}
	payload := make([]byte, 0, size)
	for _, s := range t.slots {
		payload = append(payload, s...)
	}
	t.payload = payload
	t.status = StatusComplete
	t.slots = nil
	snap := t.snapshot()
	in.mu.Unlock()
	in.push(snap)
}

// HandleError aborts a transfer with the sender's reason, dropping any
// partial progress along with the slot buffer.
func (in *Inbox) HandleError(e wire.FileError) {
	in.mu.Lock()
	t, ok := in.byID[e.TransferID]
	if !ok || t.status.Terminal() {
		in.mu.Unlock()
		return
	}
	t.status = StatusError
	t.errMsg = e.Message
	if t.errMsg == "" {
		t.errMsg = "sender reported an error"
	}
	t.slots = nil
	t.payload = nil
	snap := t.snapshot()
	in.mu.Unlock()
	in.push(snap)
}

// Snapshot returns the progress view of one transfer.
func (in *Inbox) Snapshot(id string) (IncomingSnapshot, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	t, ok := in.byID[id]
	if !ok {
		return IncomingSnapshot{}, false
	}
	return t.snapshot(), true
}

// Snapshots lists every registered transfer in arrival order.
func (in *Inbox) Snapshots() []IncomingSnapshot {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]IncomingSnapshot, 0, len(in.order))
	for _, id := range in.order {
		out = append(out, in.byID[id].snapshot())
	}
	return out
}

// Payload returns the assembled bytes of a complete transfer.
func (in *Inbox) Payload(id string) ([]byte, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	t, ok := in.byID[id]
	if !ok || t.status != StatusComplete {
		return nil, false
	}
	return t.payload, true
}

// Release forgets a transfer entirely, freeing its payload. Callers use it
// once the bytes have been written out.
func (in *Inbox) Release(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.byID[id]; !ok {
		return
	}
	delete(in.byID, id)
	for i, v := range in.order {
		if v == id {
			in.order = append(in.order[:i], in.order[i+1:]...)
			break
		}
	}
}
