package transfer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/myhisun270212/notpad-bersama/wire"
)

// BatchSize bounds how many transfers run in parallel during SendAll.
const BatchSize = 3

// Item is one queued file: identity plus a way to open its bytes.
type Item struct {
	Name         string
	Size         int64
	MimeType     string
	RelativePath string // "/"-separated, set only for folder selections
	Open         func() (io.ReadCloser, error)
}

// ItemFromFile builds a queue item for a single file on disk.
func ItemFromFile(path string) (Item, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Item{}, err
	}
	if st.IsDir() {
		return Item{}, fmt.Errorf("%s is a directory, use ItemsFromDir", path)
	}
	return Item{
		Name:     filepath.Base(path),
		Size:     st.Size(),
		MimeType: mimeByName(path),
		Open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// ItemsFromDir walks root and returns an item per regular file, each tagged
// with a relative path rooted at the directory's base name so receivers can
// rebuild the tree.
func ItemsFromDir(root string) ([]Item, error) {
	root = filepath.Clean(root)
	base := filepath.Base(root)
	var items []Item
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		src := p
		items = append(items, Item{
			Name:         d.Name(),
			Size:         info.Size(),
			MimeType:     mimeByName(p),
			RelativePath: base + "/" + filepath.ToSlash(rel),
			Open:         func() (io.ReadCloser, error) { return os.Open(src) },
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func mimeByName(name string) string {
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// Emitter is the transport the sender writes envelopes to. Implementations
// must be safe for concurrent use; a batch emits from several goroutines at
// once.
type Emitter interface {
	Emit(ctx context.Context, env wire.Envelope) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, env wire.Envelope) error

func (f EmitterFunc) Emit(ctx context.Context, env wire.Envelope) error { return f(ctx, env) }

// Outbox queues files and drives them through the wire protocol. Enqueueing
// while a SendAll is draining is fine; the new items join the current drain.
type Outbox struct {
	mu     sync.Mutex
	queue  []Item
	notify func(OutgoingSnapshot)
}

// NewOutbox returns an empty queue. notify, when non-nil, receives a
// snapshot after every status or progress change; during a batch it is
// called from several goroutines.
func NewOutbox(notify func(OutgoingSnapshot)) *Outbox {
	return &Outbox{notify: notify}
}

// Enqueue appends files without starting transmission.
func (o *Outbox) Enqueue(items ...Item) {
	o.mu.Lock()
	o.queue = append(o.queue, items...)
	o.mu.Unlock()
}

// Pending reports how many files wait in the queue.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// SendAll drains the queue in batches of at most BatchSize parallel
// transfers, waiting for each full batch to finish before starting the
// next. Failures are isolated per file: an errored transfer reports through
// its snapshot and its siblings keep going. Terminal files leave the queue
// either way; re-sending a failed file means enqueueing it again. The
// returned snapshots are the terminal states in drain order.
func (o *Outbox) SendAll(ctx context.Context, em Emitter, roomID string) []OutgoingSnapshot {
	var done []OutgoingSnapshot
	for {
		batch := o.take(BatchSize)
		if len(batch) == 0 {
			return done
		}
		results := make([]OutgoingSnapshot, len(batch))
		var wg sync.WaitGroup
		for i, it := range batch {
			wg.Add(1)
			go func(i int, it Item) {
				defer wg.Done()
				results[i] = o.sendOne(ctx, em, roomID, it)
			}(i, it)
		}
		wg.Wait()
		done = append(done, results...)
		if ctx.Err() != nil {
			return done
		}
	}
}

func (o *Outbox) take(n int) []Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n > len(o.queue) {
		n = len(o.queue)
	}
	batch := o.queue[:n:n]
	o.queue = o.queue[n:]
	return batch
}

func (o *Outbox) sendOne(ctx context.Context, em Emitter, roomID string, it Item) OutgoingSnapshot {
	snap := OutgoingSnapshot{
		Meta: Meta{
			TransferID:   NewTransferID(),
			Name:         it.Name,
			Size:         it.Size,
			MimeType:     it.MimeType,
			RelativePath: it.RelativePath,
			TotalChunks:  TotalChunks(it.Size),
		},
		Status: StatusPending,
	}
	push := func() {
		if o.notify != nil {
			o.notify(snap)
		}
	}
	fail := func(err error) OutgoingSnapshot {
		snap.Status = StatusError
		snap.Err = err.Error()
		// best effort: the transport may be the thing that broke
		_ = em.Emit(ctx, wire.Pack(wire.EventFileError, wire.FileError{
			RoomID:     roomID,
			TransferID: snap.TransferID,
			Message:    err.Error(),
		}))
		push()
		return snap
	}

	push()
	meta := wire.FileMeta{
		RoomID:       roomID,
		TransferID:   snap.TransferID,
		Name:         snap.Name,
		Size:         snap.Size,
		MimeType:     snap.MimeType,
		RelativePath: snap.RelativePath,
		TotalChunks:  snap.TotalChunks,
	}
	if err := em.Emit(ctx, wire.Pack(wire.EventFileMeta, meta)); err != nil {
		return fail(fmt.Errorf("emit meta: %w", err))
	}
	snap.Status = StatusSending
	push()

	r, err := it.Open()
	if err != nil {
		return fail(fmt.Errorf("open %s: %w", it.Name, err))
	}
	defer r.Close()

	buf := make([]byte, wire.ChunkSize)
	remaining := snap.Size
	for i := 0; i < snap.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		want := int64(wire.ChunkSize)
		if remaining < want {
			want = remaining
		}
		n, err := io.ReadFull(r, buf[:want])
		if err != nil {
			return fail(fmt.Errorf("read %s: %w", it.Name, err))
		}
		chunk := wire.FileChunk{
			RoomID:     roomID,
			TransferID: snap.TransferID,
			ChunkIndex: i,
			Chunk:      buf[:n],
		}
		if err := em.Emit(ctx, wire.Pack(wire.EventFileChunk, chunk)); err != nil {
			return fail(fmt.Errorf("emit chunk %d: %w", i, err))
		}
		snap.SentChunks++
		remaining -= int64(n)
		push()
	}

	end := wire.FileComplete{RoomID: roomID, TransferID: snap.TransferID}
	if err := em.Emit(ctx, wire.Pack(wire.EventFileComplete, end)); err != nil {
		return fail(fmt.Errorf("emit complete: %w", err))
	}
	snap.Status = StatusComplete
	push()
	return snap
}
