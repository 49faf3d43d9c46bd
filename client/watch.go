package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/myhisun270212/notpad-bersama/transfer"
)

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	relay := fs.String("relay", "", "Relay address (empty = discover on the LAN)")
	room := fs.String("room", "", "Room code shared with the receiver")
	settle := fs.Duration("settle", 2*time.Second, "Quiet period before a changed file is sent")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("watch takes exactly one directory. Usage: client watch -room CODE DIR")
	}
	dir := fs.Arg(0)
	info, err := os.Stat(dir)
	if err != nil {
		log.Fatalf("stat %s: %v", dir, err)
	}
	if !info.IsDir() {
		log.Fatalf("%s is not a directory", dir)
	}
	if *room == "" {
		*room = newRoomCode()
		log.Printf("[watch] room code: %s (share it with the receiver)", *room)
	}

	addr := resolveRelay(*relay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, err := Dial(ctx, addr, *room, nil)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer sess.Close()

	w, err := newDirWatcher(dir, *settle)
	if err != nil {
		log.Fatalf("watch %s: %v", dir, err)
	}
	defer w.Close()
	log.Printf("[watch] %s -> room %s (ctrl-c to stop)", dir, *room)

	outbox := transfer.NewOutbox(progressPrinter())
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			log.Printf("[watch] connection closed")
			return
		case path := <-w.Settled:
			item, err := transfer.ItemFromFile(path)
			if err != nil {
				log.Printf("[watch] skip %s: %v", path, err)
				continue
			}
			outbox.Enqueue(item)
			outbox.SendAll(ctx, sess, *room)
		}
	}
}

// dirWatcher wraps fsnotify with a settle delay so files are only reported
// once writes to them have gone quiet.
type dirWatcher struct {
	Settled chan string

	w      *fsnotify.Watcher
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newDirWatcher(dir string, settle time.Duration) (*dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	dw := &dirWatcher{
		Settled: make(chan string, 16),
		w:       w,
		settle:  settle,
		pending: make(map[string]*time.Timer),
	}
	go dw.loop()
	return dw, nil
}

func (dw *dirWatcher) loop() {
	for {
		select {
		case ev, ok := <-dw.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			dw.bump(ev.Name)
		case err, ok := <-dw.w.Errors:
			if !ok {
				return
			}
			log.Printf("[watch] %v", err)
		}
	}
}

// bump starts or resets the settle timer for one path.
func (dw *dirWatcher) bump(path string) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if t, ok := dw.pending[path]; ok {
		t.Reset(dw.settle)
		return
	}
	dw.pending[path] = time.AfterFunc(dw.settle, func() {
		dw.mu.Lock()
		delete(dw.pending, path)
		dw.mu.Unlock()
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		dw.Settled <- path
	})
}

func (dw *dirWatcher) Close() {
	dw.w.Close()
}
