package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"

	"github.com/myhisun270212/notpad-bersama/transfer"
)

func cmdRecv(args []string) {
	flags := flag.NewFlagSet("recv", flag.ExitOnError)
	relay := flags.String("relay", "", "Relay address (empty = discover on the LAN)")
	room := flags.String("room", "", "Room code from the sender")
	outDir := flags.String("out", defaultOutDir(), "Directory for received files")
	asZip := flags.Bool("zip", false, "Store received folders as zip archives")
	flags.Parse(args)

	if *room == "" {
		log.Fatal("room code required. Usage: client recv -room CODE [-out DIR]")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("out dir: %v", err)
	}

	addr := resolveRelay(*relay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sv := newSaver(*outDir, *asZip)
	inbox := transfer.NewInbox(sv.onTransfer)
	sv.inbox = inbox

	sess, err := Dial(ctx, addr, *room, inbox)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer sess.Close()

	log.Printf("[recv] waiting in room %s, saving to %s (ctrl-c to stop)", *room, *outDir)
	select {
	case <-ctx.Done():
	case <-sess.Done():
		log.Printf("[recv] connection closed")
	}
}

// defaultOutDir is the user's download folder when the desktop exposes one.
func defaultOutDir() string {
	if d := xdg.UserDirs.Download; d != "" {
		return d
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return "."
}

// saver persists whatever the inbox finishes: lone files as soon as they
// complete, folder groups once every member is in.
type saver struct {
	outDir string
	asZip  bool
	inbox  *transfer.Inbox

	mu      sync.Mutex
	written map[string]bool // folder groups already on disk
}

func newSaver(outDir string, asZip bool) *saver {
	return &saver{outDir: outDir, asZip: asZip, written: make(map[string]bool)}
}

// onTransfer runs on every inbox transition.
func (sv *saver) onTransfer(snap transfer.IncomingSnapshot) {
	switch snap.Status {
	case transfer.StatusPending:
		log.Printf("[recv] incoming %s (%s, %d chunk(s))", snap.Name, humanize.Bytes(uint64(snap.Size)), snap.TotalChunks)
	case transfer.StatusError:
		log.Printf("[recv] %s failed: %s", snap.Name, snap.Err)
	case transfer.StatusComplete:
		sv.persist(snap)
	}
}

func (sv *saver) persist(snap transfer.IncomingSnapshot) {
	if snap.RelativePath == "" {
		sv.saveFile(snap)
		return
	}
	sv.saveGroupOf(snap)
}

func (sv *saver) saveFile(snap transfer.IncomingSnapshot) {
	payload, ok := sv.inbox.Payload(snap.TransferID)
	if !ok {
		log.Printf("[recv] payload for %s vanished", snap.Name)
		return
	}
	target := uniquePath(filepath.Join(sv.outDir, filepath.Base(snap.Name)))
	if err := os.WriteFile(target, payload, 0o644); err != nil {
		log.Printf("[recv] write %s: %v", target, err)
		return
	}
	sv.inbox.Release(snap.TransferID)
	log.Printf("[recv] saved %s (%s)", target, humanize.Bytes(uint64(len(payload))))
}

func (sv *saver) saveGroupOf(snap transfer.IncomingSnapshot) {
	group := transfer.GroupName(snap.RelativePath)
	if !sv.inbox.GroupReady(group) {
		return
	}

	sv.mu.Lock()
	if sv.written[group] {
		sv.mu.Unlock()
		return
	}
	sv.written[group] = true
	sv.mu.Unlock()

	if sv.asZip {
		target := uniquePath(filepath.Join(sv.outDir, group+".zip"))
		f, err := os.Create(target)
		if err != nil {
			log.Printf("[recv] create %s: %v", target, err)
			return
		}
		if err := sv.inbox.ArchiveGroup(group, f); err != nil {
			f.Close()
			os.Remove(target)
			log.Printf("[recv] archive %s: %v", group, err)
			return
		}
		if err := f.Close(); err != nil {
			log.Printf("[recv] close %s: %v", target, err)
			return
		}
		log.Printf("[recv] saved folder %s as %s", group, target)
	} else {
		if err := sv.inbox.SaveGroup(group, sv.outDir); err != nil {
			log.Printf("[recv] save folder %s: %v", group, err)
			return
		}
		log.Printf("[recv] saved folder %s under %s", group, sv.outDir)
	}
	sv.releaseGroup(group)
}

func (sv *saver) releaseGroup(name string) {
	for _, g := range sv.inbox.Groups() {
		if g.Name != name {
			continue
		}
		for _, t := range g.Transfers {
			sv.inbox.Release(t.TransferID)
		}
		return
	}
}

// uniquePath appends " (n)" before the extension until the name is free.
func uniquePath(p string) string {
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return p
	}
	ext := filepath.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(cand); errors.Is(err, fs.ErrNotExist) {
			return cand
		}
	}
}
