package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"

	"github.com/myhisun270212/notpad-bersama/transfer"
)

func cmdSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	relay := fs.String("relay", "", "Relay address (empty = discover on the LAN)")
	room := fs.String("room", "", "Room code shared with the receiver")
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		log.Fatal("nothing to send. Usage: client send [-relay host:port] -room CODE file|dir ...")
	}
	if *room == "" {
		*room = newRoomCode()
		log.Printf("[send] room code: %s (share it with the receiver)", *room)
	}

	outbox := transfer.NewOutbox(progressPrinter())
	queued := 0
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			log.Fatalf("stat %s: %v", p, err)
		}
		if info.IsDir() {
			items, err := transfer.ItemsFromDir(p)
			if err != nil {
				log.Fatalf("walk %s: %v", p, err)
			}
			if len(items) == 0 {
				log.Printf("[send] %s is empty, skipping", p)
				continue
			}
			outbox.Enqueue(items...)
			queued += len(items)
		} else {
			item, err := transfer.ItemFromFile(p)
			if err != nil {
				log.Fatalf("open %s: %v", p, err)
			}
			outbox.Enqueue(item)
			queued++
		}
	}
	if queued == 0 {
		log.Fatal("nothing to send after scanning arguments")
	}
	log.Printf("[send] %d file(s) queued for room %s", queued, *room)

	addr := resolveRelay(*relay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, err := Dial(ctx, addr, *room, nil)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer sess.Close()

	results := outbox.SendAll(ctx, sess, *room)
	failed := 0
	for _, r := range results {
		if r.Status == transfer.StatusError {
			failed++
		}
	}
	if failed > 0 {
		log.Fatalf("%d of %d file(s) failed", failed, len(results))
	}
	log.Printf("[send] done, %d file(s) delivered to room %s", len(results), *room)
}

// progressPrinter logs transfer transitions without spamming every chunk.
func progressPrinter() func(transfer.OutgoingSnapshot) {
	return func(s transfer.OutgoingSnapshot) {
		switch s.Status {
		case transfer.StatusSending:
			if s.SentChunks == 0 {
				log.Printf("[send] %s (%s, %d chunk(s))", s.Name, humanize.Bytes(uint64(s.Size)), s.TotalChunks)
			} else if s.SentChunks%64 == 0 && s.SentChunks < s.TotalChunks {
				log.Printf("[send] %s %d/%d chunks", s.Name, s.SentChunks, s.TotalChunks)
			}
		case transfer.StatusComplete:
			log.Printf("[send] %s done", s.Name)
		case transfer.StatusError:
			log.Printf("[send] %s error: %s", s.Name, s.Err)
		}
	}
}
