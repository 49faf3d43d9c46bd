package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "send":
		cmdSend(os.Args[2:])
	case "recv":
		cmdRecv(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	case "discover":
		cmdDiscover(os.Args[2:])
	case "room":
		fmt.Println(newRoomCode())
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `notpad-bersama client

Usage:
  client send [-relay host:port] [-room CODE] file|dir ...
  client recv [-relay host:port] -room CODE [-out DIR] [-zip]
  client watch [-relay host:port] [-room CODE] [-settle 2s] DIR
  client discover [-wait 6s]
  client room

Without -relay, commands listen for the relay's LAN beacon first.
`)
}

// newRoomCode returns a short shareable code, two random bytes in hex.
func newRoomCode() string {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%04x", time.Now().UnixNano()&0xffff)
	}
	return hex.EncodeToString(b)
}

// relayURL normalizes a relay address into a ws:// dial target.
func relayURL(addr string) string {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	addr = strings.Replace(addr, "http://", "ws://", 1)
	addr = strings.Replace(addr, "https://", "wss://", 1)
	if !strings.HasSuffix(addr, "/ws") {
		addr = strings.TrimSuffix(addr, "/") + "/ws"
	}
	return addr
}

// resolveRelay turns the -relay flag into a dial URL, discovering a relay
// on the LAN when the flag is empty.
func resolveRelay(flagValue string) string {
	if flagValue != "" {
		return relayURL(flagValue)
	}
	log.Printf("[discover] no relay given, listening for beacons")
	f, err := discoverRelay(5 * time.Second)
	if err != nil {
		log.Fatalf("discover relay: %v", err)
	}
	log.Printf("[discover] using %s at %s", f.Name, f.Addr)
	return relayURL(f.Addr)
}

// short trims a peer id down to something readable in logs.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
