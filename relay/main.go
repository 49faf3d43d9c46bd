package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/myhisun270212/notpad-bersama/lan"
)

const version = "0.3.0"

func main() {
	cfg := defaultConfig()

	// Parse flags
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP/WebSocket listen port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path for notes")
	flag.StringVar(&cfg.MasterKey, "master-key", "", "Master key for note encryption at rest (empty = plaintext)")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "Relay name announced on the LAN")
	flag.Int64Var(&cfg.MaxMsgBytes, "max-msg", cfg.MaxMsgBytes, "Maximum WebSocket message size in bytes")
	flag.StringVar(&cfg.MCGroup, "mc-group", cfg.MCGroup, "Multicast group for the LAN beacon")
	flag.IntVar(&cfg.MCPort, "mc-port", cfg.MCPort, "Multicast port for the LAN beacon")
	flag.BoolVar(&cfg.NoBeacon, "no-beacon", false, "Disable the LAN beacon")

	var authTokensFlag string
	flag.StringVar(&authTokensFlag, "tokens", "", "Comma-separated bearer tokens for the notes API (empty = no auth)")
	flag.Parse()

	// Environment variable overrides
	if envMaster := os.Getenv("NOTPAD_MASTER_KEY"); envMaster != "" {
		cfg.MasterKey = envMaster
	}
	if envDB := os.Getenv("NOTPAD_DB"); envDB != "" {
		cfg.DBPath = envDB
	}
	if envTokens := os.Getenv("NOTPAD_TOKENS"); envTokens != "" {
		authTokensFlag = envTokens
	}

	if authTokensFlag != "" {
		cfg.AuthTokens = strings.Split(authTokensFlag, ",")
		for i := range cfg.AuthTokens {
			cfg.AuthTokens[i] = strings.TrimSpace(cfg.AuthTokens[i])
		}
		log.Printf("[auth] %d API token(s) configured for the notes API", len(cfg.AuthTokens))
	}

	// Initialize note storage
	notes, err := NewNoteStore(cfg.DBPath, cfg.MasterKey)
	if err != nil {
		log.Fatalf("Failed to initialize note store: %v", err)
	}
	defer notes.Close()
	if cfg.MasterKey == "" {
		log.Printf("[notes] WARNING: no master key set, note bodies stored in plaintext")
	}
	log.Printf("[notes] store ready at %s", cfg.DBPath)

	hub := NewHub(cfg)
	srv := NewServer(cfg, hub, notes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Announce on the LAN so clients can find us without an address
	if !cfg.NoBeacon {
		if err := lan.Announce(ctx, cfg.MCGroup, cfg.MCPort, cfg.Name, cfg.Port, cfg.BeaconIntv); err != nil {
			log.Printf("[beacon] disabled: %v", err)
		}
	}

	// WebSocket connections outlive any request timeout, so only the header
	// read and idle keep-alives are bounded here.
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("[server] %s v%s listening on :%d", cfg.Name, version, cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[server] shutting down")

	// Hijacked WebSocket connections are not covered by Shutdown, close the
	// hub first and then drain the REST side.
	hub.shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
}
