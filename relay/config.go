package main

import (
	"os"
	"time"

	"github.com/myhisun270212/notpad-bersama/lan"
	"github.com/myhisun270212/notpad-bersama/wire"
)

// Config holds relay configuration
type Config struct {
	Port        int      // HTTP/WebSocket port (default: 8080)
	DBPath      string   // SQLite database path for notes
	MasterKey   string   // Master key for note encryption at rest (empty = plaintext)
	Name        string   // Display name announced on the LAN
	MaxMsgBytes int64    // Upper bound for one WebSocket message
	SendQueue   int      // Per-client outbound frame buffer
	AuthTokens  []string // Bearer tokens for the notes API (empty = open)
	MCGroup     string   // Multicast group for the LAN beacon
	MCPort      int      // Multicast port for the LAN beacon
	BeaconIntv  time.Duration
	NoBeacon    bool
}

// Note is one shared notepad entry.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteSummary is the list view; bodies stay out of listings.
type NoteSummary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteRequest is the request body for note create and update
type NoteRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NoteListResponse is the response for GET /api/notes
type NoteListResponse struct {
	Status string        `json:"status"`
	Count  int           `json:"count"`
	Notes  []NoteSummary `json:"notes"`
}

func defaultConfig() *Config {
	name, _ := os.Hostname()
	if name == "" {
		name = "notpad-bersama"
	}
	return &Config{
		Port:        8080,
		DBPath:      "notes.db",
		MasterKey:   "",
		Name:        name,
		MaxMsgBytes: wire.MaxMessageBytes,
		SendQueue:   64,
		MCGroup:     lan.DefaultGroup,
		MCPort:      lan.DefaultPort,
		BeaconIntv:  lan.DefaultInterval,
	}
}
