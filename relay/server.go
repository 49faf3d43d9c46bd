package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/myhisun270212/notpad-bersama/wire"
)

// Server handles HTTP requests
type Server struct {
	cfg   *Config
	hub   *Hub
	notes *NoteStore
}

// NewServer creates a new server instance
func NewServer(cfg *Config, hub *Hub, notes *NoteStore) *Server {
	return &Server{
		cfg:   cfg,
		hub:   hub,
		notes: notes,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Realtime relay
	mux.HandleFunc("/ws", s.handleWS)

	// Health and info
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/info", s.handleInfo)

	// Notes CRUD
	mux.HandleFunc("/api/notes", s.handleNotes)
	mux.HandleFunc("/api/notes/", s.handleNoteByID)

	return logRequests(AuthMiddleware(s.cfg.AuthTokens, mux))
}

// logRequests wraps the mux with an access log. WebSocket upgrades log the
// full connection lifetime, which is intentional.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[http] %s %s %s (%s)", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	// Any page on the LAN may connect; the relay carries no secrets.
	CheckOrigin: func(*http.Request) bool { return true },
}

// GET /ws
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade: %v", err)
		return
	}

	c := newClient(s.hub, conn)
	s.hub.register(c)

	go c.writePump()
	go c.readPump()
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "notpad-bersama-relay",
	})
}

// GET /api/info
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":       s.cfg.Name,
		"version":    version,
		"ws":         "/ws",
		"chunkSize":  wire.ChunkSize,
		"maxMessage": s.cfg.MaxMsgBytes,
	})
}
