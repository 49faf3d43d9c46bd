package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// POST /api/notes, GET /api/notes
func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		notes, err := s.notes.List()
		if err != nil {
			log.Printf("[notes] list error: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error",
				"error":  "failed to list notes",
			})
			return
		}
		if notes == nil {
			notes = []NoteSummary{}
		}
		writeJSON(w, http.StatusOK, NoteListResponse{
			Status: "ok",
			Count:  len(notes),
			Notes:  notes,
		})

	case http.MethodPost:
		var req NoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status": "error",
				"error":  "invalid JSON: " + err.Error(),
			})
			return
		}
		note, err := s.notes.Create(req.Title, req.Body)
		if err != nil {
			log.Printf("[notes] create error: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error",
				"error":  "failed to create note",
			})
			return
		}
		log.Printf("[notes] created id=%d title=%q", note.ID, note.Title)
		writeJSON(w, http.StatusCreated, note)

	default:
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

// GET /api/notes/{id}, PUT /api/notes/{id}, DELETE /api/notes/{id}
func (s *Server) handleNoteByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/notes/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"error":  "bad note id",
		})
		return
	}

	switch r.Method {
	case http.MethodGet:
		note, err := s.notes.Get(id)
		if err != nil {
			log.Printf("[notes] get error: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error",
				"error":  "failed to retrieve note",
			})
			return
		}
		if note == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"status": "not_found",
			})
			return
		}
		writeJSON(w, http.StatusOK, note)

	case http.MethodPut:
		var req NoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status": "error",
				"error":  "invalid JSON: " + err.Error(),
			})
			return
		}
		ok, err := s.notes.Update(id, req.Title, req.Body)
		if err != nil {
			log.Printf("[notes] update error: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error",
				"error":  "failed to update note",
			})
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"status": "not_found",
			})
			return
		}
		note, err := s.notes.Get(id)
		if err != nil || note == nil {
			log.Printf("[notes] reload after update error: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error",
				"error":  "failed to reload note",
			})
			return
		}
		log.Printf("[notes] updated id=%d", id)
		writeJSON(w, http.StatusOK, note)

	case http.MethodDelete:
		ok, err := s.notes.Delete(id)
		if err != nil {
			log.Printf("[notes] delete error: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error",
				"error":  "failed to delete note",
			})
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"status": "not_found",
			})
			return
		}
		log.Printf("[notes] deleted id=%d", id)
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})

	default:
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	}
}
