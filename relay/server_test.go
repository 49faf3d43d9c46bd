package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/myhisun270212/notpad-bersama/wire"
)

func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthAndInfo(t *testing.T) {
	base := newTestRelay(t)

	resp := doRequest(t, http.MethodGet, base+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health map[string]string
	decodeBody(t, resp, &health)
	if health["status"] != "ok" || health["service"] != "notpad-bersama-relay" {
		t.Fatalf("health = %v", health)
	}

	resp = doRequest(t, http.MethodGet, base+"/api/info", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info status = %d", resp.StatusCode)
	}
	var info map[string]any
	decodeBody(t, resp, &info)
	if info["ws"] != "/ws" {
		t.Errorf("info ws = %v", info["ws"])
	}
	if info["chunkSize"] != float64(wire.ChunkSize) {
		t.Errorf("info chunkSize = %v, want %d", info["chunkSize"], wire.ChunkSize)
	}
}

func TestNotesRESTFlow(t *testing.T) {
	base := newTestRelay(t)

	// Create
	resp := doRequest(t, http.MethodPost, base+"/api/notes", `{"title":"groceries","body":"eggs"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created Note
	decodeBody(t, resp, &created)
	if created.ID == 0 || created.Title != "groceries" || created.Body != "eggs" {
		t.Fatalf("created = %+v", created)
	}

	// List
	resp = doRequest(t, http.MethodGet, base+"/api/notes", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list NoteListResponse
	decodeBody(t, resp, &list)
	if list.Status != "ok" || list.Count != 1 || list.Notes[0].Title != "groceries" {
		t.Fatalf("list = %+v", list)
	}

	// Get
	noteURL := fmt.Sprintf("%s/api/notes/%d", base, created.ID)
	resp = doRequest(t, http.MethodGet, noteURL, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got Note
	decodeBody(t, resp, &got)
	if got.Body != "eggs" {
		t.Fatalf("got body = %q", got.Body)
	}

	// Update
	resp = doRequest(t, http.MethodPut, noteURL, `{"title":"groceries","body":"eggs, milk"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &got)
	if got.Body != "eggs, milk" {
		t.Fatalf("updated body = %q", got.Body)
	}

	// Delete
	resp = doRequest(t, http.MethodDelete, noteURL, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	// Gone
	resp = doRequest(t, http.MethodGet, noteURL, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodDelete, noteURL, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodPut, noteURL, `{"title":"x","body":"y"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("update after delete status = %d", resp.StatusCode)
	}
}

func TestNoteBadRequests(t *testing.T) {
	base := newTestRelay(t)

	resp := doRequest(t, http.MethodGet, base+"/api/notes/abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-numeric id status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, base+"/api/notes", `{"title": truncated`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad JSON status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodDelete, base+"/api/notes", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("delete collection status = %d", resp.StatusCode)
	}
}

func TestNotesAPIAuth(t *testing.T) {
	cfg := defaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "notes.db")
	cfg.AuthTokens = []string{"tok-a", "tok-b"}

	notes, err := NewNoteStore(cfg.DBPath, "")
	if err != nil {
		t.Fatalf("note store: %v", err)
	}
	t.Cleanup(func() { notes.Close() })

	hub := NewHub(cfg)
	ts := httptest.NewServer(NewServer(cfg, hub, notes).Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.shutdown)

	// Health stays open.
	resp := doRequest(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	// Notes are gated.
	resp = doRequest(t, http.MethodGet, ts.URL+"/api/notes", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no-token status = %d, want 401", resp.StatusCode)
	}

	withToken := func(token string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/notes", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		r, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("authed request: %v", err)
		}
		defer r.Body.Close()
		return r.StatusCode
	}

	if code := withToken("wrong"); code != http.StatusForbidden {
		t.Fatalf("bad-token status = %d, want 403", code)
	}
	if code := withToken("tok-b"); code != http.StatusOK {
		t.Fatalf("good-token status = %d, want 200", code)
	}
}
