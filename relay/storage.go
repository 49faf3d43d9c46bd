package main

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	_ "modernc.org/sqlite"
)

// NoteStore persists shared notes in SQLite. With a master key configured,
// note bodies are sealed with XChaCha20-Poly1305 before they touch disk.
type NoteStore struct {
	db        *sql.DB
	masterKey [32]byte
	encrypted bool
}

// NewNoteStore opens the database and prepares the schema. An empty master
// key stores bodies in plaintext.
func NewNoteStore(dbPath, masterKeyStr string) (*NoteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &NoteStore{db: db}
	if masterKeyStr != "" {
		s.masterKey = sha256.Sum256([]byte(masterKeyStr))
		s.encrypted = true
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

func (s *NoteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		body BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *NoteStore) Close() error {
	return s.db.Close()
}

// sealBody encrypts a note body when encryption is on, nonce||ciphertext.
func (s *NoteStore) sealBody(body string) ([]byte, error) {
	if !s.encrypted {
		return []byte(body), nil
	}

	aead, err := chacha20poly1305.NewX(s.masterKey[:])
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return append(nonce, aead.Seal(nil, nonce, []byte(body), nil)...), nil
}

// openBody reverses sealBody.
func (s *NoteStore) openBody(stored []byte) (string, error) {
	if !s.encrypted {
		return string(stored), nil
	}

	if len(stored) < chacha20poly1305.NonceSizeX {
		return "", errors.New("stored body too short")
	}

	aead, err := chacha20poly1305.NewX(s.masterKey[:])
	if err != nil {
		return "", err
	}

	nonce := stored[:chacha20poly1305.NonceSizeX]
	ciphertext := stored[chacha20poly1305.NonceSizeX:]

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Create inserts a note and returns it with its assigned id.
func (s *NoteStore) Create(title, body string) (*Note, error) {
	sealed, err := s.sealBody(body)
	if err != nil {
		return nil, fmt.Errorf("seal body: %w", err)
	}

	now := time.Now().Unix()
	result, err := s.db.Exec(
		"INSERT INTO notes (title, body, created_at, updated_at) VALUES (?, ?, ?, ?)",
		title, sealed, now, now,
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Note{
		ID:        id,
		Title:     title,
		Body:      body,
		CreatedAt: time.Unix(now, 0),
		UpdatedAt: time.Unix(now, 0),
	}, nil
}

// Get retrieves one note, nil when it does not exist.
func (s *NoteStore) Get(id int64) (*Note, error) {
	query := `SELECT id, title, body, created_at, updated_at FROM notes WHERE id = ?`

	var n Note
	var body []byte
	var createdUnix, updatedUnix int64

	err := s.db.QueryRow(query, id).Scan(&n.ID, &n.Title, &body, &createdUnix, &updatedUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	n.Body, err = s.openBody(body)
	if err != nil {
		return nil, fmt.Errorf("open body: %w", err)
	}
	n.CreatedAt = time.Unix(createdUnix, 0)
	n.UpdatedAt = time.Unix(updatedUnix, 0)
	return &n, nil
}

// List returns every note newest-first, without bodies.
func (s *NoteStore) List() ([]NoteSummary, error) {
	query := `SELECT id, title, updated_at FROM notes ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []NoteSummary
	for rows.Next() {
		var n NoteSummary
		var updatedUnix int64
		if err := rows.Scan(&n.ID, &n.Title, &updatedUnix); err != nil {
			return nil, err
		}
		n.UpdatedAt = time.Unix(updatedUnix, 0)
		notes = append(notes, n)
	}

	return notes, rows.Err()
}

// Update rewrites title and body, reporting whether the note existed.
func (s *NoteStore) Update(id int64, title, body string) (bool, error) {
	sealed, err := s.sealBody(body)
	if err != nil {
		return false, fmt.Errorf("seal body: %w", err)
	}

	result, err := s.db.Exec(
		"UPDATE notes SET title = ?, body = ?, updated_at = ? WHERE id = ?",
		title, sealed, time.Now().Unix(), id,
	)
	if err != nil {
		return false, err
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// Delete removes a note, reporting whether it existed.
func (s *NoteStore) Delete(id int64) (bool, error) {
	result, err := s.db.Exec("DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return false, err
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
