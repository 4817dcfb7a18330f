// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat history and small client state in a local
// SQLite database.
package storage

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/morganforge/tavern-tui/internal/model"
)

// KeyLastRecording is the state key holding the most recent voice
// recording, base64-encoded.
const KeyLastRecording = "last_voice_recording"

// ErrNotFound is returned when a state key has no value.
var ErrNotFound = errors.New("not found")

// schema creates the tables on first open. Messages keep their transcript
// position so history reloads in order.
const schema = `
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	position    INTEGER NOT NULL,
	role        TEXT NOT NULL,
	status      TEXT NOT NULL,
	body        TEXT NOT NULL,
	attach_kind TEXT,
	attach_name TEXT,
	attach_url  TEXT,
	created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_position ON messages(position);
`

// =============================================================================
// STORE
// =============================================================================

// Store is the local persistence layer. Safe for concurrent use; SQLite
// serializes writers via the single-connection pool.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the store location under the user's home directory.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".tavern", "tavern.db"), nil
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// CLIENT STATE
// =============================================================================

// SetState stores a string value under key, replacing any previous value.
func (s *Store) SetState(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// State returns the value stored under key, or ErrNotFound.
func (s *Store) State(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// SaveLastRecording stores the raw audio of the most recent voice
// recording, base64-encoded like the state it replaces on each save.
func (s *Store) SaveLastRecording(data []byte) error {
	return s.SetState(KeyLastRecording, base64.StdEncoding.EncodeToString(data))
}

// LastRecording returns the most recently saved voice recording, or
// ErrNotFound when none was ever saved.
func (s *Store) LastRecording() ([]byte, error) {
	encoded, err := s.State(KeyLastRecording)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// =============================================================================
// TRANSCRIPT HISTORY
// =============================================================================

// SaveTranscript replaces the stored history with the given snapshot.
// Run inside a transaction so a crash never leaves a half-written history.
func (s *Store) SaveTranscript(msgs []model.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO messages (id, position, role, status, body, attach_kind, attach_name, attach_url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, msg := range msgs {
		var kind, name, url sql.NullString
		if msg.Attach != nil {
			kind = sql.NullString{String: string(msg.Attach.Kind), Valid: true}
			name = sql.NullString{String: msg.Attach.Name, Valid: true}
			url = sql.NullString{String: msg.Attach.URL, Valid: true}
		}
		if _, err := stmt.Exec(msg.ID, i, string(msg.Role), string(msg.Status), msg.Body, kind, name, url, msg.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadTranscript returns the stored history in transcript order. Messages
// persisted mid-flight come back errored: their work did not survive the
// restart.
func (s *Store) LoadTranscript() ([]model.Message, error) {
	rows, err := s.db.Query(
		"SELECT id, role, status, body, attach_kind, attach_name, attach_url, created_at FROM messages ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			msg             model.Message
			role, status    string
			kind, name, url sql.NullString
			createdAt       time.Time
		)
		if err := rows.Scan(&msg.ID, &role, &status, &msg.Body, &kind, &name, &url, &createdAt); err != nil {
			return nil, err
		}
		msg.Role = model.Role(role)
		msg.Status = model.Status(status)
		msg.CreatedAt = createdAt
		if kind.Valid {
			msg.Attach = &model.Attachment{
				Kind: model.AttachmentKind(kind.String),
				Name: name.String,
				URL:  url.String,
			}
		}
		if !msg.Status.Terminal() {
			msg.Status = model.StatusErrored
			if msg.Body == "" {
				msg.Body = "Interrupted"
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
