package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one task lifecycle event or delivery failure.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time `json:"at"`
	ChatID     int64     `json:"chat_id"`
	Action     string    `json:"action"` // task.created, task.removed, task.fired, notify.failed, chat.reset
	Task       string    `json:"task,omitempty"`
	Assignee   string    `json:"assignee,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	Error      string    `json:"error,omitempty"`
}
