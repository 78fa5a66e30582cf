package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "file": JSON Lines file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Audit actions.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionDenied = "stop.denied"
)

// AuditEntry records one user action against the task registry.
type AuditEntry struct {
	At        time.Time `json:"at"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   int64     `json:"actor_id"`
	Username  string    `json:"username,omitempty"`
	// OwnerID is the task owner the action addressed. It differs from
	// ActorID only for denied stops.
	OwnerID int64  `json:"owner_id"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
}
