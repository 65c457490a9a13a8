package models

import "time"

// DefaultDiscoveryCap is the number of distinct payment addresses a session admits.
const DefaultDiscoveryCap = 21

// SessionState is the lifecycle state of a discovery session.
type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionRunning SessionState = "running"
	SessionStopped SessionState = "stopped"
)

// StopReason records why a session left the running state.
type StopReason string

const (
	StopManual StopReason = "manual"
	StopGoal   StopReason = "goal"
)

// DiscoveredAddress is one admitted payment address.
type DiscoveredAddress struct {
	Address    string    `json:"address"`
	Actor      string    `json:"actor"`
	Order      int       `json:"order"`
	Sources    []string  `json:"sources"`
	Versions   int       `json:"versions"`
	AdmittedAt time.Time `json:"admitted_at"`
}

// Source is one registered relay endpoint.
type Source struct {
	URL     string    `json:"url"`
	AddedAt time.Time `json:"added_at"`
}

// FieldChange describes one tracked field that differs between a history entry
// and its older neighbor.
type FieldChange struct {
	Field    string `json:"field"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// HistoryEntry is a read-only view of one record in an actor's history.
type HistoryEntry struct {
	ID        string        `json:"id"`
	CreatedAt int64         `json:"created_at"`
	Name      string        `json:"name,omitempty"`
	Address   string        `json:"lud16,omitempty"`
	SeenOn    []string      `json:"seen_on"`
	Changes   []FieldChange `json:"changes,omitempty"`
}
