package model

import (
	"encoding/json"
	"time"
)

// SaveKind distinguishes journal entries.
type SaveKind string

const (
	SaveKindSave   SaveKind = "save"
	SaveKindExport SaveKind = "export"
)

// SaveLogEntry records one save or export sent to the chunk server.
type SaveLogEntry struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"session_id"`
	Kind        SaveKind        `json:"kind"`
	Folder      string          `json:"folder,omitempty"`
	Marks       int             `json:"marks"`
	Assignments int             `json:"assignments"`
	Unresolved  int             `json:"unresolved_spans"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Message     string          `json:"message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
