package annotation

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the serializable form of an Engine, kept by the session store so that
// unsaved annotations outlive an editor restart.
type Snapshot struct {
	Marks       []MessageKey           `json:"marks"`
	Assignments map[MessageKey]GroupID `json:"assignments"`
	Colors      map[GroupID]Color      `json:"colors"`
	Names       map[GroupID]string     `json:"names"`
	Spans       []Span                 `json:"spans,omitempty"`
	Sizes       map[int]int            `json:"sizes,omitempty"`
	Issued      GroupID                `json:"issued"`
	MarkMode    bool                   `json:"mark_mode"`
	DividerMode bool                   `json:"divider_mode"`
	Pending     *MessageKey            `json:"pending,omitempty"`
}

// Snapshot copies the engine state. The shift-click anchor is not kept.
func (e *Engine) Snapshot() Snapshot {
	g := e.groups
	s := Snapshot{
		Marks:       e.marks.Keys(),
		Assignments: make(map[MessageKey]GroupID, len(g.assignments)),
		Colors:      make(map[GroupID]Color, len(g.colors)),
		Names:       make(map[GroupID]string, len(g.names)),
		Spans:       g.Spans(),
		Sizes:       make(map[int]int, len(g.sizes)),
		Issued:      g.issued,
		MarkMode:    e.markMode,
		DividerMode: e.divider.Active,
		Pending:     e.Divider().Pending,
	}
	for k, v := range g.assignments {
		s.Assignments[k] = v
	}
	for k, v := range g.colors {
		s.Colors[k] = v
	}
	for k, v := range g.names {
		s.Names[k] = v
	}
	for k, v := range g.sizes {
		s.Sizes[k] = v
	}
	return s
}

// Restore replaces the engine state with s.
func (e *Engine) Restore(s Snapshot) error {
	if s.MarkMode && s.DividerMode {
		return fmt.Errorf("annotation.Restore: mark and divider mode both set")
	}
	if s.Pending != nil && !s.DividerMode {
		return fmt.Errorf("annotation.Restore: pending endpoint outside divider mode")
	}
	e.marks.Reset()
	for _, k := range s.Marks {
		e.marks.Add(k)
	}
	e.groups.Reset()
	g := e.groups
	for k, v := range s.Assignments {
		g.assignments[k] = v
	}
	for k, v := range s.Colors {
		g.colors[k] = v
	}
	for k, v := range s.Names {
		g.names[k] = v
	}
	for k, v := range s.Sizes {
		g.sizes[k] = v
	}
	g.spans = append([]Span(nil), s.Spans...)
	g.issued = s.Issued
	e.markMode = s.MarkMode
	e.divider = DividerState{Active: s.DividerMode}
	if s.Pending != nil {
		k := *s.Pending
		e.divider.Pending = &k
	}
	e.anchor = nil
	return nil
}

// MarshalSnapshot encodes the engine state as JSON.
func (e *Engine) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(e.Snapshot())
}

// UnmarshalSnapshot restores the engine from JSON produced by MarshalSnapshot.
func (e *Engine) UnmarshalSnapshot(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("annotation.UnmarshalSnapshot: %w", err)
	}
	return e.Restore(s)
}
