package session

import (
	"encoding/json"
	"fmt"

	"github.com/sessionedit/internal/annotation"
	"github.com/sessionedit/internal/render"
)

// record is the persisted form of a session. The chunk itself is not kept: after a restart
// the chunk server has forgotten the session, so it has to be reopened with Resume.
type record struct {
	Engine annotation.Snapshot `json:"engine"`
	Folder string              `json:"folder,omitempty"`
	Source Source              `json:"source,omitempty"`
	Loaded bool                `json:"loaded"`
	View   render.View         `json:"view"`
}

func (s *Session) marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(record{
		Engine: s.engine.Snapshot(),
		Folder: s.state.Folder,
		Source: s.state.Source,
		Loaded: s.state.Loaded,
		View:   s.view,
	})
}

// restore loads a persisted record into a fresh session.
func (s *Session) restore(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("session.restore: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.Restore(rec.Engine); err != nil {
		return fmt.Errorf("session.restore: %w", err)
	}
	s.state = State{Folder: rec.Folder, Source: rec.Source}
	s.view = rec.View
	s.resumable = rec.Loaded && rec.Folder != ""
	return nil
}
