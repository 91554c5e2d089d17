package session

import (
	"github.com/sessionedit/internal/annotation"
	"github.com/sessionedit/internal/render"
)

// GroupSummary describes one group for the legend.
type GroupSummary struct {
	ID      int    `json:"id"`
	Name    string `json:"name,omitempty"`
	Color   string `json:"color"`
	Members int    `json:"members"`
	Pending int    `json:"pending_spans,omitempty"`
}

// ViewState is everything the browser needs to draw the session.
type ViewState struct {
	SessionID       string           `json:"session_id"`
	Loaded          bool             `json:"loaded"`
	Resumable       bool             `json:"resumable,omitempty"`
	ChunkIndex      int              `json:"chunk_index"`
	FileCount       int              `json:"file_count"`
	MessageCount    int              `json:"message_count"`
	Folder          string           `json:"folder,omitempty"`
	Source          Source           `json:"source,omitempty"`
	Status          string           `json:"status"`
	MarkMode        bool             `json:"mark_mode"`
	DividerMode     bool             `json:"divider_mode"`
	Pending         string           `json:"pending,omitempty"`
	View            render.View      `json:"view"`
	Marks           int              `json:"marks"`
	Groups          []GroupSummary   `json:"groups"`
	UnresolvedSpans int              `json:"unresolved_spans"`
	Messages        []render.Message `json:"messages"`
}

// ViewState renders the current chunk with the session's annotations applied.
func (s *Session) ViewState() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.engine
	st := s.state
	v := ViewState{
		SessionID:   s.ID,
		Loaded:      st.Loaded,
		Resumable:   s.resumable,
		ChunkIndex:  st.ChunkIndex,
		FileCount:   st.FileCount,
		Folder:      st.Folder,
		Source:      st.Source,
		MarkMode:    e.MarkMode(),
		DividerMode: e.DividerMode(),
		View:        s.view,
		Marks:       e.Marks().Len(),
	}
	if p := e.Divider().Pending; p != nil {
		v.Pending = p.String()
	}
	if st.Loaded {
		v.MessageCount = st.Chunk.Count()
	}
	v.Status = render.StatusLine(st.Loaded, st.ChunkIndex, v.MessageCount, v.MarkMode, v.DividerMode)

	v.Messages = []render.Message{}
	if st.Loaded {
		v.Messages = s.renderer.Chunk(st.ChunkIndex, st.Chunk, s.view)
		for i := range v.Messages {
			key := annotation.KeyOf(st.ChunkIndex, i)
			v.Messages[i].Marked = e.Marks().Has(key)
			if id, ok := e.Groups().GroupOf(key); ok {
				name, _ := e.Groups().Name(id)
				v.Messages[i].Group = &render.Group{ID: int(id), Name: name, Color: string(e.Groups().ColorFor(id))}
			}
		}
	}

	g := e.Groups()
	pending := make(map[annotation.GroupID]int)
	unresolved := g.PendingSpans()
	for _, sp := range unresolved {
		pending[sp.Group]++
	}
	v.UnresolvedSpans = len(unresolved)
	v.Groups = make([]GroupSummary, 0)
	for _, id := range g.Groups() {
		name, _ := g.Name(id)
		v.Groups = append(v.Groups, GroupSummary{
			ID:      int(id),
			Name:    name,
			Color:   string(g.ColorFor(id)),
			Members: len(g.Members(id)),
			Pending: pending[id],
		})
	}
	return v
}
