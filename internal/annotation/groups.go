package annotation

import (
	"math/rand/v2"
	"sort"

	"github.com/sessionedit/internal/model"
)

// GroupID identifies a group. Valid ids are positive.
type GroupID int

// SpanOpen marks a span that runs to the end of its chunk.
const SpanOpen = -1

// Span is the part of a cross-chunk divider range that falls into one chunk. Spans stay
// until their group is removed, a key is unassigned from them or the registry is reset,
// and are applied again every time their chunk is reconciled, truncated to the chunk's
// length. To is inclusive or SpanOpen.
type Span struct {
	Chunk int     `json:"chunk"`
	From  int     `json:"from"`
	To    int     `json:"to"`
	Group GroupID `json:"group"`
}

func (s Span) covers(key MessageKey) bool {
	if key.Chunk != s.Chunk || key.Position < s.From {
		return false
	}
	return s.To == SpanOpen || key.Position <= s.To
}

// GroupRegistry owns group identity, name and color, and maps message keys to groups.
type GroupRegistry struct {
	assignments map[MessageKey]GroupID
	colors      map[GroupID]Color
	names       map[GroupID]string
	spans       []Span
	// sizes holds the message count of every chunk reconciled so far.
	sizes map[int]int
	// issued is the highest id ever handed out; removed ids are not reused.
	issued  GroupID
	palette *palette
}

func NewGroupRegistry(rng *rand.Rand) *GroupRegistry {
	return &GroupRegistry{
		assignments: make(map[MessageKey]GroupID),
		colors:      make(map[GroupID]Color),
		names:       make(map[GroupID]string),
		sizes:       make(map[int]int),
		palette:     newPalette(rng),
	}
}

// Reconcile makes the chunk's assignments mirror the group echoes of messages, then
// applies the chunk's spans on top of them. Spans are not consumed.
func (g *GroupRegistry) Reconcile(chunk int, messages []model.Message) {
	for k := range g.assignments {
		if k.Chunk == chunk {
			delete(g.assignments, k)
		}
	}
	for i, m := range messages {
		if m.Group == nil || m.Group.ID <= 0 {
			continue
		}
		id := GroupID(m.Group.ID)
		g.assignments[KeyOf(chunk, i)] = id
		if m.Group.Color != nil && *m.Group.Color != "" {
			g.colors[id] = Color(*m.Group.Color)
		} else if _, ok := g.colors[id]; !ok {
			g.colors[id] = g.palette.next()
		}
		if m.Group.Name != nil {
			g.names[id] = *m.Group.Name
		}
		if id > g.issued {
			g.issued = id
		}
	}
	g.sizes[chunk] = len(messages)

	for _, s := range g.spans {
		if s.Chunk == chunk {
			g.assignBounded(s.Chunk, s.From, s.To, s.Group, len(messages))
		}
	}
}

// AllocateGroupID returns 1 when no group exists, else one past the highest id seen.
func (g *GroupRegistry) AllocateGroupID() GroupID {
	max := g.issued
	for _, id := range g.assignments {
		if id > max {
			max = id
		}
	}
	for id := range g.colors {
		if id > max {
			max = id
		}
	}
	for id := range g.names {
		if id > max {
			max = id
		}
	}
	for _, s := range g.spans {
		if s.Group > max {
			max = s.Group
		}
	}
	g.issued = max + 1
	return g.issued
}

// ColorFor returns the group's color, generating and storing one on first use.
func (g *GroupRegistry) ColorFor(id GroupID) Color {
	if c, ok := g.colors[id]; ok {
		return c
	}
	c := g.palette.next()
	g.colors[id] = c
	return c
}

// SetColor overrides the color of a group.
func (g *GroupRegistry) SetColor(id GroupID, c Color) {
	g.colors[id] = c
}

// Name returns the group's name, if it has one.
func (g *GroupRegistry) Name(id GroupID) (string, bool) {
	n, ok := g.names[id]
	return n, ok
}

func (g *GroupRegistry) SetName(id GroupID, name string) {
	g.names[id] = name
}

// FindByName returns the group with exactly this name. Names should be unique;
// when they are not, the lowest id wins.
func (g *GroupRegistry) FindByName(name string) (GroupID, bool) {
	var found GroupID
	for id, n := range g.names {
		if n != name {
			continue
		}
		if found == 0 || id < found {
			found = id
		}
	}
	return found, found != 0
}

// RemoveGroup drops every assignment and span of id along with its name and color.
// Removing an unknown id is a no-op.
func (g *GroupRegistry) RemoveGroup(id GroupID) int {
	removed := 0
	for k, gid := range g.assignments {
		if gid == id {
			delete(g.assignments, k)
			removed++
		}
	}
	kept := g.spans[:0]
	for _, s := range g.spans {
		if s.Group != id {
			kept = append(kept, s)
		}
	}
	g.spans = kept
	delete(g.names, id)
	delete(g.colors, id)
	return removed
}

// Assign puts key into group id, taking it out of any span that covers it.
func (g *GroupRegistry) Assign(key MessageKey, id GroupID) {
	g.carve(key.Chunk, key.Position, key.Position)
	g.assignments[key] = id
}

// AssignRange assigns positions from..to of chunk to id. A to of SpanOpen means the rest
// of the chunk: it is resolved now when the chunk length is known, otherwise kept as a
// span until the chunk is reconciled.
func (g *GroupRegistry) AssignRange(chunk, from, to int, id GroupID) {
	if to != SpanOpen && from > to {
		from, to = to, from
	}
	if to == SpanOpen {
		if _, ok := g.sizes[chunk]; !ok {
			g.AddSpan(chunk, from, to, id)
			return
		}
	}
	g.carve(chunk, from, to)
	g.assignBounded(chunk, from, to, id, g.sizeOr(chunk, to))
}

// AddSpan records a span of id in chunk and assigns it right away when the chunk's
// length is known. The span replaces older spans over the same positions.
func (g *GroupRegistry) AddSpan(chunk, from, to int, id GroupID) {
	if to != SpanOpen && from > to {
		from, to = to, from
	}
	g.carve(chunk, from, to)
	g.spans = append(g.spans, Span{Chunk: chunk, From: from, To: to, Group: id})
	if size, ok := g.sizes[chunk]; ok {
		g.assignBounded(chunk, from, to, id, size)
	}
}

// sizeOr returns the known length of chunk, or one past to when it is unknown.
func (g *GroupRegistry) sizeOr(chunk, to int) int {
	if size, ok := g.sizes[chunk]; ok {
		return size
	}
	return to + 1
}

// carve removes positions from..to of chunk from every span. A to of SpanOpen removes
// everything from from onwards.
func (g *GroupRegistry) carve(chunk, from, to int) {
	var out []Span
	for _, s := range g.spans {
		if s.Chunk != chunk || (s.To != SpanOpen && s.To < from) || (to != SpanOpen && s.From > to) {
			out = append(out, s)
			continue
		}
		if s.From < from {
			out = append(out, Span{Chunk: s.Chunk, From: s.From, To: from - 1, Group: s.Group})
		}
		if to != SpanOpen && (s.To == SpanOpen || s.To > to) {
			out = append(out, Span{Chunk: s.Chunk, From: to + 1, To: s.To, Group: s.Group})
		}
	}
	g.spans = out
}

func (g *GroupRegistry) assignBounded(chunk, from, to int, id GroupID, size int) {
	last := size - 1
	if to != SpanOpen && to < last {
		last = to
	}
	for p := from; p <= last; p++ {
		g.assignments[KeyOf(chunk, p)] = id
	}
}

// Unassign removes key from its group, splitting a span if one covers it.
func (g *GroupRegistry) Unassign(key MessageKey) bool {
	_, had := g.assignments[key]
	delete(g.assignments, key)
	for _, s := range g.spans {
		if s.covers(key) {
			had = true
			break
		}
	}
	g.carve(key.Chunk, key.Position, key.Position)
	return had
}

// GroupOf returns the group of key from its assignment or, in a chunk whose length is
// not known yet, from a span.
func (g *GroupRegistry) GroupOf(key MessageKey) (GroupID, bool) {
	if id, ok := g.assignments[key]; ok {
		return id, true
	}
	if _, known := g.sizes[key.Chunk]; known {
		return 0, false
	}
	for _, s := range g.spans {
		if s.covers(key) {
			return s.Group, true
		}
	}
	return 0, false
}

// Members returns the assigned keys of id in order. Pending spans are not expanded.
func (g *GroupRegistry) Members(id GroupID) []MessageKey {
	var out []MessageKey
	for k, gid := range g.assignments {
		if gid == id {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Spans returns every span.
func (g *GroupRegistry) Spans() []Span {
	return append([]Span(nil), g.spans...)
}

// PendingSpans returns the spans of chunks that were never loaded. Their positions
// cannot be expressed as keys yet.
func (g *GroupRegistry) PendingSpans() []Span {
	var out []Span
	for _, s := range g.spans {
		if _, ok := g.sizes[s.Chunk]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of concrete assignments.
func (g *GroupRegistry) Len() int { return len(g.assignments) }

// Groups returns every known group id in ascending order.
func (g *GroupRegistry) Groups() []GroupID {
	seen := make(map[GroupID]struct{})
	for _, id := range g.assignments {
		seen[id] = struct{}{}
	}
	for id := range g.names {
		seen[id] = struct{}{}
	}
	for _, s := range g.spans {
		seen[s.Group] = struct{}{}
	}
	out := make([]GroupID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset forgets every group, including the id high-water mark.
func (g *GroupRegistry) Reset() {
	g.assignments = make(map[MessageKey]GroupID)
	g.colors = make(map[GroupID]Color)
	g.names = make(map[GroupID]string)
	g.spans = nil
	g.sizes = make(map[int]int)
	g.issued = 0
}

// Serialize returns the wire form of the concrete assignments, joined with names and
// colors. Spans of chunks with a known length are expanded into keys.
func (g *GroupRegistry) Serialize() map[string]model.GroupAssignment {
	resolved := make(map[MessageKey]GroupID, len(g.assignments))
	for k, id := range g.assignments {
		resolved[k] = id
	}
	for _, s := range g.spans {
		size, ok := g.sizes[s.Chunk]
		if !ok {
			continue
		}
		last := size - 1
		if s.To != SpanOpen && s.To < last {
			last = s.To
		}
		for p := s.From; p <= last; p++ {
			resolved[KeyOf(s.Chunk, p)] = s.Group
		}
	}
	out := make(map[string]model.GroupAssignment, len(resolved))
	for k, id := range resolved {
		out[k.String()] = model.GroupAssignment{
			ID:    int(id),
			Name:  g.names[id],
			Color: string(g.ColorFor(id)),
		}
	}
	return out
}
