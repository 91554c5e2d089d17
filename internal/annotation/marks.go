package annotation

import (
	"sort"

	"github.com/sessionedit/internal/model"
)

// MarkSet is the set of flagged messages across all chunks of a session.
type MarkSet struct {
	keys map[MessageKey]struct{}
}

func NewMarkSet() *MarkSet {
	return &MarkSet{keys: make(map[MessageKey]struct{})}
}

// Reconcile makes the chunk's keys mirror the marked flags of messages.
// Local toggles for this chunk are discarded; other chunks are untouched.
func (s *MarkSet) Reconcile(chunk int, messages []model.Message) {
	for k := range s.keys {
		if k.Chunk == chunk && k.Position >= len(messages) {
			delete(s.keys, k)
		}
	}
	for i, m := range messages {
		key := KeyOf(chunk, i)
		if m.Marked {
			s.keys[key] = struct{}{}
		} else {
			delete(s.keys, key)
		}
	}
}

// Toggle flips membership and returns the new state.
func (s *MarkSet) Toggle(key MessageKey) bool {
	if _, ok := s.keys[key]; ok {
		delete(s.keys, key)
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// SetRange marks every position between from and to inclusive, in either order.
// Marks outside the range are kept.
func (s *MarkSet) SetRange(chunk, from, to int) int {
	if from > to {
		from, to = to, from
	}
	for p := from; p <= to; p++ {
		s.keys[KeyOf(chunk, p)] = struct{}{}
	}
	return to - from + 1
}

// Add marks a single key.
func (s *MarkSet) Add(key MessageKey) {
	s.keys[key] = struct{}{}
}

// Clear unmarks key and reports whether it was marked.
func (s *MarkSet) Clear(key MessageKey) bool {
	if _, ok := s.keys[key]; !ok {
		return false
	}
	delete(s.keys, key)
	return true
}

func (s *MarkSet) Has(key MessageKey) bool {
	_, ok := s.keys[key]
	return ok
}

func (s *MarkSet) Len() int { return len(s.keys) }

// Reset drops every mark.
func (s *MarkSet) Reset() {
	s.keys = make(map[MessageKey]struct{})
}

// Keys returns all marked keys in chunk, position order.
func (s *MarkSet) Keys() []MessageKey {
	out := make([]MessageKey, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Serialize returns the wire form used by save and export.
func (s *MarkSet) Serialize() map[string]bool {
	out := make(map[string]bool, len(s.keys))
	for k := range s.keys {
		out[k.String()] = true
	}
	return out
}
