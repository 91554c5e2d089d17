package annotation

import "strings"

// DividerState is the in-progress selection of divider mode. Pending is set only while
// divider mode is active and one endpoint has been chosen.
type DividerState struct {
	Active  bool
	Pending *MessageKey
}

// Prompter answers the questions a divider gesture asks the user.
type Prompter interface {
	// GroupName returns the optional name for a new range; empty means unnamed.
	GroupName() string
	// ConfirmRemoveGroup asks whether the whole group should be removed.
	ConfirmRemoveGroup(id GroupID, name string) bool
}

// Answers is a Prompter with answers collected up front, as an HTTP request carries them.
type Answers struct {
	Name        string
	RemoveGroup bool
}

func (a Answers) GroupName() string { return a.Name }
func (a Answers) ConfirmRemoveGroup(GroupID, string) bool { return a.RemoveGroup }

// Commit describes a committed divider range.
type Commit struct {
	Group  GroupID    `json:"group"`
	Name   string     `json:"name,omitempty"`
	Color  Color      `json:"color"`
	Merged bool       `json:"merged"`
	From   MessageKey `json:"from"`
	To     MessageKey `json:"to"`
	// Pending counts chunks whose part of the range waits for the chunk to be loaded.
	Pending int `json:"pending,omitempty"`
}

// commitRange resolves the group for a divider pair and assigns the range between them.
// For a cross-chunk pair the chunk of the lower endpoint runs from its position to the end,
// chunks in between are covered entirely and the upper endpoint's chunk runs from 0. Each
// part is kept as a span, so it survives later reconciles of its chunk until it is saved.
func commitRange(g *GroupRegistry, k1, k2 MessageKey, p Prompter) Commit {
	name := ""
	if p != nil {
		name = strings.TrimSpace(p.GroupName())
	}

	var id GroupID
	merged := false
	if name != "" {
		id, merged = g.FindByName(name)
	}
	if !merged {
		id = g.AllocateGroupID()
		if name != "" {
			g.SetName(id, name)
		}
	}
	color := g.ColorFor(id)

	lo, hi := k1, k2
	if hi.Less(lo) {
		lo, hi = hi, lo
	}
	pending := 0
	if lo.Chunk == hi.Chunk {
		g.AssignRange(lo.Chunk, lo.Position, hi.Position, id)
	} else {
		for c := lo.Chunk; c <= hi.Chunk; c++ {
			from, to := 0, SpanOpen
			if c == lo.Chunk {
				from = lo.Position
			}
			if c == hi.Chunk {
				to = hi.Position
			}
			if _, ok := g.sizes[c]; !ok {
				pending++
			}
			g.AddSpan(c, from, to, id)
		}
	}

	return Commit{
		Group:   id,
		Name:    name,
		Color:   color,
		Merged:  merged,
		From:    lo,
		To:      hi,
		Pending: pending,
	}
}
