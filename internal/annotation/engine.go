package annotation

import (
	"math/rand/v2"

	"github.com/sessionedit/internal/model"
)

// Action is what a gesture did to the annotation state.
type Action string

const (
	ActionNone         Action = "none"
	ActionMarked       Action = "marked"
	ActionUnmarked     Action = "unmarked"
	ActionRangeMarked  Action = "range_marked"
	ActionPending      Action = "pending"
	ActionCommitted    Action = "committed"
	ActionUnassigned   Action = "unassigned"
	ActionGroupRemoved Action = "group_removed"
)

// Result reports the outcome of a click gesture.
type Result struct {
	Action Action     `json:"action"`
	Key    MessageKey `json:"key"`
	Count  int        `json:"count,omitempty"`
	Group  GroupID    `json:"group,omitempty"`
	Commit *Commit    `json:"commit,omitempty"`
}

// Engine is the annotation state of one editing session: marks, groups and the
// mutually exclusive mark and divider modes.
type Engine struct {
	marks    *MarkSet
	groups   *GroupRegistry
	divider  DividerState
	markMode bool
	// anchor is the last plain click in mark mode, the start of a shift-click range.
	anchor *MessageKey
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	rng *rand.Rand
}

// WithRand sets the random source used for group colors.
func WithRand(rng *rand.Rand) Option {
	return func(o *engineOptions) { o.rng = rng }
}

func NewEngine(opts ...Option) *Engine {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		marks:  NewMarkSet(),
		groups: NewGroupRegistry(o.rng),
	}
}

func (e *Engine) Marks() *MarkSet { return e.marks }
func (e *Engine) Groups() *GroupRegistry { return e.groups }
func (e *Engine) MarkMode() bool { return e.markMode }
func (e *Engine) DividerMode() bool { return e.divider.Active }

// Divider returns a copy of the divider state.
func (e *Engine) Divider() DividerState {
	d := e.divider
	if d.Pending != nil {
		k := *d.Pending
		d.Pending = &k
	}
	return d
}

// Reconcile applies the server-authoritative policy for a freshly loaded chunk: marks and
// group assignments of that chunk's keys are replaced by the flags the server echoed,
// discarding unsaved local changes for those keys. Keys of other chunks are kept.
// It must run once per chunk load, before the chunk is shown.
func (e *Engine) Reconcile(chunk *model.Chunk) {
	if chunk == nil {
		return
	}
	e.marks.Reconcile(chunk.Index, chunk.Messages)
	e.groups.Reconcile(chunk.Index, chunk.Messages)
}

// ToggleMarkMode switches mark mode and returns the new state. Entering it leaves
// divider mode and drops a pending divider endpoint.
func (e *Engine) ToggleMarkMode() bool {
	e.anchor = nil
	if e.markMode {
		e.markMode = false
		return false
	}
	e.markMode = true
	e.divider = DividerState{}
	return true
}

// ToggleDividerMode switches divider mode and returns the new state. Entering it leaves
// mark mode. Both directions clear a pending endpoint.
func (e *Engine) ToggleDividerMode() bool {
	e.divider.Pending = nil
	if e.divider.Active {
		e.divider.Active = false
		return false
	}
	e.divider.Active = true
	e.markMode = false
	e.anchor = nil
	return true
}

// Click handles a primary click on key. In mark mode it toggles the mark, or with shift
// marks the range from the last click in the same chunk. In divider mode the first click
// picks an endpoint and the second commits the range.
func (e *Engine) Click(key MessageKey, shift bool, p Prompter) Result {
	switch {
	case e.markMode:
		if shift && e.anchor != nil && e.anchor.Chunk == key.Chunk {
			n := e.marks.SetRange(key.Chunk, e.anchor.Position, key.Position)
			return Result{Action: ActionRangeMarked, Key: key, Count: n}
		}
		k := key
		e.anchor = &k
		if e.marks.Toggle(key) {
			return Result{Action: ActionMarked, Key: key, Count: 1}
		}
		return Result{Action: ActionUnmarked, Key: key, Count: 1}
	case e.divider.Active:
		if e.divider.Pending == nil {
			k := key
			e.divider.Pending = &k
			return Result{Action: ActionPending, Key: key}
		}
		first := *e.divider.Pending
		e.divider.Pending = nil
		c := commitRange(e.groups, first, key, p)
		return Result{Action: ActionCommitted, Key: key, Group: c.Group, Commit: &c}
	}
	return Result{Action: ActionNone, Key: key}
}

// SecondaryClick handles the remove gesture. In mark mode it clears the mark. On a grouped
// message divider mode unassigns that one key, and independently the prompter decides
// whether the whole group goes.
func (e *Engine) SecondaryClick(key MessageKey, p Prompter) Result {
	res := Result{Action: ActionNone, Key: key}
	if e.markMode && e.marks.Clear(key) {
		res.Action = ActionUnmarked
		res.Count = 1
	}
	id, ok := e.groups.GroupOf(key)
	if !ok {
		return res
	}
	res.Group = id
	if e.divider.Active && e.groups.Unassign(key) {
		res.Action = ActionUnassigned
		res.Count = 1
	}
	if p != nil {
		name, _ := e.groups.Name(id)
		if p.ConfirmRemoveGroup(id, name) {
			res.Count = e.groups.RemoveGroup(id)
			res.Action = ActionGroupRemoved
		}
	}
	return res
}

// ResetMarks drops every mark, used when a previous save is opened.
func (e *Engine) ResetMarks() {
	e.marks.Reset()
	e.anchor = nil
}

// ResetGroups drops every group and any pending divider endpoint.
func (e *Engine) ResetGroups() {
	e.groups.Reset()
	e.divider.Pending = nil
}
