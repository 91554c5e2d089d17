package annotation

import (
	"testing"

	"github.com/sessionedit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPrompter struct {
	name    string
	confirm bool
	asked   []GroupID
}

func (p *recordingPrompter) GroupName() string { return p.name }

func (p *recordingPrompter) ConfirmRemoveGroup(id GroupID, _ string) bool {
	p.asked = append(p.asked, id)
	return p.confirm
}

func newTestEngine() *Engine { return NewEngine(WithRand(testRand())) }

func TestEngine_ModesAreExclusive(t *testing.T) {
	e := newTestEngine()
	assert.False(t, e.MarkMode())
	assert.False(t, e.DividerMode())

	assert.True(t, e.ToggleMarkMode())
	assert.True(t, e.ToggleDividerMode())
	assert.False(t, e.MarkMode())
	assert.True(t, e.DividerMode())

	e.Click(KeyOf(0, 1), false, nil)
	require.NotNil(t, e.Divider().Pending)

	assert.True(t, e.ToggleMarkMode())
	assert.False(t, e.DividerMode())
	assert.Nil(t, e.Divider().Pending)

	assert.False(t, e.ToggleMarkMode())
	assert.False(t, e.MarkMode())
	assert.False(t, e.DividerMode())
}

func TestEngine_LeavingDividerModeDropsPending(t *testing.T) {
	e := newTestEngine()
	e.ToggleDividerMode()
	e.Click(KeyOf(0, 1), false, nil)
	assert.False(t, e.ToggleDividerMode())
	assert.Nil(t, e.Divider().Pending)

	e.ToggleDividerMode()
	res := e.Click(KeyOf(0, 4), false, nil)
	assert.Equal(t, ActionPending, res.Action, "the old endpoint must not be reused")
}

func TestEngine_ClickWithoutModeDoesNothing(t *testing.T) {
	e := newTestEngine()
	res := e.Click(KeyOf(0, 0), false, nil)
	assert.Equal(t, ActionNone, res.Action)
	assert.Equal(t, 0, e.Marks().Len())
	assert.Equal(t, 0, e.Groups().Len())
}

func TestEngine_MarkClicks(t *testing.T) {
	e := newTestEngine()
	e.ToggleMarkMode()

	res := e.Click(KeyOf(1, 3), false, nil)
	assert.Equal(t, ActionMarked, res.Action)
	res = e.Click(KeyOf(1, 3), false, nil)
	assert.Equal(t, ActionUnmarked, res.Action)
	assert.False(t, e.Marks().Has(KeyOf(1, 3)))

	e.Click(KeyOf(1, 2), false, nil)
	res = e.Click(KeyOf(1, 6), true, nil)
	assert.Equal(t, ActionRangeMarked, res.Action)
	assert.Equal(t, 5, res.Count)
	for p := 2; p <= 6; p++ {
		assert.True(t, e.Marks().Has(KeyOf(1, p)))
	}

	res = e.Click(KeyOf(2, 0), true, nil)
	assert.Equal(t, ActionMarked, res.Action, "shift across chunks falls back to a toggle")
}

func TestEngine_DividerSameChunk(t *testing.T) {
	e := newTestEngine()
	e.ToggleDividerMode()

	assert.Equal(t, ActionPending, e.Click(KeyOf(4, 7), false, nil).Action)
	res := e.Click(KeyOf(4, 3), false, &recordingPrompter{})
	require.Equal(t, ActionCommitted, res.Action)
	require.NotNil(t, res.Commit)
	assert.Equal(t, KeyOf(4, 3), res.Commit.From)
	assert.Equal(t, KeyOf(4, 7), res.Commit.To)
	assert.False(t, res.Commit.Merged)
	assert.Zero(t, res.Commit.Pending)

	want := []MessageKey{KeyOf(4, 3), KeyOf(4, 4), KeyOf(4, 5), KeyOf(4, 6), KeyOf(4, 7)}
	assert.Equal(t, want, e.Groups().Members(res.Group))
	assert.Equal(t, 5, e.Groups().Len())
	assert.Nil(t, e.Divider().Pending)
	assert.True(t, e.DividerMode())
}

func TestEngine_DividerSingleMessage(t *testing.T) {
	e := newTestEngine()
	e.ToggleDividerMode()
	e.Click(KeyOf(0, 2), false, nil)
	res := e.Click(KeyOf(0, 2), false, nil)
	assert.Equal(t, []MessageKey{KeyOf(0, 2)}, e.Groups().Members(res.Group))
}

func TestEngine_DividerCrossChunk(t *testing.T) {
	e := newTestEngine()
	e.Reconcile(chunkOf(4, plainMessages(6)))
	e.ToggleDividerMode()

	e.Click(KeyOf(4, 1), false, nil)
	res := e.Click(KeyOf(2, 5), false, nil)
	require.NotNil(t, res.Commit)
	id := res.Group
	assert.Equal(t, KeyOf(2, 5), res.Commit.From)
	assert.Equal(t, KeyOf(4, 1), res.Commit.To)
	assert.Equal(t, 2, res.Commit.Pending, "chunks 2 and 3 are not loaded")

	groupOf := func(k MessageKey) GroupID {
		g, _ := e.Groups().GroupOf(k)
		return g
	}
	assert.Zero(t, groupOf(KeyOf(2, 4)))
	assert.Equal(t, id, groupOf(KeyOf(2, 5)))
	assert.Equal(t, id, groupOf(KeyOf(2, 900)))
	assert.Equal(t, id, groupOf(KeyOf(3, 0)))
	assert.Equal(t, id, groupOf(KeyOf(3, 41)))
	assert.Equal(t, id, groupOf(KeyOf(4, 0)))
	assert.Equal(t, id, groupOf(KeyOf(4, 1)))
	assert.Zero(t, groupOf(KeyOf(4, 2)))

	// The server has not stored the range yet, so the echo carries no group. Local spans
	// for the chunk are applied on top of the server state.
	e.Reconcile(chunkOf(3, plainMessages(4)))
	assert.Equal(t, []MessageKey{KeyOf(3, 0), KeyOf(3, 1), KeyOf(3, 2), KeyOf(3, 3)},
		filterChunk(e.Groups().Members(id), 3))
	assert.Zero(t, groupOf(KeyOf(3, 4)))
	assert.Len(t, e.Groups().PendingSpans(), 1)

	_, unresolved := e.Payload()
	assert.Equal(t, 1, unresolved)
}

func TestEngine_DividerCrossChunkKnownSizes(t *testing.T) {
	e := newTestEngine()
	e.Reconcile(chunkOf(0, plainMessages(3)))
	e.Reconcile(chunkOf(1, plainMessages(2)))
	e.ToggleDividerMode()

	e.Click(KeyOf(0, 1), false, nil)
	res := e.Click(KeyOf(1, 0), false, nil)
	assert.Zero(t, res.Commit.Pending)
	assert.Equal(t, []MessageKey{KeyOf(0, 1), KeyOf(0, 2), KeyOf(1, 0)}, e.Groups().Members(res.Group))
}

func TestEngine_DividerCrossChunkSurvivesRevisits(t *testing.T) {
	e := newTestEngine()
	e.Reconcile(chunkOf(2, plainMessages(8)))
	e.ToggleDividerMode()
	e.Click(KeyOf(2, 5), false, nil)
	e.Reconcile(chunkOf(3, plainMessages(4)))
	e.Reconcile(chunkOf(4, plainMessages(6)))
	res := e.Click(KeyOf(4, 1), false, nil)
	require.NotNil(t, res.Commit)
	assert.Zero(t, res.Commit.Pending)
	id := res.Group

	chunk3 := []MessageKey{KeyOf(3, 0), KeyOf(3, 1), KeyOf(3, 2), KeyOf(3, 3)}
	assert.Equal(t, chunk3, filterChunk(e.Groups().Members(id), 3))

	e.Reconcile(chunkOf(3, plainMessages(4)))
	assert.Equal(t, chunk3, filterChunk(e.Groups().Members(id), 3))
	e.Reconcile(chunkOf(4, plainMessages(6)))
	assert.Equal(t, []MessageKey{KeyOf(4, 0), KeyOf(4, 1)}, filterChunk(e.Groups().Members(id), 4))
	e.Reconcile(chunkOf(2, plainMessages(8)))
	assert.Equal(t, []MessageKey{KeyOf(2, 5), KeyOf(2, 6), KeyOf(2, 7)}, filterChunk(e.Groups().Members(id), 2))

	p, unresolved := e.Payload()
	assert.Zero(t, unresolved)
	assert.Len(t, p.Groups.Assignments, 9)

	// A grown chunk is covered up to its new length.
	e.Reconcile(chunkOf(3, plainMessages(6)))
	assert.Len(t, filterChunk(e.Groups().Members(id), 3), 6)

	e.SecondaryClick(KeyOf(3, 2), nil)
	e.Reconcile(chunkOf(3, plainMessages(6)))
	assert.NotContains(t, e.Groups().Members(id), KeyOf(3, 2))
	assert.Contains(t, e.Groups().Members(id), KeyOf(3, 3))

	e.SecondaryClick(KeyOf(3, 0), Answers{RemoveGroup: true})
	e.Reconcile(chunkOf(4, plainMessages(6)))
	assert.Empty(t, e.Groups().Members(id))
	assert.Empty(t, e.Groups().Spans())
}

func TestEngine_DividerMergesIntoNamedGroup(t *testing.T) {
	e := newTestEngine()
	msgs := plainMessages(10)
	msgs[0].Group = &model.GroupEcho{ID: 2, Name: strPtr("Intro"), Color: strPtr("rgb(151, 152, 153)")}
	e.Reconcile(chunkOf(0, msgs))
	e.ToggleDividerMode()

	e.Click(KeyOf(0, 5), false, nil)
	res := e.Click(KeyOf(0, 6), false, Answers{Name: "  Intro "})
	require.NotNil(t, res.Commit)
	assert.True(t, res.Commit.Merged)
	assert.Equal(t, GroupID(2), res.Group)
	assert.Equal(t, Color("rgb(151, 152, 153)"), res.Commit.Color)
	assert.Equal(t, []MessageKey{KeyOf(0, 0), KeyOf(0, 5), KeyOf(0, 6)}, e.Groups().Members(2))

	e.Click(KeyOf(0, 8), false, nil)
	res = e.Click(KeyOf(0, 9), false, Answers{Name: "Outro"})
	assert.False(t, res.Commit.Merged)
	assert.Equal(t, GroupID(3), res.Group)
	name, _ := e.Groups().Name(3)
	assert.Equal(t, "Outro", name)
}

func TestEngine_SecondaryClickInMarkMode(t *testing.T) {
	e := newTestEngine()
	e.ToggleMarkMode()
	e.Click(KeyOf(0, 0), false, nil)

	res := e.SecondaryClick(KeyOf(0, 0), nil)
	assert.Equal(t, ActionUnmarked, res.Action)
	assert.False(t, e.Marks().Has(KeyOf(0, 0)))

	res = e.SecondaryClick(KeyOf(0, 0), nil)
	assert.Equal(t, ActionNone, res.Action)
}

func TestEngine_SecondaryClickOnGroup(t *testing.T) {
	e := newTestEngine()
	e.ToggleDividerMode()
	e.Click(KeyOf(0, 1), false, nil)
	id := e.Click(KeyOf(0, 4), false, nil).Group

	p := &recordingPrompter{}
	res := e.SecondaryClick(KeyOf(0, 2), p)
	assert.Equal(t, ActionUnassigned, res.Action)
	assert.Equal(t, []GroupID{id}, p.asked)
	assert.Equal(t, []MessageKey{KeyOf(0, 1), KeyOf(0, 3), KeyOf(0, 4)}, e.Groups().Members(id))

	p.confirm = true
	res = e.SecondaryClick(KeyOf(0, 3), p)
	assert.Equal(t, ActionGroupRemoved, res.Action)
	assert.Empty(t, e.Groups().Members(id))

	res = e.SecondaryClick(KeyOf(0, 3), p)
	assert.Equal(t, ActionNone, res.Action)
	assert.Len(t, p.asked, 2, "ungrouped messages do not prompt")
}

func TestEngine_ReconcileDiscardsLocalEditsOfThatChunk(t *testing.T) {
	e := newTestEngine()
	msgs := plainMessages(3)
	msgs[2].Marked = true
	e.Reconcile(chunkOf(0, msgs))

	e.ToggleMarkMode()
	e.Click(KeyOf(0, 0), false, nil)
	e.Click(KeyOf(0, 2), false, nil)
	e.Click(KeyOf(5, 0), false, nil)

	e.Reconcile(chunkOf(0, msgs))
	assert.Equal(t, []MessageKey{KeyOf(0, 2), KeyOf(5, 0)}, e.Marks().Keys())

	e.Reconcile(nil)
	assert.Equal(t, 2, e.Marks().Len())
}

func TestEngine_Payload(t *testing.T) {
	e := newTestEngine()
	e.ToggleMarkMode()
	e.Click(KeyOf(0, 1), false, nil)
	e.ToggleDividerMode()
	e.Click(KeyOf(2, 0), false, nil)
	res := e.Click(KeyOf(2, 1), false, Answers{Name: "Intro"})

	p, unresolved := e.Payload()
	assert.Zero(t, unresolved)
	assert.Equal(t, map[string]bool{"0:1": true}, p.Marks)
	require.Len(t, p.Groups.Assignments, 2)
	a := p.Groups.Assignments["2:1"]
	assert.Equal(t, int(res.Group), a.ID)
	assert.Equal(t, "Intro", a.Name)
	assert.Equal(t, string(res.Commit.Color), a.Color)
}

func TestEngine_SnapshotRestore(t *testing.T) {
	e := newTestEngine()
	e.Reconcile(chunkOf(0, plainMessages(4)))
	e.ToggleMarkMode()
	e.Click(KeyOf(0, 3), false, nil)
	e.ToggleDividerMode()
	e.Click(KeyOf(0, 1), false, nil)
	e.Click(KeyOf(2, 2), false, Answers{Name: "Body"})
	e.Click(KeyOf(0, 0), false, nil)

	data, err := e.MarshalSnapshot()
	require.NoError(t, err)

	restored := newTestEngine()
	require.NoError(t, restored.UnmarshalSnapshot(data))
	assert.Equal(t, e.Snapshot(), restored.Snapshot())
	assert.Equal(t, GroupID(2), restored.Groups().AllocateGroupID())

	assert.Error(t, restored.Restore(Snapshot{MarkMode: true, DividerMode: true}))
	k := KeyOf(0, 0)
	assert.Error(t, restored.Restore(Snapshot{Pending: &k}))
	assert.Error(t, restored.UnmarshalSnapshot([]byte(`{"marks":["nope"]}`)))
}

func TestEngine_ResetMarksAndGroups(t *testing.T) {
	e := newTestEngine()
	e.ToggleMarkMode()
	e.Click(KeyOf(0, 0), false, nil)
	e.ToggleDividerMode()
	e.Click(KeyOf(0, 0), false, nil)
	e.Click(KeyOf(0, 1), false, nil)
	e.Click(KeyOf(0, 5), false, nil)

	e.ResetMarks()
	e.ResetGroups()
	assert.Zero(t, e.Marks().Len())
	assert.Zero(t, e.Groups().Len())
	assert.Nil(t, e.Divider().Pending)
	assert.True(t, e.DividerMode())
	assert.Equal(t, GroupID(1), e.Groups().AllocateGroupID())
}

func filterChunk(keys []MessageKey, chunk int) []MessageKey {
	var out []MessageKey
	for _, k := range keys {
		if k.Chunk == chunk {
			out = append(out, k)
		}
	}
	return out
}
