package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkSet_ReconcileMirrorsServerFlags(t *testing.T) {
	s := NewMarkSet()
	msgs := plainMessages(5)
	msgs[1].Marked = true
	msgs[3].Marked = true

	s.Add(KeyOf(2, 0))
	s.Add(KeyOf(2, 9))
	s.Add(KeyOf(7, 1))
	s.Reconcile(2, msgs)

	for i, m := range msgs {
		assert.Equalf(t, m.Marked, s.Has(KeyOf(2, i)), "position %d", i)
	}
	assert.False(t, s.Has(KeyOf(2, 9)), "positions past the chunk end are dropped")
	assert.True(t, s.Has(KeyOf(7, 1)), "other chunks are untouched")
}

func TestMarkSet_ReconcileOverwritesLocalToggles(t *testing.T) {
	s := NewMarkSet()
	msgs := plainMessages(3)
	msgs[0].Marked = true
	s.Reconcile(0, msgs)

	s.Toggle(KeyOf(0, 0))
	s.Toggle(KeyOf(0, 2))
	s.Reconcile(0, msgs)

	assert.True(t, s.Has(KeyOf(0, 0)))
	assert.False(t, s.Has(KeyOf(0, 2)))
}

func TestMarkSet_ToggleIsSelfInverse(t *testing.T) {
	s := NewMarkSet()
	k := KeyOf(1, 4)
	assert.True(t, s.Toggle(k))
	assert.False(t, s.Toggle(k))
	assert.Equal(t, 0, s.Len())

	s.Add(k)
	s.Toggle(k)
	s.Toggle(k)
	assert.True(t, s.Has(k))
}

func TestMarkSet_SetRange(t *testing.T) {
	s := NewMarkSet()
	assert.Equal(t, 1, s.SetRange(0, 2, 2))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Has(KeyOf(0, 2)))

	s.Add(KeyOf(0, 10))
	assert.Equal(t, 4, s.SetRange(0, 7, 4))
	assert.Equal(t, []MessageKey{KeyOf(0, 2), KeyOf(0, 4), KeyOf(0, 5), KeyOf(0, 6), KeyOf(0, 7), KeyOf(0, 10)}, s.Keys())
}

func TestMarkSet_ClearAndSerialize(t *testing.T) {
	s := NewMarkSet()
	s.Add(KeyOf(0, 1))
	s.Add(KeyOf(3, 2))
	assert.True(t, s.Clear(KeyOf(0, 1)))
	assert.False(t, s.Clear(KeyOf(0, 1)))
	assert.Equal(t, map[string]bool{"3:2": true}, s.Serialize())

	s.Reset()
	assert.Empty(t, s.Serialize())
}
