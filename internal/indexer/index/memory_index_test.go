package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexFieldQualifiedTerms(t *testing.T) {
	m := NewMemoryIndex()
	m.AddDocument("b", []FieldTerm{
		{Field: "title", Term: "fox", Position: 0},
		{Field: "title", Term: "fox", Position: 2},
		{Field: "tags", Term: "fox"},
	})
	m.AddDocument("a", []FieldTerm{{Field: "title", Term: "fox"}})

	got := m.Search("title", "fox")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].DocID)
	assert.Equal(t, 2, got[1].Frequency)
	assert.Equal(t, []int{0, 2}, got[1].Positions)

	assert.Len(t, m.Search("tags", "fox"), 1)
	assert.Nil(t, m.Search("body", "fox"))
	assert.Equal(t, 2, m.DocCount())
	assert.Positive(t, m.Size())
}

func TestMemoryIndexSnapshotAndReset(t *testing.T) {
	m := NewMemoryIndex()
	m.AddDocument("1", []FieldTerm{{Field: "b", Term: "x"}, {Field: "a", Term: "y"}})

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	field, term := SplitKey(snap[0].Term)
	assert.Equal(t, "a", field)
	assert.Equal(t, "y", term)

	m.Reset()
	assert.Empty(t, m.Snapshot())
	assert.Zero(t, m.DocCount())
	assert.Zero(t, m.Size())
}
