package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AssignsIDsFromFreeList(t *testing.T) {
	t.Parallel()
	tbl := NewTable(3)
	for want := 1; want <= 3; want++ {
		tr := tbl.Insert(Track{})
		require.NotNil(t, tr)
		assert.Equal(t, want, tr.ID)
	}
	assert.True(t, tbl.Full())
	assert.Nil(t, tbl.Insert(Track{}), "full table refuses inserts")

	_, ok := tbl.Remove(2)
	require.True(t, ok)
	assert.Equal(t, 2, tbl.Insert(Track{}).ID)

	tbl.Remove(1)
	tbl.Remove(3)
	assert.Equal(t, 1, tbl.Insert(Track{}).ID, "released ids are reused first in, first out")
	assert.Equal(t, 3, tbl.Insert(Track{}).ID)

	_, ok = tbl.Remove(99)
	assert.False(t, ok)
}

func TestTable_SlotOrderIsStable(t *testing.T) {
	t.Parallel()
	tbl := NewTable(4)
	for i := 0; i < 4; i++ {
		tbl.Insert(Track{Range: float64(i)})
	}
	tbl.Remove(2)
	tbl.Insert(Track{Range: 99}) // reuses slot 1

	var ranges []float64
	tbl.Each(func(tr *Track) { ranges = append(ranges, tr.Range) })
	assert.Equal(t, []float64{0, 99, 2, 3}, ranges)
}

func TestTable_OldestBreaksTiesByCreation(t *testing.T) {
	t.Parallel()
	tbl := NewTable(3)
	a := tbl.Insert(Track{Age: 1}).ID
	b := tbl.Insert(Track{Age: 1}).ID
	tbl.Insert(Track{Age: 0.5})

	assert.Equal(t, a, tbl.Oldest().ID)
	tbl.Get(b).Age = 2
	assert.Equal(t, b, tbl.Oldest().ID)
}

func TestTable_Clear(t *testing.T) {
	t.Parallel()
	tbl := NewTable(2)
	tbl.Insert(Track{})
	tbl.Insert(Track{})
	tbl.Remove(1)

	tbl.Clear()
	assert.Equal(t, 0, tbl.Len())
	assert.Nil(t, tbl.Oldest())
	assert.Equal(t, 1, tbl.Insert(Track{}).ID)
	assert.Equal(t, 2, tbl.Insert(Track{}).ID)
}

func TestSignalHistory(t *testing.T) {
	t.Parallel()
	h := newSignalHistory(3)
	assert.Equal(t, 0.0, h.Mean())
	_, ok := h.Last()
	assert.False(t, ok)

	for _, v := range []float64{1, 2, 3, 4} {
		h.Add(v)
	}
	assert.Equal(t, []float64{2, 3, 4}, h.Values())
	assert.InDelta(t, 3.0, h.Mean(), 1e-12)
	assert.Equal(t, 4.0, h.Max())
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 4.0, last)

	cp := h
	cp.Add(10)
	assert.Equal(t, []float64{2, 3, 4}, h.Values(), "copies do not share samples")
}

func TestTypeBits(t *testing.T) {
	t.Parallel()
	tb := TypeAir | TypeOnboard
	assert.True(t, tb.Has(TypeAir))
	assert.False(t, tb.Has(TypeGround))
	assert.Equal(t, "air|onboard", tb.String())
	assert.Equal(t, TypeBits(1), TypeAir)
	assert.Equal(t, TypeBits(16), TypeDatalink)

	got, ok := ParseType("RWR")
	require.True(t, ok)
	assert.Equal(t, TypeRWR, got)
	_, ok = ParseType("sea")
	assert.False(t, ok)
}
