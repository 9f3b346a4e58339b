package slotmem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cleanupCall struct {
	start, run int
}

type recordingListener struct {
	diffBuilds   int
	diffApplies  int
	cleanups     []cleanupCall
	lastDiffList DiffList
}

func (l *recordingListener) BuildDiffList(tag Tag, columns ColumnBases) DiffList {
	l.diffBuilds++
	bases := append(ColumnBases(nil), columns...)
	l.lastDiffList = bases
	return bases
}

func (l *recordingListener) ApplyRebase(tag Tag, columns ColumnBases, diffs DiffList) {
	l.diffApplies++
}

func (l *recordingListener) PerformCleanup(tag Tag, columns ColumnBases, elemSizes []int, startSlot, runLength int) {
	l.cleanups = append(l.cleanups, cleanupCall{startSlot, runLength})
}

// scenario 1: W=4, two columns, hint N0=3, H0=32, no listener.
func TestScenario_NoListenerPinsHardLimit(t *testing.T) {
	m, err := New(Config{
		ColumnSizes:  []int{64, 32},
		HintCapacity: 3,
		HardLimit:    32,
		Lanes:        4,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, m.Capacity())
	assert.Equal(t, 4, m.HardLimit())

	for want := 0; want < 4; want++ {
		got, err := m.Allocate()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = m.Allocate()
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

// scenario 2: N0=4, H=16, listener, C=2; interleaved frees trigger compaction.
func TestScenario_CompactionOnThreeFrees(t *testing.T) {
	listener := &recordingListener{}
	m, err := New(Config{
		ColumnSizes:      []int{64, 32},
		HintCapacity:     4,
		HardLimit:        16,
		CleanupThreshold: 2,
		Listener:         listener,
		Lanes:            4,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		slot, err := m.Allocate()
		require.NoError(t, err)
		require.Equal(t, i, slot)
	}

	m.FreeSlot(1)
	m.FreeSlot(2)
	require.Len(t, listener.cleanups, 0, "cleanup threshold not yet exceeded")

	m.FreeSlot(0)

	require.Len(t, listener.cleanups, 1)
	assert.Equal(t, cleanupCall{2, 3}, listener.cleanups[0])
	assert.Equal(t, 1, m.Used())
	assert.Empty(t, m.free)
}

// scenario 3: N0=4, H=16; a fifth allocation grows capacity to 8.
func TestScenario_GrowOnFifthAllocate(t *testing.T) {
	listener := &recordingListener{}
	m, err := New(Config{
		ColumnSizes:  []int{64, 32},
		HintCapacity: 4,
		HardLimit:    16,
		Listener:     listener,
		Lanes:        4,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := m.Allocate()
		require.NoError(t, err)
	}

	slot, err := m.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 4, slot)
	assert.Equal(t, 8, m.Capacity())
	assert.Equal(t, 1, listener.diffBuilds)
	assert.Equal(t, 1, listener.diffApplies)
}

// scenario 6: slots freed = {1, 3, 4, 7} out of U = 9, producing three runs.
func TestScenario_NonContiguousRuns(t *testing.T) {
	listener := &recordingListener{}
	m, err := New(Config{
		ColumnSizes:      []int{16},
		HintCapacity:     9,
		HardLimit:        32,
		CleanupThreshold: 3,
		Listener:         listener,
		Lanes:            4,
	})
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		_, err := m.Allocate()
		require.NoError(t, err)
	}

	m.FreeSlot(1)
	m.FreeSlot(3)
	m.FreeSlot(4)
	require.Len(t, listener.cleanups, 0)
	m.FreeSlot(7)

	require.Len(t, listener.cleanups, 3)
	assert.Equal(t, cleanupCall{7, 1}, listener.cleanups[0])
	assert.Equal(t, cleanupCall{4, 2}, listener.cleanups[1])
	assert.Equal(t, cleanupCall{1, 1}, listener.cleanups[2])
	assert.Equal(t, 5, m.Used())
}

func TestLIFOKeepsFreeListEmpty(t *testing.T) {
	m, err := New(Config{
		ColumnSizes:  []int{8},
		HintCapacity: 4,
		Lanes:        4,
	})
	require.NoError(t, err)

	var slots []int
	for i := 0; i < 4; i++ {
		s, err := m.Allocate()
		require.NoError(t, err)
		slots = append(slots, s)
	}
	for i := len(slots) - 1; i >= 0; i-- {
		m.FreeSlot(slots[i])
	}
	assert.Empty(t, m.free)
	assert.Equal(t, 0, m.Used())
}

func TestFreeListHasNoDuplicatesOrOutOfRange(t *testing.T) {
	m, err := New(Config{
		ColumnSizes:      []int{8},
		HintCapacity:     8,
		HardLimit:        8,
		CleanupThreshold: 100,
		Lanes:            4,
	})
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := m.Allocate()
		require.NoError(t, err)
	}
	m.FreeSlot(0)
	m.FreeSlot(2)
	m.FreeSlot(4)

	seen := map[int]bool{}
	for _, s := range m.free {
		assert.False(t, seen[s], "duplicate slot %d in free list", s)
		seen[s] = true
		assert.True(t, s >= 0 && s < m.Used())
	}
}

func TestGrowthStaysAlignedAndWithinHardLimit(t *testing.T) {
	listener := &recordingListener{}
	m, err := New(Config{
		ColumnSizes:  []int{4},
		HintCapacity: 4,
		HardLimit:    100,
		Listener:     listener,
		Lanes:        4,
	})
	require.NoError(t, err)

	prev := m.Capacity()
	for i := 0; i < 4; i++ {
		_, err := m.Allocate()
		require.NoError(t, err)
	}
	_, err = m.Allocate()
	require.NoError(t, err)

	assert.Equal(t, 0, m.Capacity()%4)
	assert.LessOrEqual(t, m.Capacity(), m.HardLimit())
	assert.True(t, m.Capacity() == m.HardLimit() || m.Capacity() >= prev+prev/2)
}

func TestZeroTailAfterConstructionAndGrowth(t *testing.T) {
	listener := &recordingListener{}
	m, err := New(Config{
		ColumnSizes:  []int{4},
		HintCapacity: 4,
		HardLimit:    64,
		Listener:     listener,
		Lanes:        4,
	})
	require.NoError(t, err)

	col := m.Column(0)
	for _, b := range col {
		assert.Equal(t, byte(0), b)
	}

	for i := 0; i < 4; i++ {
		_, err := m.Allocate()
		require.NoError(t, err)
	}
	_, err = m.Allocate() // triggers growth
	require.NoError(t, err)

	col = m.Column(0)
	tail := col[m.Used()*m.ColumnElementSize(0):]
	for _, b := range tail {
		assert.Equal(t, byte(0), b)
	}
}

func TestIntrospectionAccounting(t *testing.T) {
	m, err := New(Config{
		ColumnSizes:  []int{16, 8},
		HintCapacity: 4,
		Lanes:        4,
	})
	require.NoError(t, err)

	stride := 24
	assert.Equal(t, 4*stride, m.TotalMemory())
	assert.Equal(t, 4*stride, m.FreeMemory())
	assert.Equal(t, 0, m.UsedMemory())

	a, _ := m.Allocate()
	b, _ := m.Allocate()
	_ = a
	m.FreeSlot(b) // trailing free, fast path: no waste recorded

	assert.Equal(t, 1*stride, m.UsedMemory())
	assert.Equal(t, 0, m.WastedMemory())

	m.Allocate()
	m.Allocate()
	m.FreeSlot(1) // not trailing: goes to free list

	assert.Equal(t, 1*stride, m.WastedMemory())
}

func TestFreeByPointerAndLane(t *testing.T) {
	m, err := New(Config{
		ColumnSizes:  []int{16},
		HintCapacity: 4,
		Lanes:        4,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := m.Allocate()
		require.NoError(t, err)
	}

	base := m.ElementPointer(0, 0)
	m.Free(base, 3) // slot (0 elements in) + lane 3 = slot 3, trailing free
	assert.Equal(t, 3, m.Used())
}

func TestFreeOutOfRangePanics(t *testing.T) {
	m, err := New(Config{ColumnSizes: []int{8}, HintCapacity: 4, Lanes: 4})
	require.NoError(t, err)
	_, _ = m.Allocate()

	assert.Panics(t, func() {
		m.FreeSlot(99)
	})
}

func TestColumnPointersNonNil(t *testing.T) {
	m, err := New(Config{ColumnSizes: []int{8, 4}, HintCapacity: 4, Lanes: 4})
	require.NoError(t, err)
	for k := 0; k < m.NumColumns(); k++ {
		assert.NotEqual(t, unsafe.Pointer(nil), m.ColumnPointer(k))
	}
}
