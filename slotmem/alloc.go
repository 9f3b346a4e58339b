package slotmem

import "unsafe"

// Allocate returns a slot index. It prefers reusing a freed slot over
// extending the dense prefix, so zero-initialization cost is paid only
// once and so consumer tables stay stable when possible.
//
// Allocate grows the manager when the dense prefix is exhausted and a
// listener is present, and fails with ErrCapacityExhausted when it is
// full and cannot grow (no listener, or already at the hard limit).
func (m *Manager) Allocate() (int, error) {
	if n := len(m.free); n > 0 {
		slot := m.free[n-1]
		m.free = m.free[:n-1]
		return slot, nil
	}

	if m.used >= m.n {
		if err := m.grow(); err != nil {
			return 0, err
		}
	}

	slot := m.used
	m.used++
	return slot, nil
}

// grow reallocates every column to a larger capacity, announcing the move
// to the listener via BuildDiffList/ApplyRebase. It leaves the manager
// entirely unchanged on failure.
func (m *Manager) grow() error {
	if m.n >= m.hardLimit {
		return ErrCapacityExhausted
	}

	newN := roundUpW(m.n+m.n/2, m.lanes)
	if newN > m.hardLimit {
		newN = m.hardLimit
	}

	var diffs DiffList
	if m.listener != nil {
		diffs = m.listener.BuildDiffList(m.tag, m.columnBases())
	}

	for k, es := range m.elemSizes {
		newCol := newAlignedZeroed(newN * es)
		copy(newCol, m.columns[k][:m.n*es])
		m.columns[k] = newCol
	}
	m.n = newN

	if m.listener != nil {
		m.listener.ApplyRebase(m.tag, m.columnBases(), diffs)
	}
	return nil
}

// Free returns a slot to the manager, given a pointer to an element of
// column 0 and a lane offset within that element (laneIndex < the manager's
// packed lane count, permitting callers to free in lane-granular terms from
// a SIMD batch). The resulting slot is
//
//	(ptr - column0Base) / elemSizes[0] + laneIndex
//
// Passing a pointer that does not belong to column 0 of this manager, or a
// laneIndex that pushes the computed slot out of [0, N), is a precondition
// violation and panics: it indicates a programming error in the caller, not
// a recoverable runtime condition.
func (m *Manager) Free(ptr unsafe.Pointer, laneIndex int) {
	if laneIndex < 0 || laneIndex >= m.lanes {
		panic("slotmem: lane index out of range")
	}
	base0 := uintptr(m.ColumnPointer(0))
	p := uintptr(ptr)
	if p < base0 {
		panic("slotmem: pointer precedes column 0 base")
	}
	es0 := m.elemSizes[0]
	elemOffset := (p - base0) / uintptr(es0)
	if (p-base0)%uintptr(es0) != 0 {
		panic("slotmem: pointer is not aligned to column 0's element size")
	}
	slot := int(elemOffset) + laneIndex
	m.FreeSlot(slot)
}

// FreeSlot returns slot directly to the manager, skipping the pointer
// arithmetic Free performs. It is a precondition violation (and panics) to
// free a slot outside [0, N) or one already on the free list.
func (m *Manager) FreeSlot(slot int) {
	if slot < 0 || slot >= m.n {
		panic("slotmem: slot does not belong to this manager")
	}

	if slot+1 == m.used {
		// Trailing free: the common LIFO case. Free-listed slots that now
		// end the dense prefix are folded into U as well, so the free list
		// never holds U-1.
		m.used--
		for m.used > 0 {
			idx := -1
			for i, f := range m.free {
				if f == m.used-1 {
					idx = i
					break
				}
			}
			if idx < 0 {
				break
			}
			m.free = append(m.free[:idx], m.free[idx+1:]...)
			m.used--
		}
		return
	}

	for _, f := range m.free {
		if f == slot {
			panic("slotmem: slot already freed")
		}
	}

	m.free = append(m.free, slot)
	if len(m.free) > m.cleanupThreshold {
		m.compact()
	}
}
