// Copyright 2025 scenemem Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package slotmem implements a dense, structure-of-arrays slot allocator.
//
// A Manager owns P parallel "columns", each N elements wide, for a fixed
// column schema of per-element byte sizes. Callers ask for a slot index with
// Allocate and give it back with Free; columns expose raw pointers so SIMD
// kernels can walk them directly instead of going through per-element method
// calls. Capacity grows geometrically on demand and a cleanup pass compacts
// away slots freed out of LIFO order, both of which can relocate live data;
// a RebaseListener is how the manager tells the outside world that happened.
//
// A Manager is single-threaded cooperative: every method runs to completion
// without suspending, there is no internal locking, and Allocate/Free must
// not be called reentrantly (including from within a RebaseListener
// callback invoked by this same manager).
package slotmem

import (
	"fmt"
	"unsafe"

	"github.com/kaivo-engine/scenemem/internal/simdlane"
)

// Config carries the construction-time parameters for a Manager. The
// compatibility promise is the same as for struct types in the standard
// library: add fields, don't remove or reorder them, and rely on the zero
// value behaving reasonably (Lanes and Listener are optional).
type Config struct {
	// ColumnSizes is E: the per-element byte size of each column, in
	// column order. Must be non-empty; every size must be >= 1.
	ColumnSizes []int

	// HintCapacity is N0, the starting slot count before rounding.
	HintCapacity int

	// HardLimit is H0, the upper bound on capacity before rounding. If
	// Listener is nil, the manager cannot announce a grow and this is
	// ignored: the hard limit is pinned to the rounded HintCapacity.
	HardLimit int

	// CleanupThreshold is C: a compaction runs once the free list grows
	// past this many entries. If Listener is nil, compaction (and thus
	// cleanup) is disabled.
	CleanupThreshold int

	// Listener receives grow and compaction notifications. May be nil,
	// in which case the manager can never relocate its columns: it is
	// pinned at its rounded starting capacity and never compacts.
	Listener RebaseListener

	// Tag identifies this manager to Listener.
	Tag Tag

	// Lanes is W, the packed lane count that capacities round to. If
	// <= 0, simdlane.PackedLanes() is used, i.e. the lane count derived
	// from the SIMD width detected for this process.
	Lanes int
}

// Manager is a structure-of-arrays slot allocator. See the package doc.
type Manager struct {
	elemSizes []int
	columns   [][]byte

	n         int // N: current capacity, in slots
	hardLimit int // H
	used      int // U: slots handed out, including ones on the free list
	free      []int

	cleanupThreshold int // C
	lanes            int // W

	listener RebaseListener
	tag      Tag
}

// New constructs a Manager from cfg. Columns are allocated zero-initialized
// and 16-byte aligned (simdlane.Alignment).
func New(cfg Config) (*Manager, error) {
	if len(cfg.ColumnSizes) == 0 {
		return nil, fmt.Errorf("slotmem: column schema must be non-empty")
	}
	for i, es := range cfg.ColumnSizes {
		if es < 1 {
			return nil, fmt.Errorf("slotmem: column %d has non-positive element size %d", i, es)
		}
	}

	lanes := cfg.Lanes
	if lanes <= 0 {
		lanes = simdlane.PackedLanes()
	}
	if lanes < 1 {
		lanes = 1
	}

	n := roundUpW(max(2, cfg.HintCapacity), lanes)
	hardLimit := roundUpW(cfg.HardLimit, lanes)
	if hardLimit < n {
		hardLimit = n
	}

	cleanupThreshold := cfg.CleanupThreshold
	if cfg.Listener == nil {
		// Without a listener the manager can't announce a move, so it
		// must never move: pin the hard limit to the starting capacity
		// and disable compaction.
		hardLimit = n
		cleanupThreshold = maxInt
	}

	m := &Manager{
		elemSizes:        append([]int(nil), cfg.ColumnSizes...),
		columns:          make([][]byte, len(cfg.ColumnSizes)),
		n:                n,
		hardLimit:        hardLimit,
		cleanupThreshold: cleanupThreshold,
		lanes:            lanes,
		listener:         cfg.Listener,
		tag:              cfg.Tag,
	}
	for k, es := range m.elemSizes {
		m.columns[k] = newAlignedZeroed(n * es)
	}
	return m, nil
}

// roundUpW rounds x up to the next multiple of w. w <= 1 is a no-op.
func roundUpW(x, w int) int {
	if w <= 1 {
		return x
	}
	rem := x % w
	if rem == 0 {
		return x
	}
	return x + (w - rem)
}

const maxInt = int(^uint(0) >> 1)

// newAlignedZeroed allocates a zero-initialized byte slice whose backing
// array starts at a simdlane.Alignment-byte boundary. Go's allocator does
// not otherwise guarantee this for arbitrary sizes, so the slice is padded
// and trimmed to an aligned offset.
func newAlignedZeroed(size int) []byte {
	if size == 0 {
		// Still return a non-nil, non-empty-backed slice so column base
		// pointers are always valid to hand to a listener or kernel.
		size = 1
	}
	buf := make([]byte, size+simdlane.Alignment-1)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	offset := (simdlane.Alignment - int(addr%simdlane.Alignment)) % simdlane.Alignment
	return buf[offset : offset+size : offset+size]
}

// Capacity returns N, the current slot capacity.
func (m *Manager) Capacity() int { return m.n }

// HardLimit returns H, the upper bound capacity can grow to.
func (m *Manager) HardLimit() int { return m.hardLimit }

// Used returns U, the end of the dense prefix of handed-out slots. Slots
// freed out of order and still sitting on the free list are counted;
// slots returned through a trailing free are not.
func (m *Manager) Used() int { return m.used }

// NumColumns returns P, the number of parallel columns.
func (m *Manager) NumColumns() int { return len(m.columns) }

// ColumnElementSize returns the byte size of column k's elements.
func (m *Manager) ColumnElementSize(k int) int { return m.elemSizes[k] }

// Column returns the raw bytes backing column k, sized N*elemSizes[k].
// SIMD kernels are expected to reinterpret this as a typed slice; the
// pointer is only valid until the next grow or compaction.
func (m *Manager) Column(k int) []byte { return m.columns[k] }

// ColumnPointer returns the base address of column k.
func (m *Manager) ColumnPointer(k int) unsafe.Pointer {
	return unsafe.Pointer(&m.columns[k][0])
}

// ElementPointer returns the address of slot's element within column k.
func (m *Manager) ElementPointer(k, slot int) unsafe.Pointer {
	es := m.elemSizes[k]
	return unsafe.Pointer(&m.columns[k][slot*es])
}

func (m *Manager) columnBases() ColumnBases {
	bases := make(ColumnBases, len(m.columns))
	for k := range m.columns {
		bases[k] = m.ColumnPointer(k)
	}
	return bases
}

// FreeMemory returns the byte count of slots not currently live: unused
// capacity plus slots sitting on the free list.
func (m *Manager) FreeMemory() int {
	return (m.n - m.used + len(m.free)) * m.elementStride()
}

// UsedMemory returns the byte count of live slots.
func (m *Manager) UsedMemory() int {
	return (m.used - len(m.free)) * m.elementStride()
}

// WastedMemory returns the byte count tied up in freed-but-not-reclaimed
// slots sitting on the free list.
func (m *Manager) WastedMemory() int {
	return len(m.free) * m.elementStride()
}

// TotalMemory returns the byte count of the full current capacity.
func (m *Manager) TotalMemory() int {
	return m.n * m.elementStride()
}

func (m *Manager) elementStride() int {
	total := 0
	for _, es := range m.elemSizes {
		total += es
	}
	return total
}
