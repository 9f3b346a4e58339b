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

// Package main demonstrates basic usage of the slotmem and gpualloc
// allocators.
package main

import (
	"fmt"

	"github.com/kaivo-engine/scenemem/gpualloc"
	"github.com/kaivo-engine/scenemem/internal/simdlane"
	"github.com/kaivo-engine/scenemem/slotmem"
)

// transformCache pretends to be a render-graph node that caches a slot index
// for a transform and needs to hear about relocations.
type transformCache struct {
	cachedSlot int
}

func (c *transformCache) BuildDiffList(tag slotmem.Tag, columns slotmem.ColumnBases) slotmem.DiffList {
	return nil // index-based caching needs no pointer diff.
}

func (c *transformCache) ApplyRebase(tag slotmem.Tag, columns slotmem.ColumnBases, diffs slotmem.DiffList) {
}

func (c *transformCache) PerformCleanup(tag slotmem.Tag, columns slotmem.ColumnBases, elemSizes []int, startSlot, runLength int) {
	if c.cachedSlot > startSlot {
		c.cachedSlot -= runLength
	}
}

type devicePool struct {
	id   int
	size int
}

type fakeDriver struct {
	next int
}

func (d *fakeDriver) CreatePool(sizeBytes int, class gpualloc.Class) (gpualloc.PoolHandle, error) {
	d.next++
	return &devicePool{id: d.next, size: sizeBytes}, nil
}

func (d *fakeDriver) DestroyPool(handle gpualloc.PoolHandle) {}

func main() {
	fmt.Println("=== scenemem demo ===")
	fmt.Printf("SIMD level: %s, lane width: %d bytes, packed lanes: %d\n\n",
		simdlane.CurrentLevel(), simdlane.CurrentWidth(), simdlane.PackedLanes())

	fmt.Println("1. SoA slot manager (transform + bounding-sphere columns):")
	cache := &transformCache{}
	mgr, err := slotmem.New(slotmem.Config{
		ColumnSizes:      []int{64, 16}, // 4x4 matrix, vec4 bounding sphere
		HintCapacity:     4,
		HardLimit:        64,
		CleanupThreshold: 2,
		Listener:         cache,
		Tag:              slotmem.Tag{Type: 1, Depth: 0},
	})
	if err != nil {
		panic(err)
	}

	var slots []int
	for i := 0; i < 4; i++ {
		s, err := mgr.Allocate()
		if err != nil {
			panic(err)
		}
		slots = append(slots, s)
	}
	fmt.Printf("  allocated slots: %v (capacity %d)\n", slots, mgr.Capacity())

	cache.cachedSlot = 3
	mgr.FreeSlot(0)
	mgr.FreeSlot(1)
	fmt.Printf("  after two non-trailing frees, used=%d wasted=%d\n", mgr.Used(), mgr.WastedMemory())

	fmt.Println("\n2. GPU buffer sub-allocator (vertex buffer pools):")
	driver := &fakeDriver{}
	gp, err := gpualloc.New(gpualloc.Config{
		Factory: driver,
		Classes: map[gpualloc.Class]gpualloc.ClassConfig{
			gpualloc.CPUInaccessible: {DefaultPoolSize: 1024},
			gpualloc.CPUAccessible:   {DefaultPoolSize: 256, Dynamic: true, DynamicMultiplier: 3},
		},
	})
	if err != nil {
		panic(err)
	}

	pi, off, err := gp.Allocate(100, 4, gpualloc.CPUInaccessible)
	if err != nil {
		panic(err)
	}
	fmt.Printf("  static mesh data: pool %d, offset %d\n", pi, off)

	pi2, off2, err := gp.Allocate(50, 8, gpualloc.CPUInaccessible)
	if err != nil {
		panic(err)
	}
	fmt.Printf("  second allocation: pool %d, offset %d (stride padding reclaimed on free)\n", pi2, off2)

	gp.Deallocate(pi2, off2, 50, gpualloc.CPUInaccessible)
	gp.Deallocate(pi, off, 100, gpualloc.CPUInaccessible)
	fmt.Println("  both freed and coalesced back into a single block")

	pi3, off3, err := gp.Allocate(4096, 16, gpualloc.CPUInaccessible)
	if err != nil {
		panic(err)
	}
	fmt.Printf("  oversized allocation gets its own exactly-sized pool: pool %d, offset %d\n", pi3, off3)
}
