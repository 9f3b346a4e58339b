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

// Package gpualloc implements a sub-allocator over a small number of large
// backing buffers ("pools"), one set per Class. It hands out byte ranges
// within a pool instead of allocating a whole buffer per request, which is
// the shape a graphics driver wants: few buffer objects, each big, carved up
// on the CPU side.
//
// Like slotmem, an Allocator is single-threaded cooperative: Allocate and
// Deallocate run to completion without yielding and must not be called
// reentrantly.
package gpualloc

import "fmt"

// Config carries the construction-time parameters for an Allocator.
type Config struct {
	// Factory creates backing buffers on demand. Required.
	Factory PoolFactory

	// Classes configures each Class the allocator will be asked to serve.
	// A Class requested at Allocate time with no entry here uses a default
	// pool size of 0, meaning every pool is sized to exactly fit its first
	// allocation.
	Classes map[Class]ClassConfig
}

// Allocator hands out byte ranges from a growing set of pools, grouped by
// Class, preferring a first-fit free block that needs no alignment padding
// over one that does, and falling back to a freshly created pool when no
// existing block fits.
type Allocator struct {
	factory PoolFactory
	classes map[Class]ClassConfig
	pools   map[Class][]*pool
}

// New constructs an Allocator. Factory must be non-nil.
func New(cfg Config) (*Allocator, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("gpualloc: Factory must not be nil")
	}
	a := &Allocator{
		factory: cfg.Factory,
		classes: cfg.Classes,
		pools:   make(map[Class][]*pool),
	}
	return a, nil
}

// PoolCount returns the number of pools currently backing class.
func (a *Allocator) PoolCount(class Class) int {
	return len(a.pools[class])
}

// PoolHandle returns the backing handle for pool poolIndex of class.
func (a *Allocator) PoolHandle(class Class, poolIndex int) PoolHandle {
	return a.pools[class][poolIndex].handle
}

// PoolCapacity returns the byte size of pool poolIndex of class.
func (a *Allocator) PoolCapacity(class Class, poolIndex int) int {
	return a.pools[class][poolIndex].capacity
}

func ceilDiv(x, d int) int {
	return (x + d - 1) / d
}

func alignUp(offset, elemSize int) int {
	return ceilDiv(offset, elemSize) * elemSize
}

// Allocate reserves size bytes, starting at an offset that is a multiple of
// bytesPerElement, within a pool of class. It returns the index of the pool
// (stable for the pool's lifetime) and the byte offset within it.
//
// The search prefers the first free block requiring no alignment padding;
// failing that, it falls back to the last block seen that fits at all,
// padding included. If no existing pool has room, a new one is created via the
// configured PoolFactory, sized to the class's DefaultPoolSize or to size,
// whichever is larger.
//
// bytesPerElement must be >= 1; violating this is a programming error and
// panics rather than returning an error.
func (a *Allocator) Allocate(size, bytesPerElement int, class Class) (poolIndex, offset int, err error) {
	if bytesPerElement < 1 {
		panic("gpualloc: bytesPerElement must be >= 1")
	}
	if size < 1 {
		panic("gpualloc: size must be >= 1")
	}

	cfg := a.classes[class]
	if cfg.Dynamic {
		mult := cfg.DynamicMultiplier
		if mult < 1 {
			mult = 1
		}
		size *= mult
	}

	pools := a.pools[class]
	bestPool, bestBlock := -1, -1
	for pi, p := range pools {
		for bi, blk := range p.freeBlocks {
			aligned := alignUp(blk.offset, bytesPerElement)
			pad := aligned - blk.offset
			if size > blk.size-pad {
				continue
			}
			bestPool, bestBlock = pi, bi
			if pad == 0 {
				goto found
			}
		}
	}
found:

	if bestPool == -1 {
		poolSize := cfg.DefaultPoolSize
		if size > poolSize {
			poolSize = size
		}
		handle, cerr := a.factory.CreatePool(poolSize, class)
		if cerr != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrPoolCreationFailed, cerr)
		}
		pools = append(pools, &pool{
			handle:     handle,
			capacity:   poolSize,
			freeBlocks: []block{{offset: 0, size: poolSize}},
		})
		a.pools[class] = pools
		bestPool, bestBlock = len(pools)-1, 0
	}

	p := pools[bestPool]
	blk := p.freeBlocks[bestBlock]
	aligned := alignUp(blk.offset, bytesPerElement)
	pad := aligned - blk.offset

	remaining := blk.size - pad - size
	if remaining > 0 {
		p.freeBlocks[bestBlock] = block{offset: aligned + size, size: remaining}
	} else {
		p.freeBlocks = append(p.freeBlocks[:bestBlock], p.freeBlocks[bestBlock+1:]...)
	}

	if pad > 0 {
		a.insertStrideChanger(p, strideChanger{offsetAfterPadding: aligned, paddedBytes: pad})
	}

	return bestPool, aligned, nil
}

func (a *Allocator) insertStrideChanger(p *pool, sc strideChanger) {
	i := 0
	for i < len(p.strideChangers) && p.strideChangers[i].offsetAfterPadding < sc.offsetAfterPadding {
		i++
	}
	p.strideChangers = append(p.strideChangers, strideChanger{})
	copy(p.strideChangers[i+1:], p.strideChangers[i:])
	p.strideChangers[i] = sc
}

// Deallocate returns the byte range [offset, offset+size) of pool poolIndex
// in class to the free list, reabsorbing any alignment padding recorded at
// allocation time and coalescing with any now-adjacent free blocks.
//
// An out-of-range poolIndex is a precondition violation and panics.
func (a *Allocator) Deallocate(poolIndex, offset, size int, class Class) {
	pools := a.pools[class]
	if poolIndex < 0 || poolIndex >= len(pools) {
		panic("gpualloc: pool index out of range")
	}
	p := pools[poolIndex]

	lo, hi := 0, len(p.strideChangers)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.strideChangers[mid].offsetAfterPadding < offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(p.strideChangers) && p.strideChangers[lo].offsetAfterPadding == offset {
		sc := p.strideChangers[lo]
		offset -= sc.paddedBytes
		size += sc.paddedBytes
		p.strideChangers = append(p.strideChangers[:lo], p.strideChangers[lo+1:]...)
	}

	p.freeBlocks = append(p.freeBlocks, block{offset: offset, size: size})
	a.coalesce(p, len(p.freeBlocks)-1)
}

// coalesce repeatedly merges the free block at idx with any block adjacent
// to it, until none remains. Each merge strictly shrinks the free block
// count, so the loop terminates.
func (a *Allocator) coalesce(p *pool, idx int) {
	for {
		b := p.freeBlocks[idx]
		removeIdx, surviveIdx := -1, -1

		for i := range p.freeBlocks {
			if i == idx {
				continue
			}
			other := p.freeBlocks[i]
			if other.offset+other.size == b.offset {
				p.freeBlocks[i].size += b.size
				removeIdx, surviveIdx = idx, i
				break
			}
			if b.offset+b.size == other.offset {
				p.freeBlocks[idx].size += other.size
				removeIdx, surviveIdx = i, idx
				break
			}
		}

		if removeIdx == -1 {
			return
		}

		p.freeBlocks = append(p.freeBlocks[:removeIdx], p.freeBlocks[removeIdx+1:]...)
		if removeIdx < surviveIdx {
			surviveIdx--
		}
		idx = surviveIdx
	}
}
