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

// Package simdlane detects the SIMD register width available on the running
// CPU and derives the packed lane count that the slot allocator rounds its
// capacities to.
//
// It follows the same runtime-dispatch shape as a CPU feature detector: an
// arch-specific init() picks a Level and a register width in bytes, and
// everything else is derived from those two values.
package simdlane

import (
	"os"
	"strconv"
)

// Level identifies the SIMD instruction tier detected for this process.
type Level int

const (
	// LevelScalar means no hardware SIMD is being assumed; the packed lane
	// count still rounds to a 16-byte register width for alignment purposes.
	LevelScalar Level = iota

	// LevelSSE2 is the x86-64 baseline, 128-bit registers.
	LevelSSE2

	// LevelAVX2 is 256-bit x86 SIMD.
	LevelAVX2

	// LevelAVX512 is 512-bit x86 SIMD.
	LevelAVX512

	// LevelNEON is ARM64's 128-bit baseline SIMD.
	LevelNEON
)

// String returns a human-readable name for the level.
func (l Level) String() string {
	switch l {
	case LevelScalar:
		return "scalar"
	case LevelSSE2:
		return "sse2"
	case LevelAVX2:
		return "avx2"
	case LevelAVX512:
		return "avx512"
	case LevelNEON:
		return "neon"
	default:
		return "unknown"
	}
}

// Alignment is the byte alignment every column base pointer is guaranteed to
// satisfy, independent of detected SIMD width. SIMD kernels consuming the
// columns may assume at least this much.
const Alignment = 16

// canonicalElemSize is the element width (bytes) used to derive the packed
// lane count from the detected register width: a 4-byte float lane, the unit
// scene-graph SIMD kernels batch on.
const canonicalElemSize = 4

// currentLevel is the detected SIMD level for this runtime.
// Set by init() in dispatch_*.go files.
var currentLevel Level

// currentWidth is the SIMD register width in bytes for the current level.
// Set by init() in dispatch_*.go files. For LevelScalar this is 16.
var currentWidth int

// CurrentLevel returns the SIMD instruction set assumed for this process.
func CurrentLevel() Level {
	return currentLevel
}

// CurrentWidth returns the SIMD register width in bytes, e.g. 16 for
// SSE2/NEON, 32 for AVX2, 64 for AVX-512.
func CurrentWidth() int {
	return currentWidth
}

// HasSIMD reports whether hardware SIMD acceleration is assumed.
func HasSIMD() bool {
	return currentLevel != LevelScalar
}

// NoSimdEnv reports whether the SCENEMEM_NO_SIMD environment variable is set
// to a true value; a non-empty value that does not parse as a boolean also
// counts as true. When it does, detection pins to the scalar level
// regardless of CPU features.
// This exists for deterministic tests and debugging.
func NoSimdEnv() bool {
	val := os.Getenv("SCENEMEM_NO_SIMD")
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}

// PackedLanes returns W, the packed lane count: how many canonical
// 4-byte elements a SIMD kernel processes together at the current register
// width. Callers that need the lane count for a differently sized element
// should use Count instead.
func PackedLanes() int {
	return Count(canonicalElemSize)
}

// Count returns how many elements of elemSize bytes fit in one SIMD register
// at the currently detected width. Always at least 1, so a caller never
// rounds a capacity down to zero on an odd element size.
func Count(elemSize int) int {
	if elemSize <= 0 {
		return 1
	}
	w := currentWidth / elemSize
	if w < 1 {
		return 1
	}
	return w
}
