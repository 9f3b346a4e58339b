package gpualloc

// Class partitions pools by the CPU's access to the backing memory. The
// graphics driver maps CPUAccessible pools for host writes (dynamic/ring
// buffers updated every frame) and leaves CPUInaccessible pools device-local
// (static geometry, uploaded once via staging).
type Class int

const (
	// CPUInaccessible pools are not mapped for host access.
	CPUInaccessible Class = iota

	// CPUAccessible pools are host-mapped, typically persistently.
	CPUAccessible
)

// String returns a human-readable name for the class.
func (c Class) String() string {
	switch c {
	case CPUInaccessible:
		return "cpu-inaccessible"
	case CPUAccessible:
		return "cpu-accessible"
	default:
		return "unknown"
	}
}

// ClassConfig carries the per-class construction parameters for an
// Allocator: how big a freshly created pool should default to, and whether
// requested sizes in this class should be scaled up before the stride
// alignment search (for classes backing a dynamic/ring buffer, where a
// caller wants room for several in-flight copies of the same data).
type ClassConfig struct {
	// DefaultPoolSize is the byte size used for a newly created pool when
	// the requested allocation fits within it; a request larger than this
	// gets a pool sized to exactly fit it instead.
	DefaultPoolSize int

	// Dynamic marks this class as backing a multi-buffered ring: requested
	// sizes are multiplied by DynamicMultiplier before the allocation
	// search runs.
	Dynamic bool

	// DynamicMultiplier is the per-allocation size scale applied when
	// Dynamic is true. Values <= 1 are treated as 1 (no scaling).
	DynamicMultiplier int
}
