package gpualloc

// PoolHandle identifies a backing buffer created by a PoolFactory. It is
// opaque to the allocator: ownership and eventual destruction belong to the
// factory's caller, not to this package.
type PoolHandle any

// PoolFactory creates and destroys the backing buffers that pools are carved
// out of. A real implementation talks to the graphics driver; tests use an
// in-memory fake.
type PoolFactory interface {
	// CreatePool asks for a new backing buffer of at least sizeBytes for
	// class, returning a handle to it.
	CreatePool(sizeBytes int, class Class) (PoolHandle, error)

	// DestroyPool releases a backing buffer. The allocator itself never
	// calls this: pool retirement is a driver-facade policy decision made
	// outside this package.
	DestroyPool(handle PoolHandle)
}

// block is a contiguous run of free bytes within a pool, identified by its
// byte offset from the start of the backing buffer.
type block struct {
	offset int
	size   int
}

// strideChanger records padding bytes that were skipped to satisfy an
// element-size alignment at allocation time, so a matching Deallocate can
// reclaim them instead of leaking them as permanently-lost space.
type strideChanger struct {
	// offsetAfterPadding is the offset the live allocation actually starts
	// at (i.e. the key a later Deallocate call looks up by).
	offsetAfterPadding int
	// paddedBytes is how many bytes immediately before offsetAfterPadding
	// were skipped as alignment padding.
	paddedBytes int
}

// pool is one backing buffer, tracked as a free list and a side table of
// stride changers sorted by offset.
type pool struct {
	handle   PoolHandle
	capacity int

	// freeBlocks need not be kept in any particular order; Allocate does a
	// linear scan over all of them and Deallocate appends then coalesces.
	freeBlocks []block

	// strideChangers is sorted ascending by offsetAfterPadding so
	// Deallocate can binary search it.
	strideChangers []strideChanger
}
