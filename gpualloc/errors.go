package gpualloc

import "errors"

// ErrPoolCreationFailed wraps a failure returned by a PoolFactory while the
// allocator was trying to satisfy an allocation that no existing pool had
// room for.
var ErrPoolCreationFailed = errors.New("gpualloc: pool creation failed")
