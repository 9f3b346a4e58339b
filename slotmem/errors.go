package slotmem

import "errors"

// ErrCapacityExhausted is returned by Allocate when the manager has no free
// slot, is full, and cannot grow further: either no rebase listener was
// supplied (so growth was disabled at construction) or the hard limit has
// already been reached.
var ErrCapacityExhausted = errors.New("slotmem: capacity exhausted")
