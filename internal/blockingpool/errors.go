package blockingpool

import "errors"

// ErrInvalidLowWatermark is returned when BASTION_BLOCKING_THREADS does
// not parse as a non-negative decimal integer. Configuration errors
// are fatal at init.
var ErrInvalidLowWatermark = errors.New("blockingpool: BASTION_BLOCKING_THREADS must be a non-negative integer")

// ErrPoolStopped is returned by SpawnBlocking once the pool has been
// shut down.
var ErrPoolStopped = errors.New("blockingpool: pool stopped")
