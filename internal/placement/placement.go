package placement

import (
	"runtime"
	"sync"
)

// roundRobinPin is the shared counter the blocking pool cycles through
// when assigning new workers to cores.
var (
	roundRobinMu  sync.Mutex
	roundRobinPin int
)

// CoreCount reports the number of logical cores available to the
// process.
func CoreCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// SetForCurrent takes the core id for the calling OS thread. No
// affinity syscall is made on any build (pinCurrentThreadToCPU
// returns nil in both placement_linux.go and placement_stub.go), so
// the thread is not actually pinned.
func SetForCurrent(coreID int) error {
	return pinCurrentThreadToCPU(coreID)
}

// NextCore advances the shared round-robin counter and returns the
// core id the caller should pin to. Only meaningful, and only called
// by the Blocking Pool, when CoreCount() > 1.
func NextCore() int {
	roundRobinMu.Lock()
	defer roundRobinMu.Unlock()
	core := roundRobinPin
	roundRobinPin = (roundRobinPin + 1) % CoreCount()
	return core
}
