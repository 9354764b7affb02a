package bastion

import "sync"

// resetForTest clears the package-level singleton so each test case
// gets an independently initialized system. Only for _test.go use.
func resetForTest() {
	once = sync.Once{}
	sys = nil
}
