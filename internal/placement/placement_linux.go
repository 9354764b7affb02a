//go:build linux

// Package placement enumerates logical cores and pins the current OS
// thread to one of them. Real affinity syscalls are deliberately not
// wired up; this keeps the API stable for callers while staying
// portable.
package placement

// pinCurrentThreadToCPU is a no-op on this build.
func pinCurrentThreadToCPU(_ int) error {
	return nil
}
