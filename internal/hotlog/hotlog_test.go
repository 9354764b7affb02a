package hotlog

import "testing"

func TestHelpersNeverPanic(t *testing.T) {
	Killf("child %s cancelled", "abc")
	Restartf("supervisor restarting %s", "xyz")
	Faultf("child %s faulted: %v", "abc", "boom")
	SetLevel("debug")
	SetLevel("not-a-level")
}
