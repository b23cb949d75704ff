package session

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies the worker pool (errgroup-supervised) and every
// pending entry's retry timer are fully drained once a test's Manager is
// closed, matching transport/udp_test.go's use of the same check on its
// own reactor goroutine.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
