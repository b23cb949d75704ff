package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
)

func TestDestQueuePushOrdersFIFO(t *testing.T) {
	var mu sync.Mutex
	var got []string

	drain := func(j writeJob) error {
		mu.Lock()
		got = append(got, string(j.frame))
		mu.Unlock()
		return nil
	}

	q := newDestQueue(8, drain, logrus.NewEntry(logrus.New()))
	defer q.close()

	for _, s := range []string{"a", "b", "c", "d"} {
		assert.Assert(t, q.push(writeJob{frame: []byte(s)}))
	}

	assert.Assert(t, pollUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}))

	mu.Lock()
	defer mu.Unlock()
	assert.DeepEqual(t, got, []string{"a", "b", "c", "d"})
}

func TestDestQueuePushBackpressure(t *testing.T) {
	block := make(chan struct{})
	drain := func(j writeJob) error {
		<-block
		return nil
	}
	q := newDestQueue(1, drain, logrus.NewEntry(logrus.New()))
	defer func() {
		close(block)
		q.close()
	}()

	// First push is picked up by the worker immediately (may or may not
	// start draining before the second push lands), so retry until the
	// queue is observably full.
	assert.Assert(t, q.push(writeJob{frame: []byte("1")}))
	full := false
	for i := 0; i < 100; i++ {
		if !q.push(writeJob{frame: []byte("x")}) {
			full = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Assert(t, full, "expected queue to eventually report backpressure")
}

func pollUntil(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
