package session

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestFutureCompletesOnce(t *testing.T) {
	var cancelCalls int
	future, complete := newFuture[int](func() { cancelCalls++ })

	complete(42, nil)
	complete(99, nil) // second write must be ignored (at-most-once)

	v, err := future.Await(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, v, 42)

	future.Cancel() // already completed: must not invoke the cancel callback
	assert.Equal(t, cancelCalls, 0)
}

func TestFutureCancelResolvesWithoutCompletion(t *testing.T) {
	var cancelCalls int
	future, _ := newFuture[int](func() { cancelCalls++ })

	future.Cancel()
	future.Cancel() // idempotent
	assert.Equal(t, cancelCalls, 1)
}

func TestFutureAwaitRespectsContextDeadline(t *testing.T) {
	future, _ := newFuture[int](func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := future.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
