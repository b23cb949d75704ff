package session

import (
	"context"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"gotest.tools/v3/assert"

	"github.com/sourcequery/engine/transport"
)

// TestDispatchInfoSurfacesBackpressure exercises the generated transport.Pool
// mock instead of the hand-written fakePool, covering the path where the
// underlying transport rejects the very first send.
func TestDispatchInfoSurfacesBackpressure(t *testing.T) {
	ctrl := gomock.NewController(t)
	udp := transport.NewMockPool(ctrl)

	udp.EXPECT().OnReceive(gomock.Any())
	udp.EXPECT().OnClosed(gomock.Any()).AnyTimes()
	udp.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(transport.ErrBackpressure)

	cfg := DefaultConfig()
	cfg.ReadTimeout = 2 * time.Second
	m := NewManager(cfg, udp, nil, nil, nil)
	defer m.Close()

	dest := transport.Destination{Host: "10.0.0.1", Port: 27015, Kind: transport.KindQuery}
	_, err := m.DispatchInfo(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.ErrorIs(t, err, transport.ErrBackpressure)

	// A second dispatch for the same key must be admitted fresh rather than
	// queued behind the failed attempt, since the failed entry was removed
	// from the pending table immediately.
	udp.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil)
	future, err := m.DispatchInfo(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)
	future.Cancel()
	_, err = future.Await(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}
