package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUDPPoolRoundTrip(t *testing.T) {
	log := logrus.NewEntry(logrus.New())

	server, err := NewUDPPool("127.0.0.1:0", 8, log)
	require.NoError(t, err)
	defer server.Close()

	client, err := NewUDPPool("127.0.0.1:0", 8, log)
	require.NoError(t, err)
	defer client.Close()

	serverAddr := server.conn.LocalAddr().(*net.UDPAddr)
	serverDest := Destination{Host: "127.0.0.1", Port: uint16(serverAddr.Port), Kind: KindQuery}

	received := make(chan []byte, 1)
	server.OnReceive(func(dest Destination, frame []byte) {
		received <- frame
		// Echo back to whoever sent it.
		_ = server.Send(context.Background(), dest, []byte("pong"), PriorityNormal)
	})

	echoed := make(chan []byte, 1)
	client.OnReceive(func(dest Destination, frame []byte) {
		echoed <- frame
	})

	require.NoError(t, client.Send(context.Background(), serverDest, []byte("ping"), PriorityNormal))

	select {
	case got := <-received:
		require.Equal(t, "ping", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive ping")
	}

	select {
	case got := <-echoed:
		require.Equal(t, "pong", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client to receive pong")
	}
}

