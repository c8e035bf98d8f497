package discard

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/superserver/pkg/server"
)

func TestServeStream_NeverResponds(t *testing.T) {
	t.Parallel()
	client, srv := net.Pipe()
	h := New(Config{BufferLength: 8})

	done := make(chan error, 1)
	go func() { done <- h.ServeStream(context.Background(), srv) }()

	for i := 0; i < 10; i++ {
		_, err := client.Write([]byte("some bytes to throw away"))
		require.NoError(t, err)
	}

	require.NoError(t, client.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	n, err := client.Read(make([]byte, 16))
	assert.Zero(t, n)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout(), "discard must never write")

	require.NoError(t, client.Close())
	assert.NoError(t, <-done)
}

type silentConn struct{ writes int }

func (c *silentConn) WriteTo(p []byte, _ netip.AddrPort) (int, error) {
	c.writes++
	return len(p), nil
}

func (c *silentConn) LocalAddr() net.Addr { return &net.UDPAddr{} }

func TestServeDatagram_Drops(t *testing.T) {
	t.Parallel()
	conn := &silentConn{}
	err := New(Config{}).ServeDatagram(context.Background(), conn, server.Datagram{
		Payload: []byte("ignored"),
		Source:  netip.MustParseAddrPort("192.0.2.1:9"),
	})
	require.NoError(t, err)
	assert.Zero(t, conn.writes)
}
