package server

import (
	"context"
	"net"
	"strconv"
)

// listenConfig returns the net.ListenConfig used to bind server sockets.
func listenConfig(reusePort bool) *net.ListenConfig {
	lc := &net.ListenConfig{}
	if reusePort {
		lc.Control = reusePortControl
	}
	return lc
}

// joinHostPort formats the bind address.
func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func listenTCP(ctx context.Context, address string, reusePort bool) (net.Listener, error) {
	return listenConfig(reusePort).Listen(ctx, "tcp", address)
}

func listenUDP(ctx context.Context, address string, reusePort bool) (*net.UDPConn, error) {
	pc, err := listenConfig(reusePort).ListenPacket(ctx, "udp", address)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
