// Package server provides the shared runtime that hosts lightweight network
// protocols over TCP (stream) and UDP (datagram).
//
// The runtime owns everything that is not protocol specific:
//
//   - Admission control: a bounded number of concurrently handled stream
//     connections. The accept loop blocks when the limit is reached.
//   - Per-source rate limiting of datagrams (see package ratelimit).
//   - Idle-connection eviction for stream connections.
//   - Byte, request, error and connection metrics through a Recorder.
//   - Cooperative shutdown driven by a context.Context.
//
// Protocol bodies plug in through StreamHandler and DatagramHandler. A
// handler never touches the socket directly; it receives a Stream or a
// DatagramConn that the runtime has already wrapped for metering.
//
// # Basic Usage
//
//	srv := server.NewStreamServer(server.StreamConfig{
//	    Protocol:       "echo",
//	    Address:        "127.0.0.1",
//	    Port:           2007,
//	    MaxConnections: 100,
//	    IdleTimeout:    time.Minute,
//	}, echo.New(echo.Config{}), server.WithRecorder(rec), server.WithLogger(log))
//
//	// Start blocks until ctx is cancelled or Stop is called.
//	if err := srv.Start(ctx); err != nil {
//	    // only bind failures end up here
//	}
package server
