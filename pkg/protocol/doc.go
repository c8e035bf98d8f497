// Package protocol defines the contracts shared by the superserver runtimes
// and the engine that hosts them.
//
// Every listening runtime implements Server. Runtimes that own a socket also
// implement StandaloneServer, and those that expose counters implement
// Observable:
//
//	Server (base - all runtimes)
//	├── StandaloneServer - bound address and lifecycle state
//	└── Observable       - runtime statistics
//
// # Registry Usage
//
// The Registry manages all servers of a process:
//
//	reg := protocol.NewRegistry()
//	reg.Register(echoTCP)
//	reg.Register(echoUDP)
//
//	// Blocks until every server stopped; fails fast on bind errors.
//	if err := reg.StartAll(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for id, h := range reg.HealthAll(ctx) {
//	    fmt.Println(id, h.Status)
//	}
package protocol
