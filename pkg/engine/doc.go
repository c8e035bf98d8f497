// Package engine hosts the protocol servers.
//
// ProtocolManager turns the configuration into one server.StreamServer or
// server.DatagramServer per enabled protocol and transport, each wired to
// its handler (echo, discard, daytime, chargen), the metrics recorder and a
// rate-limit provider that reads the live configuration.
//
// Server runs the protocol servers and the health endpoint together: a bind
// failure in any of them cancels the rest, and Run returns once every
// server has drained. Reload re-reads the configuration file; datagram rate
// limits apply immediately and every other changed setting is logged as
// requiring a restart.
package engine
