// Package config provides the superserver configuration model, loading and
// validation, and the live Provider used for hot reload.
//
// # File format
//
// YAML (.yaml, .yml) and JSON are supported. Keys missing from a file keep
// their defaults; nullable limits accept an explicit null:
//
//	servers:
//	  echo:
//	    udpEnabled: true
//	    tcpMaxConnections: null   # unlimited
//	  daytime:
//	    format: rfc3339
//	healthCheck:
//	  port: 8080
//	metrics:
//	  backend: prometheus
//
// # Reload
//
// Only the UDP rate limit (udpMaxRequestsPerSecond, udpRateLimitWindowSeconds)
// applies to running servers. Everything else is reported by RestartRequired.
package config
