// Package health serves liveness, readiness and metrics over HTTP.
//
// Readiness aggregates the health of every registered server. Stream servers
// are additionally dialed over TCP so a wedged accept loop shows
// up as unhealthy.
package health
