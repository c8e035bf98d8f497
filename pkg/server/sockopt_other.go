//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package server

import "syscall"

// reusePortControl is a no-op where SO_REUSEPORT is unavailable.
func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
