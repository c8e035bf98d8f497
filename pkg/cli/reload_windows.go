//go:build windows

package cli

import (
	"context"
	"log/slog"
)

// watchReload is a no-op: Windows has no SIGHUP.
func watchReload(context.Context, reloader, *slog.Logger) func() {
	return func() {}
}
