//go:build !windows

package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// watchReload reloads the configuration on every SIGHUP until ctx is done.
// The returned function stops watching.
func watchReload(ctx context.Context, r reloader, log *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-hup:
				logReload(r, log)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		signal.Stop(hup)
		cancel()
		<-done
	}
}
