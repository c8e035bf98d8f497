package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getmockd/superserver/pkg/config"
	"github.com/getmockd/superserver/pkg/engine"
	"github.com/getmockd/superserver/pkg/logging"
)

type serveOptions struct {
	*rootOptions
	logLevel  string
	logFormat string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start every enabled server (default command)",
		Long: `Start every enabled server and the health endpoint, then block until
interrupted.

SIGINT and SIGTERM stop accepting work and wait for open connections to
finish. On Unix, SIGHUP re-reads the configuration file: UDP rate limits
apply immediately, every other changed setting needs a restart.`,
		Example: `  # Serve with built-in defaults
  superserver

  # Serve from a configuration file with debug logging
  superserver serve -c superserver.yaml --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the configuration)")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "Log format: text, json (overrides the configuration)")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	provider, err := config.Open(opts.configPath)
	if err != nil {
		return err
	}

	log, closeLog := logging.Open(loggingConfig(provider.Current().Logging, opts.logLevel, opts.logFormat))
	defer func() { _ = closeLog() }()

	if opts.configPath == "" {
		log.Info("no configuration file given, using defaults")
	} else {
		log.Info("configuration loaded", "path", opts.configPath)
	}

	srv, err := engine.NewServer(provider, engine.WithLogger(log))
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopReload := watchReload(ctx, srv, log)
	defer stopReload()

	return srv.Run(ctx)
}

// loggingConfig maps the configuration file section onto logging.Config.
// Non-empty flag values win over the file.
func loggingConfig(lc config.LoggingConfiguration, level, format string) logging.Config {
	if level == "" {
		level = lc.Level
	}
	if format == "" {
		format = lc.Format
	}
	cfg := logging.Config{
		Level:  logging.ParseLevel(level),
		Format: logging.ParseFormat(format),
	}
	if lc.File != "" {
		cfg.File = &logging.FileConfig{
			Path:       lc.File,
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAgeDays,
			Compress:   lc.Compress,
		}
	}
	return cfg
}

// reloader is implemented by engine.Server.
type reloader interface {
	Reload() error
}

var _ reloader = (*engine.Server)(nil)

func logReload(r reloader, log *slog.Logger) {
	log.Info("reloading configuration")
	if err := r.Reload(); err != nil {
		log.Warn("configuration reload rejected", "error", err)
	}
}
