package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getmockd/superserver/pkg/config"
	"github.com/getmockd/superserver/pkg/protocol"
)

// ErrNoConfigFile is returned by commands that need a configuration file.
var ErrNoConfigFile = errors.New("no configuration file given: use -c or set " + ConfigEnvVar)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file without starting any server",
		Long: `Validate a configuration file without starting any server.

This command checks:
  - YAML or JSON syntax
  - Ports, listen addresses and limits
  - Port conflicts between enabled servers and the health endpoint
  - Metrics backend and logging settings`,
		Example: `  superserver validate -c superserver.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configPath == "" {
				return ErrNoConfigFile
			}
			cfg, err := config.LoadFromFile(opts.configPath)
			if err != nil {
				printValidationErrors(cmd.ErrOrStderr(), err)
				return fmt.Errorf("%s is invalid", opts.configPath)
			}
			printEnabled(cmd.OutOrStdout(), opts.configPath, cfg)
			return nil
		},
	}
}

// printValidationErrors writes one line per joined error.
func printValidationErrors(w io.Writer, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(w, "  ✗ %s\n", line)
	}
}

func printEnabled(w io.Writer, path string, cfg *config.Configuration) {
	fmt.Fprintf(w, "✓ %s is valid\n", path)
	for _, p := range protocol.All() {
		pc := cfg.Servers.Protocol(p)
		var transports []string
		if pc.TCPActive() {
			transports = append(transports, "tcp "+pc.TCPAddress())
		}
		if pc.UDPActive() {
			transports = append(transports, "udp "+pc.UDPAddress())
		}
		if len(transports) == 0 {
			fmt.Fprintf(w, "  %-8s disabled\n", p)
			continue
		}
		fmt.Fprintf(w, "  %-8s %s\n", p, strings.Join(transports, ", "))
	}
	if cfg.HealthCheck.Enabled {
		fmt.Fprintf(w, "  %-8s http %s\n", "health", cfg.HealthCheck.Address())
	}
}
