package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ConfigEnvVar names the environment variable holding the default config path.
const ConfigEnvVar = "SUPERSERVER_CONFIG"

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	jsonOutput bool
}

// NewRootCommand builds the superserver command tree. Running it without a
// subcommand serves, like "superserver serve".
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCommand(opts)

	root := &cobra.Command{
		Use:   "superserver",
		Short: "superserver runs the classic RFC echo, discard, daytime and chargen services",
		Long: `superserver hosts the classic Internet diagnostic services over TCP and UDP:

  echo     RFC 862  returns everything it receives
  discard  RFC 863  drops everything it receives
  daytime  RFC 867  answers with the current time
  chargen  RFC 864  streams a rotating character pattern

Each service has its own connection limits, idle timeouts and per-source
UDP rate limits. A health and metrics endpoint is served over HTTP.

Configuration is read from the file given with -c, or from the path in
SUPERSERVER_CONFIG. Without either, built-in defaults are used.`,
		SilenceUsage:  true,
		SilenceErrors: true, // We handle errors in Execute()
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(ConfigEnvVar),
		"Configuration file (YAML or JSON)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output command results in JSON format")

	root.AddCommand(
		serve,
		newValidateCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
