package cli

import (
	"github.com/spf13/cobra"

	"github.com/getmockd/superserver/pkg/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Display the effective configuration: the file given with -c merged over
the built-in defaults. Without a file the defaults are shown.`,
		Example: `  # Show the defaults as YAML
  superserver config

  # Show a file's effective configuration as JSON
  superserver config -c superserver.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			render := config.ToYAML
			if opts.jsonOutput {
				render = config.ToJSON
			}
			data, err := render(cfg)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				data = append(data, '\n')
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
