// Package cli implements the superserver command line.
//
// Commands:
//
//	serve     start every enabled server (also the default with no subcommand)
//	validate  check a configuration file
//	config    print the effective configuration
//	version   print build information
package cli
