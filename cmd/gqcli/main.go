// Command gqcli is a thin demonstrator CLI over the client package: one
// subcommand per operation, flags for destination and config file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := rootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:   "gqcli",
		Short: "Query and administer Source engine game servers",
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.host, "host", "127.0.0.1", "game server host")
	flags.Uint16Var(&opts.port, "port", 27015, "game server port")
	flags.StringVar(&opts.configFile, "config", "", "path to a YAML config file (defaults applied if empty)")

	root.AddCommand(
		infoCommand(&opts),
		playersCommand(&opts),
		rulesCommand(&opts),
		rconAuthCommand(&opts),
		rconExecCommand(&opts),
	)
	return root
}

type globalOptions struct {
	host       string
	port       uint16
	configFile string
}
