package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

func main() {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "hotreg",
		Short:         "Live class metadata registry for Go source trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "project directory containing "+configFileHint)
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newScanCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newSnapshotCmd(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "hotreg "+version)
		},
	}
}
