package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hotreg/pkg/manifest"
)

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Record the current class metadata for later status checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd, opts)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.registry.Init(cmd.Context()); err != nil {
				return err
			}
			classes, err := p.registry.Classes()
			if err != nil {
				return err
			}
			if err := manifest.Write(p.cfg.Manifest, manifest.FromClasses(p.cfg.Root, classes)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d classes to %s\n", len(classes), p.cfg.Manifest)
			return nil
		},
	}
}
