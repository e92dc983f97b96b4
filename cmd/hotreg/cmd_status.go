package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hotreg/pkg/manifest"
	"github.com/odvcencio/hotreg/pkg/report"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show class changes since the last snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(cmd, opts)
			if err != nil {
				return err
			}
			defer p.Close()

			m, err := manifest.Read(p.cfg.Manifest)
			if err != nil {
				if errors.Is(err, manifest.ErrNoManifest) {
					return fmt.Errorf("%w; run `hotreg snapshot` first", err)
				}
				return err
			}

			p.source.Restore(m.ClassList())
			events, err := p.source.Rescan(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot %s (%d classes)\n", m.Created.Local().Format("2006-01-02 15:04:05"), len(m.Classes))
			if len(events) == 0 {
				fmt.Fprintln(out, "no class changes")
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprint(out, report.FormatEvents(events))
			fmt.Fprintln(out)
			fmt.Fprintln(out, report.Summary(events))
			return nil
		},
	}
}
