package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hotreg/pkg/catalog"
	"github.com/odvcencio/hotreg/pkg/class"
)

func newScanCmd(opts *globalOptions) *cobra.Command {
	var showCatalog bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover every class in the project and print its metadata",
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

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d classes in %d files\n", len(classes), len(p.source.Files()))
			writeClasses(out, classes)

			if showCatalog {
				entries := p.catalog.Entries()
				fmt.Fprintln(out)
				fmt.Fprintf(out, "catalog (%d entries):\n", len(entries))
				writeEntries(out, entries)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showCatalog, "catalog", false, "also print the directive catalog")
	return cmd
}

func writeClasses(w io.Writer, classes []*class.Class) {
	for _, c := range classes {
		var tags []string
		if c.Meta.Abstract {
			tags = append(tags, "abstract")
		}
		if c.Meta.ParentName != "" {
			tags = append(tags, "parent="+c.Meta.ParentName)
		}
		if methods := c.Meta.Methods(); len(methods) > 0 {
			tags = append(tags, "methods="+strings.Join(methods, ","))
		}
		line := fmt.Sprintf("  %s  %s", c.ShortHash(), c.String())
		if len(tags) > 0 {
			line += "  " + strings.Join(tags, " ")
		}
		fmt.Fprintln(w, line)
	}
}

func writeEntries(w io.Writer, entries []catalog.Entry) {
	for _, e := range entries {
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]string, 0, len(keys))
		for _, k := range keys {
			if v := e.Attrs[k]; v != "" {
				attrs = append(attrs, k+"="+v)
			} else {
				attrs = append(attrs, k)
			}
		}
		line := fmt.Sprintf("  %s  [%s]", e.Class, strings.Join(e.Kinds, ","))
		if len(attrs) > 0 {
			line += "  " + strings.Join(attrs, " ")
		}
		if e.Parent != "" {
			line += "  <- " + string(e.Parent)
		}
		fmt.Fprintln(w, line)
	}
}
