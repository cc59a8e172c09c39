package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/resync/pkg/scenario"
)

func listCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Long:  `List the built-in scenarios and the YAML files in the scenarios directory.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSOURCE\tDESCRIPTION")
			for _, name := range scenario.Builtins() {
				s, err := scenario.Builtin(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\tbuiltin\t%s\n", name, summary(s.Description))
			}

			paths, _ := filepath.Glob(filepath.Join(g.cfg.ScenariosPath(), "*.yaml"))
			for _, path := range paths {
				s, err := scenario.Load(path)
				if err != nil {
					fmt.Fprintf(w, "%s\t%s\tinvalid: %v\n", strings.TrimSuffix(filepath.Base(path), ".yaml"), path, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, path, summary(s.Description))
			}
			return w.Flush()
		},
	}
}

// summary returns the first line of a description.
func summary(desc string) string {
	desc = strings.TrimSpace(desc)
	if i := strings.IndexByte(desc, '\n'); i >= 0 {
		desc = desc[:i]
	}
	return desc
}
