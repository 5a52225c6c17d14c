package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/nodeflow/pkg/engine"
)

func newModulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List registered modules and node kinds",
		Long: `List the built-in modules in load order with their versions, dependencies,
node kinds and named types.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			order, err := a.registry.LoadOrder()
			if err != nil {
				return err
			}
			manifests := make([]engine.Manifest, 0, len(order))
			for _, name := range order {
				if m, ok := a.registry.Module(name); ok {
					manifests = append(manifests, m.Manifest)
				}
			}

			if jsonOutput {
				return printJSON(out(cmd), manifests)
			}

			tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MODULE\tVERSION\tDEPENDS ON\tNODES\tTYPES")
			for _, m := range manifests {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					m.Name, m.Version, orDash(m.Dependencies), orDash(m.Nodes), orDash(m.Types))
			}
			return tw.Flush()
		},
	}

	return cmd
}

func orDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
