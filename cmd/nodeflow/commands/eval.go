package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/telemetry"
)

func newEvalCommand() *cobra.Command {
	var (
		parallel int
		failFast bool
		node     int
	)

	cmd := &cobra.Command{
		Use:   "eval <document>...",
		Short: "Evaluate documents",
		Long: `Evaluate every output port of one or more documents and print its value and type.

Documents are evaluated in parallel, each on its own engine. Ports whose type is a
mismatch are counted and reported; use "validate" for details.`,
		Example: `  # Evaluate a document
  nodeflow eval greeting.json

  # Evaluate several documents, four at a time, as JSON
  nodeflow eval --parallel 4 --json docs/*.json

  # Only print the outputs of node 3
  nodeflow eval --node 3 greeting.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			op := telemetry.StartOperation(a.tel.WithContext(cmd.Context()), "cli.eval")
			docs := make([]graph.Document, 0, len(args))
			for _, path := range args {
				doc, err := a.loader.LoadDocument(path)
				if err != nil {
					op.End(err)
					return err
				}
				docs = append(docs, doc)
			}

			results, err := engine.EvaluateBatch(op.Ctx, docs, a.registry, engine.BatchOptions{
				MaxParallel: parallel,
				FailFast:    failFast,
				Engine:      a.engineOptions(),
			})
			op.End(err)

			for _, r := range results {
				if r.Report == nil {
					continue
				}
				_ = a.tel.Events.Publish(telemetry.Event{
					Type:     telemetry.EventTypeEvaluated,
					Source:   "cli",
					Document: r.Document,
					Message:  fmt.Sprintf("%d ports, %d mismatches", len(r.Report.Results), r.Report.Mismatches),
				})
				if node > 0 {
					r.Report.Results = filterNode(r.Report.Results, graph.NodeID(node))
				}
			}

			if jsonOutput {
				if perr := printJSON(out(cmd), results); perr != nil {
					return perr
				}
				return err
			}
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(out(cmd), "document %s: %v\n", r.Document, r.Err)
					continue
				}
				printReport(cmd, r.Report)
			}
			if err != nil {
				log.Debug().Err(err).Msg("Evaluation failed")
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", engine.DefaultMaxParallel, "documents evaluated at once")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failing document")
	cmd.Flags().IntVar(&node, "node", 0, "only print the outputs of this node")

	return cmd
}

func filterNode(results []engine.PortResult, id graph.NodeID) []engine.PortResult {
	kept := results[:0]
	for _, r := range results {
		if r.Node == id {
			kept = append(kept, r)
		}
	}
	return kept
}

func printReport(cmd *cobra.Command, report *engine.Report) {
	fmt.Fprintf(out(cmd), "document %s: %d ports, %d mismatches (%s)\n",
		report.Document, len(report.Results), report.Mismatches, report.Duration)

	tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NODE\tKIND\tPORT\tTYPE\tVALUE")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", r.Node, r.Kind, r.Port, r.Type, formatValue(r.Value))
	}
	_ = tw.Flush()
}
