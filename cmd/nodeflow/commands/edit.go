package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openfroyo/nodeflow/pkg/graph"
)

func newConnectCommand() *cobra.Command {
	var (
		output string
		check  bool
	)

	cmd := &cobra.Command{
		Use:   "connect <document> <src> <target>",
		Short: "Connect two ports of a document",
		Long: `Connect an output port to an input port and write the document back.

Ports are written as node.port, with an optional [slot] for inputs that take several
connections. The connection is refused when it would close a cycle through ports that
are not loop-tolerant, or when the types cannot match (unless engine.allowMismatch is set).`,
		Example: `  # Feed node 1 into the first slot of node 3
  nodeflow connect greeting.json 1.output 3.input[0]

  # Only report whether the connection would be accepted
  nodeflow connect --check greeting.json 1.output 2.input`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parsePortRef(args[1])
			if err != nil {
				return err
			}
			target, err := parsePortRef(args[2])
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			e, err := a.loadEngine(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if check {
				verdict := e.CanConnect(src, target)
				if jsonOutput {
					return printJSON(out(cmd), verdict)
				}
				if verdict.Allowed {
					fmt.Fprintf(out(cmd), "allowed: %s feeds %s\n", verdict.Have, verdict.Want)
					return nil
				}
				fmt.Fprintf(out(cmd), "refused: %s\n", verdict.Reason)
				return nil
			}

			path, err := outputPath(args[0], output)
			if err != nil {
				return err
			}
			conn, err := e.Connect(src, target)
			if err != nil {
				return err
			}
			if err := a.saveEngine(e, path); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "connection %d: %d.%s -> %d.%s[%d]\n",
				conn.ID, conn.Src.NodeID, conn.Src.Key, conn.Target.NodeID, conn.Target.Key, conn.Target.Slot)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result here instead of the input file")
	cmd.Flags().BoolVar(&check, "check", false, "only check whether the connection is allowed")

	return cmd
}

func newSetCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "set <document> <node> <param> <value>",
		Short: "Set a node parameter",
		Long: `Set a parameter of a node and write the document back.

The value is decoded as JSON when it parses, and taken as a plain string otherwise.`,
		Example: `  # Change a literal
  nodeflow set greeting.json 1 value hello

  # Set a declared type
  nodeflow set greeting.json 4 type '{"tag":"Array","params":{"item":{"tag":"Number"}}}'`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid node id %q: %w", args[1], err)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			path, err := outputPath(args[0], output)
			if err != nil {
				return err
			}
			e, err := a.loadEngine(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			value := parseValue(args[3])
			if err := e.SetParam(graph.NodeID(id), args[2], value); err != nil {
				return err
			}
			if err := a.saveEngine(e, path); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "node %d: %s = %s\n", id, args[2], formatValue(value))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result here instead of the input file")

	return cmd
}
