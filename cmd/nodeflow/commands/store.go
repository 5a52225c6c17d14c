package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/nodeflow/pkg/config"
	"github.com/openfroyo/nodeflow/pkg/telemetry"
)

var dbPath string

func newStoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage document snapshots",
		Long: `Save documents into the SQLite snapshot store and read them back.

Every save of changed content creates a new revision; saving identical content is a no-op.
Revisions are addressed by number or id, and the head revision is used when none is given.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "snapshot database (default from settings)")

	cmd.AddCommand(newStoreSaveCommand())
	cmd.AddCommand(newStoreLoadCommand())
	cmd.AddCommand(newStoreListCommand())
	cmd.AddCommand(newStoreHistoryCommand())
	cmd.AddCommand(newStoreEventsCommand())

	return cmd
}

func newStoreSaveCommand() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "save <document>",
		Short: "Save a document as a new revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := a.tel.WithContext(cmd.Context())
			doc, err := a.loader.LoadDocument(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			rev, created, err := st.SaveDocument(ctx, doc, message)
			if err != nil {
				return err
			}
			if created {
				_ = a.tel.Events.Publish(telemetry.Event{
					Type:     telemetry.EventTypeDocumentSaved,
					Source:   "store",
					Document: doc.Name,
					Message:  fmt.Sprintf("revision %d", rev.Number),
					Data:     map[string]interface{}{"revision": rev.ID, "checksum": rev.Checksum},
				})
			}

			if jsonOutput {
				return printJSON(out(cmd), map[string]interface{}{"revision": rev, "created": created})
			}
			if created {
				fmt.Fprintf(out(cmd), "saved %s revision %d (%s)\n", doc.Name, rev.Number, rev.ID)
			} else {
				fmt.Fprintf(out(cmd), "unchanged %s revision %d\n", doc.Name, rev.Number)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "revision message")
	return cmd
}

func newStoreLoadCommand() *cobra.Command {
	var (
		ref    string
		output string
	)

	cmd := &cobra.Command{
		Use:   "load <name>",
		Short: "Print or write a stored revision",
		Example: `  # Print the head revision
  nodeflow store load greeting

  # Restore revision 2 to a file
  nodeflow store load greeting --rev 2 -o greeting.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := a.tel.WithContext(cmd.Context())
			st, err := a.openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			doc, rev, err := st.LoadDocument(ctx, args[0], ref)
			if err != nil {
				return err
			}
			if output == "" {
				return printJSON(out(cmd), doc)
			}
			if err := config.WriteDocument(output, doc); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "wrote %s revision %d to %s\n", doc.Name, rev.Number, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&ref, "rev", "", "revision number or id (default head)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the document to this .json file")
	return cmd
}

func newStoreListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := a.tel.WithContext(cmd.Context())
			st, err := a.openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			docs, err := st.ListDocuments(ctx, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out(cmd), docs)
			}

			w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOCUMENT\tREVISIONS\tHEAD\tUPDATED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", d.Name, d.Revisions, d.Head, d.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of documents")
	return cmd
}

func newStoreHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show the revisions of a document, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := a.tel.WithContext(cmd.Context())
			st, err := a.openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			revs, err := st.History(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out(cmd), revs)
			}

			w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REV\tID\tNODES\tCONNECTIONS\tCREATED\tMESSAGE")
			for _, r := range revs {
				message := r.Message
				if message == "" {
					message = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\n",
					r.Number, r.ID, r.Nodes, r.Connections, r.CreatedAt.Format(time.RFC3339), message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of revisions (0 for all)")
	return cmd
}

func newStoreEventsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events [name]",
		Short: "Show the recorded event log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := a.tel.WithContext(cmd.Context())
			st, err := a.openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			var document *string
			if len(args) == 1 {
				document = &args[0]
			}
			events, err := st.ListEvents(ctx, document, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out(cmd), events)
			}

			w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tLEVEL\tTYPE\tDOCUMENT\tMESSAGE")
			for _, ev := range events {
				name := "-"
				if ev.Document != nil {
					name = *ev.Document
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ev.Timestamp.Format(time.RFC3339), ev.Level, ev.Type, name, ev.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	return cmd
}
