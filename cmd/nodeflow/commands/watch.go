package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/openfroyo/nodeflow/pkg/config"
	"github.com/openfroyo/nodeflow/pkg/policy"
	"github.com/openfroyo/nodeflow/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		metrics  bool
		record   bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <document>",
		Short: "Re-evaluate a document whenever it changes",
		Long: `Evaluate a document, then watch its file and re-evaluate it on every change.

Each round prints a one-line summary followed by the diagnostics and policy violations.
User policies are reloaded when their files change. With --metrics the Prometheus
endpoint from the settings is served while watching; with --record every event is
appended to the snapshot store's event log.`,
		Example: `  # Watch a document
  nodeflow watch greeting.json

  # Serve metrics on :9090/metrics and log events to the store
  nodeflow watch --metrics --record greeting.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Clean(args[0])
			a, err := newApp(func(s *config.Settings) {
				if metrics {
					s.Telemetry.Metrics.Enabled = true
				}
				if record {
					s.Telemetry.Events.Enabled = true
				}
			})
			if err != nil {
				return err
			}
			defer a.close()

			ctx := a.tel.WithContext(cmd.Context())
			a.tel.StartMetricsServer()

			if record {
				st, err := a.openStore(ctx, "")
				if err != nil {
					return err
				}
				defer st.Close()
				a.tel.Events.Subscribe(st.EventSubscriber(ctx), nil)
			}

			var pe *policy.Engine
			if a.settings.Policy.Enabled {
				if pe, err = a.policyEngine(ctx, nil); err != nil {
					return err
				}
				if len(a.settings.Policy.Paths) > 0 {
					loader := policy.NewLoader(a.logger)
					err := loader.Watch(ctx, a.settings.Policy.Paths, func(ps []policy.Policy) error {
						return pe.ReplaceUserPolicies(ctx, ps)
					})
					if err != nil {
						return err
					}
					defer loader.StopWatching()
				}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()
			// Editors replace files on save; watching the directory survives that.
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}

			round := 1
			watchRound(ctx, cmd, a, pe, path, round)

			changed := make(chan struct{}, 1)
			var timer *time.Timer
			for {
				select {
				case <-ctx.Done():
					if timer != nil {
						timer.Stop()
					}
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, func() {
						select {
						case changed <- struct{}{}:
						default:
						}
					})

				case <-changed:
					round++
					watchRound(ctx, cmd, a, pe, path, round)

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					a.logger.Error().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	cmd.Flags().BoolVar(&metrics, "metrics", false, "serve Prometheus metrics while watching")
	cmd.Flags().BoolVar(&record, "record", false, "append events to the snapshot store")
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "wait this long after a change before re-evaluating")

	return cmd
}

// watchRound evaluates the document once and prints a summary. Failures are printed, not
// returned, so the watch keeps going.
func watchRound(ctx context.Context, cmd *cobra.Command, a *app, pe *policy.Engine, path string, round int) {
	op := telemetry.StartOperation(ctx, "cli.watch.round")

	e, err := a.loadEngine(op.Ctx, path)
	if err != nil {
		op.End(err)
		fmt.Fprintf(out(cmd), "[%d] %s: %v\n", round, path, err)
		return
	}
	report, err := e.Evaluate(op.Ctx)
	if err != nil {
		op.End(err)
		fmt.Fprintf(out(cmd), "[%d] %s: %v\n", round, path, err)
		return
	}
	diagnostics := e.Diagnostics(op.Ctx)

	_ = a.tel.Events.Publish(telemetry.Event{
		Type:     telemetry.EventTypeEvaluated,
		Source:   "cli",
		Document: report.Document,
		Message:  fmt.Sprintf("round %d: %d ports, %d mismatches", round, len(report.Results), report.Mismatches),
	})
	fmt.Fprintf(out(cmd), "[%d] %s evaluated: %d ports, %d mismatches, %d diagnostics (%s)\n",
		round, report.Document, len(report.Results), report.Mismatches, len(diagnostics), report.Duration)
	for _, d := range diagnostics {
		fmt.Fprintf(out(cmd), "    %s\n", d)
	}

	if pe != nil {
		result, err := pe.Lint(op.Ctx, e.Snapshot(), a.registry)
		if err != nil {
			fmt.Fprintf(out(cmd), "    policy: %v\n", err)
		} else {
			for _, v := range result.Violations {
				fmt.Fprintf(out(cmd), "    %s: [%s] %s\n", v.Severity, v.Policy, v.Message)
			}
		}
	}
	op.End(nil)
}
