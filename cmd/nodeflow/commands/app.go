package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/nodeflow/pkg/config"
	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/modules"
	"github.com/openfroyo/nodeflow/pkg/policy"
	"github.com/openfroyo/nodeflow/pkg/stores"
	"github.com/openfroyo/nodeflow/pkg/telemetry"
)

// app is what every command needs: settings, telemetry and the module registry.
type app struct {
	settings *config.Settings
	loader   *config.Loader
	tel      *telemetry.Telemetry
	registry *engine.Registry
	logger   zerolog.Logger
}

// newApp loads settings, applies overrides and builds telemetry and the registry.
func newApp(overrides ...func(*config.Settings)) (*app, error) {
	loader := config.NewLoader()
	settings, err := loader.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Telemetry.Logging.Level = "debug"
	}
	for _, override := range overrides {
		override(settings)
	}
	log.Logger = log.Logger.Level(telemetry.ParseLevel(settings.Telemetry.Logging.Level))

	tel, err := telemetry.NewTelemetry(&settings.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	logger := *tel.Logger.NewComponentLogger("cli").Zerolog()

	reg, err := modules.Load(modules.Options{
		Evaluator: settings.Evaluator(),
		Logger:    tel.Logger.NewComponentLogger("modules").Zerolog(),
	})
	if err != nil {
		return nil, err
	}

	return &app{
		settings: settings,
		loader:   loader,
		tel:      tel,
		registry: reg,
		logger:   logger,
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

func (a *app) engineOptions() engine.Options {
	opts := a.tel.EngineOptions()
	opts.AllowMismatch = a.settings.Engine.AllowMismatch
	return opts
}

// loadEngine loads a document file and builds an engine over it.
func (a *app) loadEngine(ctx context.Context, path string) (*engine.Engine, error) {
	_, span := a.tel.Tracer.StartDocumentSpan(ctx, "load", path)
	defer span.End()

	doc, err := a.loader.LoadDocument(path)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	g, err := graph.FromDocument(doc)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	_ = a.tel.Events.Publish(telemetry.Event{
		Type:     telemetry.EventTypeDocumentLoaded,
		Source:   "cli",
		Document: doc.Name,
		Message:  fmt.Sprintf("loaded %s", path),
	})
	a.logger.Debug().Str("document", doc.Name).Str("path", path).Int("nodes", len(doc.Nodes)).Msg("Document loaded")
	return engine.New(g, a.registry, a.engineOptions()), nil
}

// saveEngine writes the engine's document to path.
func (a *app) saveEngine(e *engine.Engine, path string) error {
	if err := config.WriteDocument(path, e.Snapshot()); err != nil {
		return err
	}
	_ = a.tel.Events.Publish(telemetry.Event{
		Type:     telemetry.EventTypeDocumentSaved,
		Source:   "cli",
		Document: e.Name(),
		Message:  fmt.Sprintf("wrote %s", path),
	})
	return nil
}

// policyEngine builds the lint engine with the configured user policies plus extra paths.
func (a *app) policyEngine(ctx context.Context, extra []string) (*policy.Engine, error) {
	pe, err := policy.NewEngine(a.logger)
	if err != nil {
		return nil, err
	}
	paths := append(append([]string(nil), a.settings.Policy.Paths...), extra...)
	if len(paths) > 0 {
		if err := pe.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}
	return pe, nil
}

// openStore opens and migrates the snapshot store. An empty path selects the configured one.
func (a *app) openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	if path == "" {
		path = a.settings.Store.Path
	}
	st, err := stores.NewSQLiteStore(stores.Config{
		Path:   path,
		Tracer: a.tel.Tracer,
		Logger: &a.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// outputPath is where a mutated document goes: the explicit path, or the input when it is JSON.
func outputPath(input, output string) (string, error) {
	if output != "" {
		return output, nil
	}
	if filepath.Ext(input) != ".json" {
		return "", fmt.Errorf("%s is not JSON; use --output to write the result", input)
	}
	return input, nil
}

// parsePortRef parses "node.port" or "node.port[slot]".
func parsePortRef(s string) (graph.PortRef, error) {
	id, rest, ok := strings.Cut(s, ".")
	if !ok || rest == "" {
		return graph.PortRef{}, fmt.Errorf("invalid port %q: expected node.port", s)
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return graph.PortRef{}, fmt.Errorf("invalid node id in %q: %w", s, err)
	}
	ref := graph.PortRef{NodeID: graph.NodeID(n), Key: rest}
	if i := strings.IndexByte(rest, '['); i >= 0 {
		if !strings.HasSuffix(rest, "]") {
			return graph.PortRef{}, fmt.Errorf("invalid slot in %q", s)
		}
		slot, err := strconv.Atoi(rest[i+1 : len(rest)-1])
		if err != nil || slot < 0 {
			return graph.PortRef{}, fmt.Errorf("invalid slot in %q", s)
		}
		ref.Key, ref.Slot = rest[:i], slot
	}
	if ref.Key == "" {
		return graph.PortRef{}, fmt.Errorf("invalid port %q: empty port key", s)
	}
	return ref, nil
}

// parseValue decodes a JSON literal, falling back to the raw string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// formatValue renders a runtime value compactly.
func formatValue(v any) string {
	if engine.IsUndefined(v) {
		return "undefined"
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
