package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/policy"
	"github.com/openfroyo/nodeflow/pkg/telemetry"
)

// validation is the outcome of validating one document.
type validation struct {
	Path        string              `json:"path"`
	Document    string              `json:"document,omitempty"`
	Errors      []string            `json:"errors,omitempty"`
	Diagnostics []engine.Diagnostic `json:"diagnostics,omitempty"`
	Policy      *policy.Result      `json:"policy,omitempty"`
}

func (v *validation) failed(enforcing bool) bool {
	if len(v.Errors) > 0 {
		return true
	}
	for _, d := range v.Diagnostics {
		if d.Severity == engine.SeverityError {
			return true
		}
	}
	return enforcing && v.Policy != nil && !v.Policy.Allowed
}

func newValidateCommand() *cobra.Command {
	var (
		policies []string
		noPolicy bool
		strict   bool
	)

	cmd := &cobra.Command{
		Use:   "validate <document>...",
		Short: "Validate documents",
		Long: `Validate documents against the document schema, the node registry and the lint policies.

This command checks:
  - Schema conformance (CUE #Document schema)
  - Node and connection references
  - Port types and directed cycles
  - Lint rules (built-in and user Rego policies)

Policy violations fail the command only in enforcing mode (policy.mode or --strict).`,
		Example: `  # Validate a document
  nodeflow validate greeting.json

  # Add project rules and fail on any policy error
  nodeflow validate --policy ./policies --strict greeting.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx := a.tel.WithContext(cmd.Context())

			var pe *policy.Engine
			if a.settings.Policy.Enabled && !noPolicy {
				if pe, err = a.policyEngine(ctx, policies); err != nil {
					return err
				}
			}
			enforcing := strict || a.settings.Policy.Mode == "enforcing"

			var failures *multierror.Error
			results := make([]*validation, 0, len(args))
			for _, path := range args {
				v := validateDocument(ctx, a, pe, path)
				results = append(results, v)
				if v.failed(enforcing) {
					failures = multierror.Append(failures, fmt.Errorf("%s is invalid", path))
				}
			}

			if jsonOutput {
				if err := printJSON(out(cmd), results); err != nil {
					return err
				}
			} else {
				for _, v := range results {
					printValidation(cmd, v, enforcing)
				}
			}
			return failures.ErrorOrNil()
		},
	}

	cmd.Flags().StringSliceVar(&policies, "policy", nil, "extra policy files or directories")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip lint policies")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on policy errors")

	return cmd
}

func validateDocument(ctx context.Context, a *app, pe *policy.Engine, path string) *validation {
	v := &validation{Path: path}
	op := telemetry.StartOperation(ctx, "cli.validate")
	defer func() {
		if len(v.Errors) > 0 {
			op.End(fmt.Errorf("%s: %d errors", path, len(v.Errors)))
			return
		}
		op.End(nil)
	}()

	doc, err := a.loader.LoadDocument(path)
	if err != nil {
		v.Errors = append(v.Errors, err.Error())
		return v
	}
	v.Document = doc.Name

	if pe != nil {
		result, err := pe.Lint(op.Ctx, doc, a.registry)
		if err != nil {
			v.Errors = append(v.Errors, err.Error())
		} else {
			v.Policy = result
			for _, violation := range result.Violations {
				_ = a.tel.Events.Publish(telemetry.Event{
					Type:     telemetry.EventTypePolicyViolation,
					Source:   "policy",
					Document: doc.Name,
					Message:  violation.Message,
					Level:    policyLevel(violation.Severity),
					Data:     map[string]interface{}{"policy": violation.Policy},
				})
			}
		}
	}

	g, err := graph.FromDocument(doc)
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				v.Errors = append(v.Errors, e.Error())
			}
		} else {
			v.Errors = append(v.Errors, err.Error())
		}
		return v
	}
	e := engine.New(g, a.registry, a.engineOptions())
	v.Diagnostics = e.Diagnostics(op.Ctx)
	return v
}

func policyLevel(s policy.Severity) string {
	switch s {
	case policy.SeverityError:
		return telemetry.EventLevelError
	case policy.SeverityWarning:
		return telemetry.EventLevelWarning
	}
	return telemetry.EventLevelInfo
}

func printValidation(cmd *cobra.Command, v *validation, enforcing bool) {
	status := "ok"
	if v.failed(enforcing) {
		status = "invalid"
	}
	fmt.Fprintf(out(cmd), "%s: %s\n", v.Path, status)
	for _, e := range v.Errors {
		fmt.Fprintf(out(cmd), "  error: %s\n", e)
	}
	for _, d := range v.Diagnostics {
		fmt.Fprintf(out(cmd), "  %s\n", d)
	}
	if v.Policy != nil {
		for _, violation := range v.Policy.Violations {
			fmt.Fprintf(out(cmd), "  %s: [%s] %s\n", violation.Severity, violation.Policy, violation.Message)
		}
	}
}
