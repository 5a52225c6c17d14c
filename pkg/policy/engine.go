package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
)

// Engine evaluates lint policies against documents.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine holding the built-in rules.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compile(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}
	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return e, nil
}

// Lint evaluates every enabled policy against doc, resolving ports with reg.
func (e *Engine) Lint(ctx context.Context, doc graph.Document, reg *engine.Registry) (*Result, error) {
	return e.Evaluate(ctx, BuildInput(doc, reg))
}

// Evaluate evaluates every enabled policy against input. A policy that fails to evaluate aborts
// the whole evaluation.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()
	value, err := toValue(input)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, Violations: make([]Violation, 0)}
	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		rs, err := cp.query.Eval(ctx, rego.EvalInput(value))
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		for _, r := range rs {
			for _, expr := range r.Expressions {
				set, _ := expr.Value.([]interface{})
				for _, item := range set {
					result.Violations = append(result.Violations, newViolation(cp.policy, item))
				}
			}
		}
	}

	sort.SliceStable(result.Violations, func(i, j int) bool {
		a, b := result.Violations[i], result.Violations[j]
		if a.Policy != b.Policy {
			return a.Policy < b.Policy
		}
		return a.Message < b.Message
	})
	for _, v := range result.Violations {
		if v.Severity == SeverityError {
			result.Allowed = false
			break
		}
	}
	result.Duration = time.Since(start)

	e.logger.Debug().
		Str("document", input.Document).
		Int("violations", len(result.Violations)).
		Dur("duration", result.Duration).
		Msg("Document linted")
	return result, nil
}

// toValue converts input to the plain JSON shape Rego evaluates against.
func toValue(input Input) (interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to decode policy input: %w", err)
	}
	return value, nil
}

func newViolation(p *Policy, item interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	obj, ok := item.(map[string]interface{})
	if !ok {
		v.Message = fmt.Sprintf("%v", item)
		return v
	}
	if msg, ok := obj["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := obj["severity"].(string); ok {
		v.Severity = Severity(sev)
	}
	v.Node = intField(obj["node"])
	v.Connection = intField(obj["connection"])
	return v
}

func intField(raw interface{}) *int {
	var n int
	switch x := raw.(type) {
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil
		}
		n = int(i)
	case float64:
		n = int(x)
	case int:
		n = x
	default:
		return nil
	}
	return &n
}

// compile parses a policy, prepares its deny query and stores it. Callers hold e.mu or own e.
func (e *Engine) compile(ctx context.Context, p *Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	query, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}
	if p.Severity == "" {
		p.Severity = SeverityError
	}

	e.policies[p.Name] = &compiledPolicy{policy: p, query: query, compiled: time.Now()}
	e.logger.Debug().Str("policy", p.Name).Msg("Policy compiled")
	return nil
}

// LoadPolicies loads user policy files and directories next to the built-in rules.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(paths)
	if err != nil {
		return err
	}
	return e.ReplaceUserPolicies(ctx, policies)
}

// ReplaceUserPolicies swaps every non-built-in policy for policies. Nothing changes when one of
// them fails to compile.
func (e *Engine) ReplaceUserPolicies(ctx context.Context, policies []Policy) error {
	staged := &Engine{policies: make(map[string]*compiledPolicy), logger: e.logger}
	for i := range policies {
		p := policies[i]
		if p.Builtin {
			return fmt.Errorf("policy %s: user policies cannot be marked built-in", p.Name)
		}
		if err := staged.compile(ctx, &p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name := range staged.policies {
		if existing, ok := e.policies[name]; ok && existing.policy.Builtin {
			return fmt.Errorf("policy %s: name is taken by a built-in policy", name)
		}
	}
	for name, cp := range e.policies {
		if !cp.policy.Builtin {
			delete(e.policies, name)
		}
	}
	for name, cp := range staged.policies {
		e.policies[name] = cp
	}
	e.logger.Info().Int("count", len(staged.policies)).Msg("User policies loaded")
	return nil
}

// ListPolicies returns every policy, sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		out = append(out, *e.policies[name].policy)
	}
	return out
}

// SetEnabled enables or disables a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
