// Package script evaluates the sandboxed Starlark expressions behind expression nodes.
//
// A source is either a single expression ("a + b") or a small program that assigns the name
// result. Arguments are predeclared as globals. Evaluation is bounded by a step budget and a
// timeout, and nothing outside the arguments and a few pure helper modules is reachable.
package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

const (
	// DefaultTimeout bounds one evaluation.
	DefaultTimeout = time.Second

	// DefaultMaxSteps bounds the Starlark computation steps of one evaluation.
	DefaultMaxSteps = 1_000_000

	// ResultName is the global a multi-statement program assigns its result to.
	ResultName = "result"
)

// ErrNoResult is returned when a program does not assign ResultName.
var ErrNoResult = errors.New("script did not assign " + ResultName)

// Result is the outcome of one evaluation.
type Result struct {
	// Value is the converted result.
	Value interface{} `json:"value"`

	// Steps is the number of Starlark computation steps used.
	Steps uint64 `json:"steps"`

	// ExecutionTime is how long the evaluation took.
	ExecutionTime time.Duration `json:"execution_time"`
}

// Evaluator runs expressions with resource limits.
type Evaluator struct {
	timeout  time.Duration
	maxSteps uint64
}

// NewEvaluator creates an evaluator. Zero limits select the defaults.
func NewEvaluator(timeout time.Duration, maxSteps uint64) *Evaluator {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Evaluator{timeout: timeout, maxSteps: maxSteps}
}

// Eval evaluates source with args bound as globals.
func (e *Evaluator) Eval(ctx context.Context, source string, args map[string]interface{}) (*Result, error) {
	start := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "expression",
		Print: func(*starlark.Thread, string) {},
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, errors.New("load is not available in expressions")
		},
	}
	thread.SetMaxExecutionSteps(e.maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(fmt.Sprintf("execution timeout after %v", e.timeout))
		case <-done:
		}
	}()

	env, err := e.environment(args)
	if err != nil {
		return nil, err
	}

	value, err := e.run(thread, source, env)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("script interrupted: %w", ctxErr)
		}
		return nil, err
	}

	out, err := FromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("failed to convert result: %w", err)
	}
	return &Result{
		Value:         out,
		Steps:         thread.ExecutionSteps(),
		ExecutionTime: time.Since(start),
	}, nil
}

// Check reports whether source parses as an expression or as a program, without running it.
func (e *Evaluator) Check(source string) error {
	if _, err := syntax.ParseExpr("expression", source, 0); err == nil {
		return nil
	}
	if _, err := syntax.Parse("expression.star", source, 0); err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}
	return nil
}

// run evaluates source as an expression, falling back to a program that assigns result.
func (e *Evaluator) run(thread *starlark.Thread, source string, env starlark.StringDict) (starlark.Value, error) {
	value, err := starlark.Eval(thread, "expression", source, env)
	if err == nil {
		return value, nil
	}
	var syntaxErr syntax.Error
	if !errors.As(err, &syntaxErr) {
		return nil, fmt.Errorf("starlark evaluation failed: %w", err)
	}

	globals, err := starlark.ExecFile(thread, "expression.star", source, env)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}
	result, ok := globals[ResultName]
	if !ok {
		return nil, ErrNoResult
	}
	return result, nil
}

func (e *Evaluator) environment(args map[string]interface{}) (starlark.StringDict, error) {
	env := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"math":   math.Module,
		"json":   json.Module,
	}
	for name, v := range args {
		if !syntaxIdent(name) {
			return nil, fmt.Errorf("argument %q is not a valid identifier", name)
		}
		sv, err := ToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert argument %s: %w", name, err)
		}
		env[name] = sv
	}
	return env, nil
}

func syntaxIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
