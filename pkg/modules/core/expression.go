package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/script"
	"github.com/openfroyo/nodeflow/pkg/types"
)

func expressionArgs(n *graph.Node) []string {
	names := n.StringsParam("args")
	args := names[:0]
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || name == "output" || seen[name] {
			continue
		}
		seen[name] = true
		args = append(args, name)
	}
	return args
}

// Expression evaluates the Starlark source in its "source" param with one input per name in its
// "args" param. A failing script delivers Undefined, as does a result that does not fit the
// declared "type". Without a declared type the output is Unknown when the source does not parse.
func expressionNode(eval *script.Evaluator, logger zerolog.Logger) engine.NodeKind {
	return &engine.Definition{
		PortsFunc: func(_ engine.Query, n *graph.Node) engine.PortSet {
			args := expressionArgs(n)
			inputs := make([]graph.PortSpec, len(args))
			for i, name := range args {
				inputs[i] = engine.In(name)
			}
			return engine.PortSet{Inputs: inputs, Outputs: []graph.PortSpec{engine.Out("output")}}
		},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			args := make(map[string]interface{})
			for _, name := range expressionArgs(n) {
				v := q.Value(n.ID, s, name)
				if engine.IsUndefined(v) {
					v = nil
				}
				args[name] = v
			}

			res, err := eval.Eval(context.Background(), n.StringParam("source", ""), args)
			if err != nil {
				logger.Debug().
					Int("node", int(n.ID)).
					Err(err).
					Msg("Expression failed")
				return engine.Undefined
			}
			if t, ok := DeclaredType(n); ok && !s.Context().Test(res.Value, t) {
				logger.Debug().
					Int("node", int(n.ID)).
					Str("type", t.String()).
					Msg("Expression result does not fit declared type")
				return engine.Undefined
			}
			return res.Value
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(_ engine.Query, n *graph.Node, _ *engine.Context) types.ValueType {
				if t, ok := DeclaredType(n); ok {
					return t
				}
				// A source that does not parse can only ever deliver Undefined.
				if err := eval.Check(n.StringParam("source", "")); err != nil {
					return types.UnknownType()
				}
				// Other results are only known at evaluation time.
				return types.UnresolvedType()
			},
		},
	}
}
