// Package core provides the core module: literals, control flow, structures, state, sub-graph
// reuse (Define, Proxy, Input) and sandboxed expressions.
package core

import (
	_ "embed"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/script"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// Name is the module name.
const Name = "core"

//go:embed manifest.yaml
var manifest []byte

// Node kinds of the core module.
var (
	StringKind     = graph.Kind{Module: Name, Type: "String"}
	NumberKind     = graph.Kind{Module: Name, Type: "Number"}
	BooleanKind    = graph.Kind{Module: Name, Type: "Boolean"}
	IfKind         = graph.Kind{Module: Name, Type: "If"}
	SetTypeKind    = graph.Kind{Module: Name, Type: "SetType"}
	MatchTypeKind  = graph.Kind{Module: Name, Type: "MatchType"}
	ObjectKind     = graph.Kind{Module: Name, Type: "Object"}
	PairKind       = graph.Kind{Module: Name, Type: "Pair"}
	GetKind        = graph.Kind{Module: Name, Type: "Get"}
	StateKind      = graph.Kind{Module: Name, Type: "State"}
	DefineKind     = engine.DefineKind
	ProxyKind      = graph.Kind{Module: Name, Type: "Proxy"}
	InputKind      = graph.Kind{Module: Name, Type: "Input"}
	ExpressionKind = graph.Kind{Module: Name, Type: "Expression"}
)

// Options configures the core module.
type Options struct {
	// Evaluator runs Expression nodes. Nil selects an evaluator with default limits.
	Evaluator *script.Evaluator

	// Logger receives debug output about swallowed expression failures. Nil disables it.
	Logger *zerolog.Logger
}

// New builds the core module.
func New(opts Options) (*engine.Module, error) {
	m, err := engine.ParseManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if opts.Evaluator == nil {
		opts.Evaluator = script.NewEvaluator(0, 0)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("module", Name).Logger()
	}

	return &engine.Module{
		Manifest: m,
		Nodes: map[string]engine.NodeKind{
			"String":     stringNode(),
			"Number":     numberNode(),
			"Boolean":    booleanNode(),
			"If":         ifNode(),
			"SetType":    setTypeNode(),
			"MatchType":  matchTypeNode(),
			"Object":     objectNode(),
			"Pair":       pairNode(),
			"Get":        getNode(),
			"State":      stateNode(),
			"Define":     defineNode(),
			"Proxy":      proxyNode(),
			"Input":      inputNode(),
			"Expression": expressionNode(opts.Evaluator, logger),
		},
		Types: typeDefs(),
	}, nil
}

// DeclaredType decodes the optional "type" param of a node. ok is false when the param is unset.
// A param that does not decode yields a Mismatch carrying the decode error.
func DeclaredType(n *graph.Node) (types.ValueType, bool) {
	raw, ok := n.Param("type")
	if !ok || raw == nil || raw == "" {
		return types.ValueType{}, false
	}
	t, err := types.Decode(raw)
	if err != nil {
		return types.Mismatchf("node %d: %v", n.ID, err), true
	}
	return t, true
}

func out(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
	return q.Type(n.ID, c, "output")
}

func delivered(port string) engine.TypeFunc {
	return func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
		return q.DeliveredType(n.ID, port, c)
	}
}

func constant(t types.ValueType) engine.TypeFunc {
	return func(engine.Query, *graph.Node, *engine.Context) types.ValueType { return t }
}

func passthrough(port string) engine.ValueFunc {
	return func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
		return q.Value(n.ID, s, port)
	}
}
