package telemetry_test

import (
	"fmt"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/modules"
	"github.com/openfroyo/nodeflow/pkg/modules/core"
	"github.com/openfroyo/nodeflow/pkg/telemetry"
)

// ExampleEventPublisher shows mutation events flowing from an engine to a subscriber.
func ExampleEventPublisher() {
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		panic(err)
	}
	events.Subscribe(func(ev telemetry.Event) {
		fmt.Println(ev.Message)
	}, telemetry.FilterByType(engine.EventNodeAdded, engine.EventConnectionAdded))

	e := engine.New(graph.New("example"), modules.Default(), engine.Options{Events: events})
	s := e.AddNode(core.StringKind, map[string]any{"value": "hi"})
	typed := e.AddNode(core.SetTypeKind, map[string]any{"type": "String"})
	if _, err := e.Connect(graph.PortRef{NodeID: s, Key: "output"}, graph.PortRef{NodeID: typed, Key: "input"}); err != nil {
		panic(err)
	}

	// Output:
	// node.added: node 1
	// node.added: node 2
	// connection.added: connection 1
}
