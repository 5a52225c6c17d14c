// Package engine resolves values and types over a dataflow graph.
//
// # Overview
//
// An Engine owns a graph.Graph and a Registry of node kinds and answers five queries for any
// node port:
//
//   - Value(node, scope, port): the runtime value at a port
//   - UnmatchedType(node, context, port): the bottom-up type a node delivers
//   - Type(node, context, port): the unmatched type unified with every consumer's expectation
//   - ExpectedType(node, port, context): the type an input port requires
//   - DeliveredType(node, port, context): the bottom-up type arriving at a port
//
// Delivered types flow from sources to consumers and expected types flow back, so a node whose
// own output is under-typed still picks up a concrete type from how it is consumed.
//
// # Memoization
//
// Every query, and every structural read a query performs (node lookup, port declaration,
// connection lists), is cached under (query, node, scope or context key, port). While a query
// runs the engine records which cached entries it read, and each entry keeps the set of entries
// that read it. A mutation evicts the entries that read the changed part of the graph and,
// transitively, their readers. Nothing else is touched.
//
// Queries that re-enter themselves through a cyclic graph see Unresolved (types) or Undefined
// (values) at the point of re-entry. Results computed under that assumption are not cached.
//
// # Scopes and contexts
//
// A Scope chains local bindings used by iteration (Collect binds each item) and by sub-graph
// calls (Proxy binds its arguments). Scope keys are derived from content, so equal bindings
// share cache entries and different items never do.
//
// A Context carries type overrides used to instantiate a reusable sub-graph with the argument
// types of one call site. Sub-contexts copy their parent's overrides; instantiations never
// interfere.
//
// # Mutation
//
// AddNode, RemoveNode, Connect, Disconnect, SetParam and Move are the only way to change the
// graph. Connect refuses connections that would close a directed cycle through ports that are not
// loop-tolerant, and connections whose types cannot be unified. Refusals are EngineError values
// classified as loop or conflict.
//
// # Example
//
//	reg := modules.Default()
//	eng := engine.New(graph.New("greeting"), reg, engine.Options{})
//	hi := eng.AddNode(graph.Kind{Module: "core", Type: "String"}, map[string]any{"value": "hi"})
//	arr := eng.AddNode(graph.Kind{Module: "collection", Type: "Array"}, nil)
//	eng.Connect(graph.PortRef{NodeID: hi, Key: "output"}, graph.PortRef{NodeID: arr, Key: "input"})
//	eng.Value(arr, nil, "output") // []any{"hi"}
//	eng.Type(arr, nil, "output")  // Array<String>
package engine
