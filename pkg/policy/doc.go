// Package policy lints nodeflow documents with Open Policy Agent (OPA).
//
// Every policy is a Rego module whose deny set holds violation objects:
//
//	deny contains violation if {
//		some n in input.nodes
//		not n.known
//		violation := {"message": sprintf("node %d is unknown", [n.id]), "node": n.id}
//	}
//
// A violation may carry "message", "node", "connection" and "severity". The policy's own
// severity applies when the violation does not name one.
//
// # Input
//
// Rules evaluate against an Input built by BuildInput: the document name, each node with its
// kind, params and the ports its kind declares, and the connections exactly as stored. Port
// resolution goes through the engine, so dynamic port sets (Object keys, Proxy formals) are
// visible to the rules.
//
// # Built-in Policies
//
//   - dangling-connections: connections must join existing nodes
//   - unknown-kinds: nodes should use registered kinds
//   - unknown-ports: connections must use declared ports
//   - slots: one connection per slot, one slot per non-duplicate port
//   - proxy-targets: Proxy nodes must name an existing Define
//   - input-names: Input nodes need a name usable as a port key
//
// # User Policies
//
// Engine.LoadPolicies reads .rego files from files or directories. A leading comment block
// becomes the description and a "# severity: warning" line sets the severity. Loader.Watch
// reloads them on change:
//
//	loader := policy.NewLoader(logger)
//	err := loader.Watch(ctx, paths, func(ps []policy.Policy) error {
//		return eng.ReplaceUserPolicies(ctx, ps)
//	})
//
// A reload that fails to compile leaves the previous user policies in place.
package policy
