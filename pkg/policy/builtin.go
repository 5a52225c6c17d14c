package policy

// BuiltinPolicies returns the lint rules shipped with nodeflow.
func BuiltinPolicies() []Policy {
	return []Policy{
		danglingConnectionsPolicy(),
		unknownKindsPolicy(),
		unknownPortsPolicy(),
		slotsPolicy(),
		proxyTargetsPolicy(),
		inputNamesPolicy(),
	}
}

func builtin(name, description string, severity Severity, rego string) Policy {
	return Policy{
		Name:        name,
		Description: description,
		Rego:        rego,
		Severity:    severity,
		Enabled:     true,
		Builtin:     true,
	}
}

func danglingConnectionsPolicy() Policy {
	return builtin("dangling-connections", "Connections must join existing nodes", SeverityError, `package nodeflow.lint.dangling

deny contains violation if {
	some c in input.connections
	some end in ["src", "target"]
	not node_exists(c[end].nodeId)
	violation := {
		"message": sprintf("connection %d: %s node %d does not exist", [c.id, end, c[end].nodeId]),
		"connection": c.id,
	}
}

node_exists(id) if {
	some n in input.nodes
	n.id == id
}
`)
}

func unknownKindsPolicy() Policy {
	return builtin("unknown-kinds", "Nodes must use registered kinds", SeverityWarning, `package nodeflow.lint.kinds

deny contains violation if {
	some n in input.nodes
	not n.known
	violation := {
		"message": sprintf("node %d: kind %s is not registered", [n.id, n.kind]),
		"node": n.id,
	}
}
`)
}

func unknownPortsPolicy() Policy {
	return builtin("unknown-ports", "Connections must use ports their nodes declare", SeverityError, `package nodeflow.lint.ports

deny contains violation if {
	some c in input.connections
	some n in input.nodes
	n.id == c.target.nodeId
	n.known
	not has_port(n.inputs, c.target.key)
	violation := {
		"message": sprintf("connection %d: node %d has no input %s", [c.id, n.id, c.target.key]),
		"node": n.id,
		"connection": c.id,
	}
}

deny contains violation if {
	some c in input.connections
	some n in input.nodes
	n.id == c.src.nodeId
	n.known
	not has_port(n.outputs, c.src.key)
	violation := {
		"message": sprintf("connection %d: node %d has no output %s", [c.id, n.id, c.src.key]),
		"node": n.id,
		"connection": c.id,
	}
}

has_port(ports, key) if {
	some p in ports
	p.key == key
}
`)
}

func slotsPolicy() Policy {
	return builtin("slots", "Each input slot takes at most one connection", SeverityError, `package nodeflow.lint.slots

same_port(a, b) if {
	a.target.nodeId == b.target.nodeId
	a.target.key == b.target.key
}

deny contains violation if {
	some i, a in input.connections
	some j, b in input.connections
	i < j
	same_port(a, b)
	a.target.slot == b.target.slot
	violation := {
		"message": sprintf("connections %d and %d share slot %d of %d:%s", [a.id, b.id, a.target.slot, a.target.nodeId, a.target.key]),
		"node": a.target.nodeId,
		"connection": b.id,
	}
}

deny contains violation if {
	some i, a in input.connections
	some j, b in input.connections
	i < j
	same_port(a, b)
	a.target.slot != b.target.slot
	some n in input.nodes
	n.id == a.target.nodeId
	some p in n.inputs
	p.key == a.target.key
	p.mode != "duplicate"
	violation := {
		"message": sprintf("connections %d and %d both feed %s input %d:%s", [a.id, b.id, p.mode, n.id, p.key]),
		"node": n.id,
		"connection": b.id,
	}
}
`)
}

func proxyTargetsPolicy() Policy {
	return builtin("proxy-targets", "Proxy nodes must call an existing Define", SeverityError, `package nodeflow.lint.proxy

deny contains violation if {
	some n in input.nodes
	n.kind == "core.Proxy"
	ref := object.get(object.get(n, "params", {}), "define", null)
	not resolves(ref)
	violation := {
		"message": sprintf("proxy %d: no define %v", [n.id, ref]),
		"node": n.id,
	}
}

resolves(ref) if {
	is_number(ref)
	some d in input.nodes
	d.kind == "core.Define"
	d.id == ref
}

resolves(ref) if {
	is_string(ref)
	ref != ""
	some d in input.nodes
	d.kind == "core.Define"
	d.params.name == ref
}
`)
}

func inputNamesPolicy() Policy {
	return builtin("input-names", "Input nodes need a usable formal name", SeverityWarning, `package nodeflow.lint.inputs

deny contains violation if {
	some n in input.nodes
	n.kind == "core.Input"
	name := object.get(n.params, "name", "")
	name in {"", "output"}
	violation := {
		"message": sprintf("input %d: name %v cannot become a proxy port", [n.id, name]),
		"node": n.id,
	}
}
`)
}
