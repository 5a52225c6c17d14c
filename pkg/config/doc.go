// Package config loads nodeflow settings and documents.
//
// Settings come from YAML or CUE files and are layered over DefaultSettings. Documents come from
// JSON or CUE files. Both are checked against CUE schemas held in a SchemaRegistry before they
// are decoded, and then against their validator struct tags:
//
//	loader := config.NewLoader()
//	settings, err := loader.LoadSettings("nodeflow.yaml")
//	doc, err := loader.LoadDocument("todo.json")
//
// Schema violations are returned as a multierror of ValidationError values, one per violation,
// carrying the path and, for CUE sources, the file position.
//
// The built-in schemas are:
//
//	document   #Document: nodes, connections and their port references
//	manifest   #Manifest: module manifests (name, semver version, dependencies, node names)
//	settings   #Settings: the top-level settings file
package config
