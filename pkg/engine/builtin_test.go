package engine_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/modules"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// The built-in registry must come up from its embedded manifests exactly as the CLI builds it.
func TestBuiltinRegistry(t *testing.T) {
	reg := modules.Default()

	order, err := reg.LoadOrder()
	if err != nil {
		t.Fatalf("Failed to compute load order: %v", err)
	}
	if diff := cmp.Diff([]string{"core", "collection", "ui"}, order); diff != "" {
		t.Errorf("Unexpected load order (-want +got):\n%s", diff)
	}

	for _, name := range order {
		m, ok := reg.Module(name)
		if !ok {
			t.Fatalf("Expected module %s to be registered", name)
		}
		for _, node := range m.Manifest.Nodes {
			if _, ok := reg.Kind(graph.Kind{Module: name, Type: node}); !ok {
				t.Errorf("Expected kind %s.%s to be registered", name, node)
			}
		}
		for _, tag := range m.Manifest.Types {
			if tag == "" {
				t.Errorf("Module %s declares an empty type name", name)
				continue
			}
			if _, ok := reg.TypeDef(types.Tag(tag)); !ok {
				t.Errorf("Expected type %s of module %s to be registered", tag, name)
			}
		}
	}

	if _, ok := reg.TypeDef(types.Null); !ok {
		t.Error("Expected the Null type to be registered")
	}
}
